package httpapi

import "autodl-console/internal/guard"

// Page is one dashboard view behind the protected layout.
type Page struct {
	Path    string
	Name    string
	Require guard.Requirement
}

// Layout is the requirement of the protected layout every page sits under.
var Layout = guard.Authenticated

// Pages mirrors the dashboard's view table. Admin-only views redirect other
// roles to the default view.
var Pages = []Page{
	{Path: "/dashboard", Name: "HomeView"},
	{Path: "/users", Name: "User", Require: guard.AdminOnly},
	{Path: "/forwarders", Name: "forwarders"},
	{Path: "/destinations", Name: "Destination"},
	{Path: "/settings", Name: "Settings", Require: guard.AdminOnly},
	{Path: "/profile", Name: "Profile"},
	{Path: "/import-list", Name: "ImportList"},
	{Path: "/total-report", Name: "TotalDownloadReport"},
	{Path: "/auto-download-bot", Name: "AutoDownloadBot"},
	{Path: "/invoice-report", Name: "InvoiceReport"},
}

// AuditPath lists recent session events. It sits under the layout and is
// admin-only.
const AuditPath = "/audit"
