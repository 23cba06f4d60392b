package guard

// Role names carried in the access token. Keep these stable; the upstream
// issuer writes them.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// AdminOnly is the requirement for admin views.
var AdminOnly = Requirement{Roles: []string{RoleAdmin}}
