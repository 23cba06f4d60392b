package guard

// Decision is the outcome of one navigation attempt.
//
// Target is set for redirects. Session is what the guard derived from the
// stored token; it is attached to the request on allow and never serialized.
type Decision struct {
	Action Action `json:"action"`
	Target string `json:"target,omitempty"`

	// Reason is for logs, metrics and audit.
	Reason string `json:"reason,omitempty"`

	Session Session `json:"-"`
}

type Action string

const (
	ActionAllow           Action = "allow"
	ActionRedirectLogin   Action = "redirect_login"
	ActionRedirectDefault Action = "redirect_default"
)

const (
	ReasonPublic           = "public"
	ReasonAlreadySignedIn  = "authenticated_on_login"
	ReasonTokenMissing     = "token_missing"
	ReasonTokenExpired     = "token_expired"
	ReasonRoleNotPermitted = "role_not_permitted"
	ReasonAuthorized       = "authorized"
)

// ForcesLogout reports whether applying d must clear stored credentials.
func (d Decision) ForcesLogout() bool { return d.Action == ActionRedirectLogin }
