package auth

const (
	ScopeOpenID     = "openid"
	ScopeProfile    = "profile"
	ScopeEmail      = "email"
	ScopeFlowsRead  = "flows:read"
	ScopeFlowsWrite = "flows:write"
)

// AllScopes defines the full set of scopes requested by API clients.
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopeFlowsRead,
	ScopeFlowsWrite,
}
