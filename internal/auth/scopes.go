package auth

// Scopes granted to API callers.
const (
	ScopeHealthRead  = "health:read"
	ScopeHealthWrite = "health:write"
	ScopeFitSync     = "fit:sync"
)
