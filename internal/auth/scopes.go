package auth

// Known OAuth scopes used by the care schedule API.
const (
	ScopeSchedulesRead  = "schedules:read"
	ScopeSchedulesWrite = "schedules:write"
	ScopeCareRecord     = "care:record"
)
