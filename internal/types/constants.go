package types

const ContextUserKey = "user"

const ContextRequestIDKey = "request_id"

// Event names a webhook config can subscribe to.
const (
	EventIdeaCreated   = "idea_created"
	EventIdeaUpdated   = "idea_updated"
	EventIdeaVoted     = "idea_voted"
	EventIdeaCommented = "idea_commented"
)

// DefaultOAuthEvents are enabled on every config created by the OAuth callback.
var DefaultOAuthEvents = []string{EventIdeaCreated, EventIdeaUpdated, EventIdeaVoted}
