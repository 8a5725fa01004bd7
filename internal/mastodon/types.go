// Package mastodon implements the four network operations the send
// engine dispatches through, plus a concrete rate-limited HTTP client
// grounded on the teacher's internal/api.Client.
package mastodon

import "context"

// Response is the uniform result of every network operation: the send
// engine only ever branches on OK/Retryable, never on transport details.
type Response struct {
	OK         bool
	Retryable  bool
	StatusCode int
	Message    string
}

// StatusParams is the parameter record dispatched to NewStatus.
type StatusParams struct {
	Body           string
	ContentWarning string
	Visibility     string // lower-case name, or "" to omit
	InReplyToID    string
	AttachmentIDs  []string
}

// Operations is the capability set the send engine is polymorphic over —
// passed in as a value, not subclassed, so tests can inject a mock that
// records arguments and simulates retryable/fatal failures.
type Operations interface {
	// Post issues a bare action call (favourite/unfavourite, reblog/unreblog).
	Post(ctx context.Context, url, accessToken string) Response
	// Delete is unused by the current send flows but completes the
	// four-operation capability set the spec names.
	Delete(ctx context.Context, url, accessToken string) Response
	// NewStatus creates a status and returns its server-assigned ID in
	// Response.Message on success.
	NewStatus(ctx context.Context, instanceURL, accessToken string, params StatusParams) Response
	// Upload uploads one attachment and returns its media ID in
	// Response.Message on success.
	Upload(ctx context.Context, instanceURL, accessToken, filePath, description string) Response
}
