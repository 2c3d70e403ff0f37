package out

import "context"

// =============================================================================
// Mail Body Store Port
// =============================================================================

// MailBodyStore caches message bodies after commit so the record content
// route can serve them without another provider round trip. Writes are best
// effort; a failed write only costs a later cache miss.
type MailBodyStore interface {
	SaveBody(ctx context.Context, orgID, recordKey, mimeType, body string) error
	// GetBody returns ("", "", nil) when no body is cached for the key.
	GetBody(ctx context.Context, recordKey string) (body, mimeType string, err error)
	DeleteBody(ctx context.Context, recordKey string) error
}
