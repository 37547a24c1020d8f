// Package transport abstracts the WhatsApp gateway the broadcast engine
// sends through. The protocol client itself (pairing, connection, message
// transport) lives in an external service.
package transport

import "context"

// GroupInfo is the metadata the gateway exposes for a target group.
type GroupInfo struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
}

// Messenger is the outbound messaging surface the executor depends on.
type Messenger interface {
	// SessionConnected reports whether the user's gateway session is paired
	// and online.
	SessionConnected(ctx context.Context, userID string) (bool, error)
	// SendMessage delivers one message to a target chat. mediaURL may be
	// empty for text-only sends.
	SendMessage(ctx context.Context, userID, targetID, text, mediaURL string) error
	// GroupMetadata lists the groups visible to the user's session.
	GroupMetadata(ctx context.Context, userID string) ([]GroupInfo, error)
}
