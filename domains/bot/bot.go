package bot

import "context"

// ReplyRequest carries the inbound message context handed to the
// automation provider.
type ReplyRequest struct {
	InstanceID   string
	ChatJID      string
	Text         string
	SenderName   string
	SystemPrompt string
}

// IResponder generates an automated response for an inbound message.
// Providers are a black box: text in, text out.
type IResponder interface {
	Reply(ctx context.Context, req ReplyRequest) (string, error)
}
