package send

import "context"

// TextRequest is one outbound text send through the gateway channel.
type TextRequest struct {
	InstanceKey string
	ChatJID     string
	Text        string
}

// MediaRequest is one outbound media send through the gateway channel.
type MediaRequest struct {
	InstanceKey string
	ChatJID     string
	Caption     string
	MediaURL    string
	MediaKind   string
}

// ISender is the outbound send channel. The gateway client implements it;
// the worker pipeline and the campaign dispatcher are its only callers.
type ISender interface {
	SendText(ctx context.Context, req TextRequest) (messageID string, err error)
	SendMedia(ctx context.Context, req MediaRequest) (messageID string, err error)
}
