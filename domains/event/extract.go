package event

import "strings"

// Extracted is the canonical content resolved from a raw gateway message.
type Extracted struct {
	Text      string
	MediaURL  string
	MediaKind string
}

// ExtractContent resolves the canonical content of a message across the
// gateway's variant shapes. Resolution order is fixed and first-match-wins;
// messages without any supported content yield nil and are ignored.
func ExtractContent(msg *MessageContent) *Extracted {
	if msg == nil {
		return nil
	}

	if msg.Conversation != "" {
		return &Extracted{Text: msg.Conversation}
	}
	if msg.ExtendedTextMessage != nil && msg.ExtendedTextMessage.Text != "" {
		return &Extracted{Text: msg.ExtendedTextMessage.Text}
	}
	if msg.ImageMessage != nil {
		return &Extracted{Text: msg.ImageMessage.Caption, MediaURL: msg.ImageMessage.URL, MediaKind: "image"}
	}
	if msg.VideoMessage != nil {
		return &Extracted{Text: msg.VideoMessage.Caption, MediaURL: msg.VideoMessage.URL, MediaKind: "video"}
	}
	if msg.AudioMessage != nil {
		return &Extracted{MediaURL: msg.AudioMessage.URL, MediaKind: "audio"}
	}
	if msg.DocumentMessage != nil {
		return &Extracted{Text: msg.DocumentMessage.Caption, MediaURL: msg.DocumentMessage.URL, MediaKind: "document"}
	}
	if msg.StickerMessage != nil {
		return &Extracted{MediaURL: msg.StickerMessage.URL, MediaKind: "sticker"}
	}
	if msg.ButtonsResponseMessage != nil && msg.ButtonsResponseMessage.SelectedDisplayText != "" {
		return &Extracted{Text: msg.ButtonsResponseMessage.SelectedDisplayText}
	}
	if msg.ListResponseMessage != nil && msg.ListResponseMessage.Title != "" {
		return &Extracted{Text: msg.ListResponseMessage.Title}
	}

	return nil
}

// IsGroupJID reports whether the remote identifier addresses a group thread.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, GroupSuffix)
}
