package chat

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/viemarket/storefront/internal/upstream"
)

// Attachment limits enforced before any network call.
const MaxImageBytes = 5 << 20

var (
	// ErrAttachmentTooLarge rejects images over the size limit.
	ErrAttachmentTooLarge = fmt.Errorf("chat: image exceeds %d bytes", MaxImageBytes)
	// ErrAttachmentNotImage rejects non-image payloads.
	ErrAttachmentNotImage = errors.New("chat: attachment must be an image")
	// ErrAttachmentEmpty rejects empty attachments.
	ErrAttachmentEmpty = errors.New("chat: attachment is empty")
)

// ValidateAttachment checks an outbound image locally. Invalid attachments
// never reach the network.
func ValidateAttachment(a *upstream.Attachment) error {
	if a == nil {
		return nil
	}
	if len(a.Data) == 0 {
		return ErrAttachmentEmpty
	}
	if len(a.Data) > MaxImageBytes {
		return ErrAttachmentTooLarge
	}
	mime := strings.ToLower(strings.TrimSpace(a.MIME))
	if mime == "" {
		mime = http.DetectContentType(a.Data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return ErrAttachmentNotImage
	}
	return nil
}
