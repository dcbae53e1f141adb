package chat

import (
	"fmt"
	"strings"
)

// MaxContentLength bounds message content in bytes.
const MaxContentLength = 4096

// MinFrameSize is the smallest channel read limit that still admits every
// valid sendMessage frame. JSON may escape any content byte to six bytes
// (\u003c), and frameEnvelopeSize covers the remaining fields.
const MinFrameSize = 6*MaxContentLength + frameEnvelopeSize

const frameEnvelopeSize = 1024

// ValidateMessage checks the fields a send needs before persistence.
func ValidateMessage(senderID, receiverID, content string) error {
	switch {
	case strings.TrimSpace(senderID) == "":
		return fmt.Errorf("%w: missing sender", ErrMalformedRequest)
	case strings.TrimSpace(receiverID) == "":
		return fmt.Errorf("%w: missing receiver", ErrMalformedRequest)
	case strings.TrimSpace(content) == "":
		return fmt.Errorf("%w: missing content", ErrMalformedRequest)
	case len(content) > MaxContentLength:
		return fmt.Errorf("%w: content exceeds %d bytes", ErrMalformedRequest, MaxContentLength)
	}
	return nil
}
