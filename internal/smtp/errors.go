package smtp

import "fmt"

// Kind tags a rejection with what went wrong. Wire response codes are
// assigned only at the protocol boundary, keeping the pipeline free of
// wire-format knowledge.
type Kind int

const (
	// KindUnknownRecipient means the address has no entry in the directory
	KindUnknownRecipient Kind = iota

	// KindInsufficientStorage means the message does not fit the
	// recipient's remaining quota
	KindInsufficientStorage

	// KindDirectoryUnavailable means a directory lookup failed for reasons
	// other than not-found
	KindDirectoryUnavailable

	// KindStreamReadFailure means the payload stream broke mid-transfer
	KindStreamReadFailure

	// KindMessageTooLarge means the payload exceeded the global size cap
	KindMessageTooLarge

	// KindNoValidRecipients means no recipient survived envelope validation
	KindNoValidRecipients
)

// String returns the kind's name
func (k Kind) String() string {
	switch k {
	case KindUnknownRecipient:
		return "unknown_recipient"
	case KindInsufficientStorage:
		return "insufficient_storage"
	case KindDirectoryUnavailable:
		return "directory_unavailable"
	case KindStreamReadFailure:
		return "stream_read_failure"
	case KindMessageTooLarge:
		return "message_too_large"
	case KindNoValidRecipients:
		return "no_valid_recipients"
	default:
		return "unknown"
	}
}

// Class says whether the sending peer should retry.
type Class int

const (
	// ClassPermanent maps to a 5xx-style response; the peer must not retry
	ClassPermanent Class = iota

	// ClassTemporary maps to a 4xx-style response; the peer may retry later
	ClassTemporary
)

// ReplyError is a rejection carried from the pipeline to the protocol
// boundary: a kind, a retry class, and a human-readable message.
type ReplyError struct {
	Kind    Kind
	Class   Class
	Message string
	Err     error
}

// Error implements the error interface
func (e *ReplyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *ReplyError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the peer may retry
func (e *ReplyError) Temporary() bool {
	return e.Class == ClassTemporary
}

func reject(kind Kind, class Class, message string) *ReplyError {
	return &ReplyError{Kind: kind, Class: class, Message: message}
}

func rejectWrap(kind Kind, class Class, message string, err error) *ReplyError {
	return &ReplyError{Kind: kind, Class: class, Message: message, Err: err}
}
