package smtp

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/inletmail/inlet/internal/msgstore"
)

// readChunkSize is the unit the payload stream is consumed in.
const readChunkSize = 32 * 1024

// BodyTransfer is the body-transfer callback. It streams the payload,
// enforces the size gates, derives the content-addressed message identifier,
// and fans the message out to every resolved recipient. On success it
// returns the message identifier for the protocol acknowledgment.
func (b *Backend) BodyTransfer(ctx context.Context, sess *Session, body io.Reader) (string, error) {
	// The payload is unbounded until the stream ends, so it is consumed
	// incrementally: chunks are buffered only while under the global size
	// cap, but every byte feeds the hash so the identifier reflects the full
	// payload no matter where buffering stopped.
	hash := sha256.New()
	buf := make([]byte, 0, readChunkSize)
	chunk := make([]byte, readChunkSize)
	var total int64
	oversize := false

	for {
		n, err := body.Read(chunk)
		if n > 0 {
			total += int64(n)
			hash.Write(chunk[:n])
			if !oversize {
				if total > b.config.MaxMessageSize {
					oversize = true
				} else {
					buf = append(buf, chunk[:n]...)
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			b.logger.Error("payload stream failed",
				"session_id", sess.ID,
				"bytes_read", total,
				"error", err,
			)
			return "", rejectWrap(KindStreamReadFailure, ClassTemporary, "message transfer interrupted", err)
		}
	}

	if oversize {
		b.metrics.MessagesRejected.WithLabelValues(KindMessageTooLarge.String()).Inc()
		return "", reject(KindMessageTooLarge, ClassPermanent,
			fmt.Sprintf("message exceeds maximum size of %d bytes", b.config.MaxMessageSize))
	}
	if sess.RecipientCount() == 0 {
		b.metrics.MessagesRejected.WithLabelValues(KindNoValidRecipients.String()).Inc()
		return "", reject(KindNoValidRecipients, ClassPermanent, "no valid recipients")
	}
	// The declared SIZE is advisory; the actual payload may be larger than
	// what the per-recipient admission check saw.
	if total > sess.MaxAllowedStorage() {
		b.metrics.MessagesRejected.WithLabelValues(KindInsufficientStorage.String()).Inc()
		return "", reject(KindInsufficientStorage, ClassTemporary, "message exceeds recipient storage")
	}

	messageID := strings.ToUpper(fmt.Sprintf("%x", hash.Sum(nil)))
	now := time.Now()

	b.deliver(ctx, sess, messageID, buf, now)

	b.metrics.MessagesReceived.Inc()
	b.metrics.MessageBytes.Observe(float64(total))
	b.logger.Info("message accepted",
		"session_id", sess.ID,
		"message_id", messageID,
		"sender", sess.Sender,
		"recipients", sess.RecipientCount(),
		"size", total,
	)
	return messageID, nil
}

// deliver fans the accepted payload out to every resolved recipient, one
// store call at a time. A failed store call is logged and counted but never
// halts the loop: recipients are independent and one broken mailbox must not
// cost the others their copy.
func (b *Backend) deliver(ctx context.Context, sess *Session, messageID string, payload []byte, now time.Time) {
	for _, rcpt := range sess.Recipients() {
		// Per-recipient headers are prepended into a scratch buffer so the
		// next iteration starts from the clean payload.
		prefix := deliveredTo(rcpt.OriginalAddress) +
			synthesizeReceived(sess, messageID, b.config.Hostname, rcpt.OriginalAddress, now)
		unit := make([]byte, 0, len(prefix)+len(payload))
		unit = append(unit, prefix...)
		unit = append(unit, payload...)

		meta := msgstore.Metadata{
			Source:     "SMTP",
			Sender:     sess.Sender,
			Recipient:  rcpt.OriginalAddress,
			RemoteAddr: sess.RemoteAddr,
			HeloName:   sess.HeloName,
			Received:   now,
		}

		ref, err := b.store.Deliver(ctx, rcpt.AccountID, msgstore.FolderInbox, meta, unit)
		if err != nil {
			b.metrics.DeliveryFailures.Inc()
			b.logger.Error("delivery failed",
				"session_id", sess.ID,
				"message_id", messageID,
				"recipient", rcpt.OriginalAddress,
				"account_id", rcpt.AccountID,
				"error", err,
			)
			continue
		}

		b.metrics.Deliveries.Inc()
		b.logger.Debug("delivered",
			"session_id", sess.ID,
			"message_id", messageID,
			"recipient", rcpt.OriginalAddress,
			"account_id", rcpt.AccountID,
			"ref", ref,
		)
	}
}
