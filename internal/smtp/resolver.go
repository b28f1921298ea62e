package smtp

import (
	"context"
	"errors"

	"github.com/inletmail/inlet/internal/address"
	"github.com/inletmail/inlet/internal/directory"
)

// RecipientDeclared is the recipient-declaration callback. It normalizes the
// declared address, resolves it against the directory, and applies the
// per-recipient quota admission check against the declared message size.
// Acceptance means the recipient is recorded on the session; rejection never
// disturbs previously accepted recipients.
func (b *Backend) RecipientDeclared(ctx context.Context, sess *Session, rcpt string) error {
	addr, err := address.Parse(rcpt)
	if err != nil {
		b.metrics.RecipientsRejected.WithLabelValues(KindUnknownRecipient.String()).Inc()
		return rejectWrap(KindUnknownRecipient, ClassPermanent, "malformed recipient address", err)
	}

	key := addr.CanonicalKey()

	// Re-declaring an address that maps to an already accepted canonical key
	// is idempotent: same outcome, no second directory round trip.
	if _, ok := sess.Recipient(key); ok {
		b.logger.Debug("duplicate recipient",
			"session_id", sess.ID,
			"recipient", rcpt,
			"canonical", key,
		)
		return nil
	}

	dirAddr, err := b.directory.FindAddress(ctx, key)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			b.metrics.RecipientsRejected.WithLabelValues(KindUnknownRecipient.String()).Inc()
			return reject(KindUnknownRecipient, ClassPermanent, "no such recipient")
		}
		b.metrics.RecipientsRejected.WithLabelValues(KindDirectoryUnavailable.String()).Inc()
		return rejectWrap(KindDirectoryUnavailable, ClassTemporary, "recipient lookup failed", err)
	}

	account, err := b.directory.FindAccount(ctx, dirAddr.AccountID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			// Address rows pointing at a missing account are directory
			// inconsistencies; to the peer it is the same unknown recipient.
			b.logger.Warn("address resolves to missing account",
				"session_id", sess.ID,
				"canonical", key,
				"account_id", dirAddr.AccountID,
			)
			b.metrics.RecipientsRejected.WithLabelValues(KindUnknownRecipient.String()).Inc()
			return reject(KindUnknownRecipient, ClassPermanent, "no such recipient")
		}
		b.metrics.RecipientsRejected.WithLabelValues(KindDirectoryUnavailable.String()).Inc()
		return rejectWrap(KindDirectoryUnavailable, ClassTemporary, "account lookup failed", err)
	}

	available := account.StorageAvailable(b.config.DefaultQuota)
	if sess.DeclaredSize > 0 && sess.DeclaredSize > available {
		b.metrics.RecipientsRejected.WithLabelValues(KindInsufficientStorage.String()).Inc()
		return reject(KindInsufficientStorage, ClassTemporary, "recipient over quota")
	}

	b.metrics.RecipientsAccepted.Inc()
	sess.AddRecipient(&ResolvedRecipient{
		OriginalAddress:  addr.Original,
		CanonicalKey:     key,
		AccountID:        account.ID,
		StorageAvailable: available,
	})

	b.logger.Debug("recipient accepted",
		"session_id", sess.ID,
		"recipient", rcpt,
		"canonical", key,
		"account_id", account.ID,
		"storage_available", available,
	)
	return nil
}
