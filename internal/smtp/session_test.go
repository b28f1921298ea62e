package smtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionBeginTransactionResetsState(t *testing.T) {
	sess := NewSession("s1", "192.0.2.1:4567")
	sess.BeginTransaction("a@x.com", 100, 1000)
	sess.AddRecipient(&ResolvedRecipient{CanonicalKey: "b@y.com", StorageAvailable: 500})

	require.Equal(t, 1, sess.RecipientCount())
	require.Equal(t, int64(500), sess.MaxAllowedStorage())

	sess.BeginTransaction("c@x.com", 0, 2000)
	assert.Equal(t, "c@x.com", sess.Sender)
	assert.Equal(t, 0, sess.RecipientCount())
	assert.Equal(t, int64(2000), sess.MaxAllowedStorage())
}

func TestSessionStorageBoundTightensMonotonically(t *testing.T) {
	sess := NewSession("s1", "192.0.2.1:4567")
	sess.BeginTransaction("a@x.com", 0, 1000)

	sess.AddRecipient(&ResolvedRecipient{CanonicalKey: "b@y.com", StorageAvailable: 800})
	assert.Equal(t, int64(800), sess.MaxAllowedStorage())

	sess.AddRecipient(&ResolvedRecipient{CanonicalKey: "c@y.com", StorageAvailable: 300})
	assert.Equal(t, int64(300), sess.MaxAllowedStorage())

	// A roomier recipient never loosens the bound
	sess.AddRecipient(&ResolvedRecipient{CanonicalKey: "d@y.com", StorageAvailable: 900})
	assert.Equal(t, int64(300), sess.MaxAllowedStorage())
}

func TestSessionDuplicateCanonicalKeyIgnored(t *testing.T) {
	sess := NewSession("s1", "192.0.2.1:4567")
	sess.BeginTransaction("a@x.com", 0, 1000)

	sess.AddRecipient(&ResolvedRecipient{
		OriginalAddress:  "user+promo@y.com",
		CanonicalKey:     "user@y.com",
		StorageAvailable: 500,
	})
	sess.AddRecipient(&ResolvedRecipient{
		OriginalAddress:  "user@y.com",
		CanonicalKey:     "user@y.com",
		StorageAvailable: 100,
	})

	require.Equal(t, 1, sess.RecipientCount())
	// First resolution wins, bound untouched by the duplicate
	assert.Equal(t, "user+promo@y.com", sess.Recipients()[0].OriginalAddress)
	assert.Equal(t, int64(500), sess.MaxAllowedStorage())
}

func TestSessionRecipientsInDeclarationOrder(t *testing.T) {
	sess := NewSession("s1", "192.0.2.1:4567")
	sess.BeginTransaction("a@x.com", 0, 1000)

	for _, key := range []string{"c@y.com", "a@y.com", "b@y.com"} {
		sess.AddRecipient(&ResolvedRecipient{CanonicalKey: key, StorageAvailable: 1000})
	}

	var keys []string
	for _, r := range sess.Recipients() {
		keys = append(keys, r.CanonicalKey)
	}
	assert.Equal(t, []string{"c@y.com", "a@y.com", "b@y.com"}, keys)
}
