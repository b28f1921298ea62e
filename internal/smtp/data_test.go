package smtp

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inletmail/inlet/internal/directory"
	"github.com/inletmail/inlet/internal/msgstore"
)

const testPayload = "Subject: hello\r\n\r\nbody line\r\n"

func expectedMessageID(payload string) string {
	return strings.ToUpper(fmt.Sprintf("%x", sha256.Sum256([]byte(payload))))
}

func TestBodyTransferDeliversToEachRecipient(t *testing.T) {
	dir := newTestDirectory(t)
	dir.AddAccount(directory.Account{ID: "acct-b", Quota: 100000}, "b@y.com")
	dir.AddAccount(directory.Account{ID: "acct-c", Quota: 100000}, "c@y.com")

	store := msgstore.NewMock()
	b := newTestBackend(t, dir, store)
	sess := newTestSession(b, "a@x.com", 0)
	sess.HeloName = "client.example.org"

	require.NoError(t, b.RecipientDeclared(context.Background(), sess, "b@y.com"))
	require.NoError(t, b.RecipientDeclared(context.Background(), sess, "c@y.com"))

	messageID, err := b.BodyTransfer(context.Background(), sess, strings.NewReader(testPayload))
	require.NoError(t, err)
	assert.Equal(t, expectedMessageID(testPayload), messageID)

	deliveries := store.Deliveries()
	require.Len(t, deliveries, 2)

	first := deliveries[0]
	assert.Equal(t, "acct-b", first.AccountID)
	assert.Equal(t, msgstore.FolderInbox, first.Folder)
	assert.Equal(t, "SMTP", first.Meta.Source)
	assert.Equal(t, "a@x.com", first.Meta.Sender)
	assert.Equal(t, "b@y.com", first.Meta.Recipient)
	assert.Equal(t, "192.0.2.7:33445", first.Meta.RemoteAddr)
	assert.Equal(t, "client.example.org", first.Meta.HeloName)

	raw := string(first.Raw)
	assert.True(t, strings.HasPrefix(raw, "Delivered-To: b@y.com\r\nReceived: from client.example.org"))
	assert.Contains(t, raw, " id "+messageID)
	assert.Contains(t, raw, " for <b@y.com>")
	assert.True(t, strings.HasSuffix(raw, testPayload))

	// Second copy gets its own headers on the clean payload
	second := string(deliveries[1].Raw)
	assert.True(t, strings.HasPrefix(second, "Delivered-To: c@y.com\r\n"))
	assert.NotContains(t, second, "Delivered-To: b@y.com")
	assert.Contains(t, second, " for <c@y.com>")
}

func TestBodyTransferMessageIDIsContentAddressed(t *testing.T) {
	dir := newTestDirectory(t)
	dir.AddAccount(directory.Account{ID: "acct-b", Quota: 100000}, "b@y.com")
	dir.AddAccount(directory.Account{ID: "acct-c", Quota: 100000}, "c@y.com")

	run := func(rcpt string) string {
		b := newTestBackend(t, dir, msgstore.NewMock())
		sess := newTestSession(b, "a@x.com", 0)
		require.NoError(t, b.RecipientDeclared(context.Background(), sess, rcpt))
		id, err := b.BodyTransfer(context.Background(), sess, strings.NewReader(testPayload))
		require.NoError(t, err)
		return id
	}

	// Identical payloads yield identical identifiers regardless of
	// recipient set
	assert.Equal(t, run("b@y.com"), run("c@y.com"))
}

func TestBodyTransferTaggedRecipientSingleCopy(t *testing.T) {
	dir := newTestDirectory(t)
	dir.AddAccount(directory.Account{ID: "acct-u", Quota: 100000}, "user@y.com")

	store := msgstore.NewMock()
	b := newTestBackend(t, dir, store)
	sess := newTestSession(b, "a@x.com", 0)

	require.NoError(t, b.RecipientDeclared(context.Background(), sess, "user+promo@y.com"))
	require.NoError(t, b.RecipientDeclared(context.Background(), sess, "user@y.com"))

	_, err := b.BodyTransfer(context.Background(), sess, strings.NewReader(testPayload))
	require.NoError(t, err)

	deliveries := store.Deliveries()
	require.Len(t, deliveries, 1)
	// The first-declared form, tag included, is what the copy carries
	assert.Equal(t, "user+promo@y.com", deliveries[0].Meta.Recipient)
	assert.True(t, strings.HasPrefix(string(deliveries[0].Raw), "Delivered-To: user+promo@y.com\r\n"))
}

func TestBodyTransferStoreFailureDoesNotHaltLoop(t *testing.T) {
	dir := newTestDirectory(t)
	dir.AddAccount(directory.Account{ID: "acct-b", Quota: 100000}, "b@y.com")
	dir.AddAccount(directory.Account{ID: "acct-c", Quota: 100000}, "c@y.com")
	dir.AddAccount(directory.Account{ID: "acct-d", Quota: 100000}, "d@y.com")

	store := msgstore.NewMock()
	store.FailRecipient("b@y.com", errors.New("disk full"))

	b := newTestBackend(t, dir, store)
	sess := newTestSession(b, "a@x.com", 0)
	for _, rcpt := range []string{"b@y.com", "c@y.com", "d@y.com"} {
		require.NoError(t, b.RecipientDeclared(context.Background(), sess, rcpt))
	}

	messageID, err := b.BodyTransfer(context.Background(), sess, strings.NewReader(testPayload))

	// The transaction still reports success to the peer
	require.NoError(t, err)
	assert.NotEmpty(t, messageID)

	assert.Equal(t, 3, store.Attempts())
	deliveries := store.Deliveries()
	require.Len(t, deliveries, 2)
	assert.Equal(t, "c@y.com", deliveries[0].Meta.Recipient)
	assert.Equal(t, "d@y.com", deliveries[1].Meta.Recipient)
}

func TestBodyTransferNoValidRecipients(t *testing.T) {
	store := msgstore.NewMock()
	b := newTestBackend(t, newTestDirectory(t), store)
	sess := newTestSession(b, "a@x.com", 0)

	// Every declaration rejected
	err := b.RecipientDeclared(context.Background(), sess, "nobody@y.com")
	require.Error(t, err)

	_, err = b.BodyTransfer(context.Background(), sess, strings.NewReader(testPayload))

	replyErr := asReplyError(t, err)
	assert.Equal(t, KindNoValidRecipients, replyErr.Kind)
	assert.False(t, replyErr.Temporary())
	assert.Equal(t, 0, store.Attempts())
}

func TestBodyTransferActualSizeExceedsQuota(t *testing.T) {
	dir := newTestDirectory(t)
	dir.AddAccount(directory.Account{ID: "acct-c", Quota: 500, StorageUsed: 490}, "c@y.com")

	store := msgstore.NewMock()
	b := newTestBackend(t, dir, store)

	// Declared SIZE understates the payload, so admission passes
	sess := newTestSession(b, "a@x.com", 5)
	require.NoError(t, b.RecipientDeclared(context.Background(), sess, "c@y.com"))

	payload := strings.Repeat("x", 100)
	_, err := b.BodyTransfer(context.Background(), sess, strings.NewReader(payload))

	replyErr := asReplyError(t, err)
	assert.Equal(t, KindInsufficientStorage, replyErr.Kind)
	assert.True(t, replyErr.Temporary())
	assert.Equal(t, 0, store.Attempts())
}

func TestBodyTransferMessageTooLarge(t *testing.T) {
	dir := newTestDirectory(t)
	dir.AddAccount(directory.Account{ID: "acct-b", Quota: 1 << 30}, "b@y.com")

	store := msgstore.NewMock()
	b := newTestBackend(t, dir, store)
	b.config.MaxMessageSize = 64

	sess := newTestSession(b, "a@x.com", 0)
	require.NoError(t, b.RecipientDeclared(context.Background(), sess, "b@y.com"))

	payload := strings.Repeat("x", 200)
	_, err := b.BodyTransfer(context.Background(), sess, strings.NewReader(payload))

	replyErr := asReplyError(t, err)
	assert.Equal(t, KindMessageTooLarge, replyErr.Kind)
	assert.False(t, replyErr.Temporary())
	assert.Equal(t, 0, store.Attempts())
}

func TestBodyTransferStreamFailure(t *testing.T) {
	dir := newTestDirectory(t)
	dir.AddAccount(directory.Account{ID: "acct-b", Quota: 100000}, "b@y.com")

	store := msgstore.NewMock()
	b := newTestBackend(t, dir, store)
	sess := newTestSession(b, "a@x.com", 0)
	require.NoError(t, b.RecipientDeclared(context.Background(), sess, "b@y.com"))

	broken := &brokenReader{data: []byte("partial pay"), err: errors.New("connection reset")}
	_, err := b.BodyTransfer(context.Background(), sess, broken)

	replyErr := asReplyError(t, err)
	assert.Equal(t, KindStreamReadFailure, replyErr.Kind)
	assert.True(t, replyErr.Temporary())
	assert.Equal(t, 0, store.Attempts())
}

// brokenReader yields its data, then fails instead of returning EOF.
type brokenReader struct {
	data []byte
	err  error
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}
