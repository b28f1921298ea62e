package smtp

// Session is the per-connection state threading the envelope-validation and
// delivery stages together. It is exclusively owned by its connection
// handler; the three pipeline callbacks for one session never run
// concurrently, so no locking is needed here.
type Session struct {
	// ID identifies the session in logs
	ID string

	// Connection facts supplied by the protocol engine, read-only to the
	// pipeline.
	RemoteAddr       string
	ClientHostname   string // reverse-DNS name of the peer, if known
	HeloName         string // hostname the peer declared in HELO/EHLO
	TransmissionType string // e.g. "SMTP", "ESMTP", "ESMTPS"
	TLS              *TLSInfo

	// Sender is the declared envelope sender of the current transaction
	Sender string

	// DeclaredSize is the SIZE hint from sender declaration; zero when the
	// peer declared none. Advisory only: the actual payload may be larger.
	DeclaredSize int64

	recipients map[string]*ResolvedRecipient
	order      []string
	maxStorage int64
}

// TLSInfo carries negotiated TLS facts when the connection is encrypted.
type TLSInfo struct {
	Version string
	Cipher  string
}

// ResolvedRecipient is one validated recipient of the current transaction.
type ResolvedRecipient struct {
	// OriginalAddress is the address exactly as declared on the wire,
	// subaddress tag included.
	OriginalAddress string

	// CanonicalKey is the normalized address with any +tag stripped; it is
	// the de-duplication key and what the directory was consulted with.
	CanonicalKey string

	// AccountID references the owning account in the directory
	AccountID string

	// StorageAvailable is the account's remaining quota in bytes, computed
	// once at resolution time.
	StorageAvailable int64
}

// NewSession creates a session for one inbound connection
func NewSession(id, remoteAddr string) *Session {
	return &Session{
		ID:         id,
		RemoteAddr: remoteAddr,
		recipients: make(map[string]*ResolvedRecipient),
	}
}

// BeginTransaction starts a fresh transaction scope. A connection may carry
// several transactions, so recipients and the storage bound are reset
// explicitly to avoid leakage between them.
func (s *Session) BeginTransaction(sender string, declaredSize, storageCeiling int64) {
	s.Sender = sender
	s.DeclaredSize = declaredSize
	s.recipients = make(map[string]*ResolvedRecipient)
	s.order = s.order[:0]
	s.maxStorage = storageCeiling
}

// Recipient returns the already-resolved recipient for a canonical key
func (s *Session) Recipient(canonicalKey string) (*ResolvedRecipient, bool) {
	r, ok := s.recipients[canonicalKey]
	return r, ok
}

// AddRecipient records a resolved recipient and tightens the storage bound.
// The bound only ever decreases: it is the minimum remaining quota across
// all recipients of the transaction.
func (s *Session) AddRecipient(r *ResolvedRecipient) {
	if _, exists := s.recipients[r.CanonicalKey]; exists {
		return
	}
	s.recipients[r.CanonicalKey] = r
	s.order = append(s.order, r.CanonicalKey)
	if r.StorageAvailable < s.maxStorage {
		s.maxStorage = r.StorageAvailable
	}
}

// Recipients returns the resolved recipients in declaration order
func (s *Session) Recipients() []*ResolvedRecipient {
	out := make([]*ResolvedRecipient, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.recipients[key])
	}
	return out
}

// RecipientCount returns the number of distinct resolved recipients
func (s *Session) RecipientCount() int {
	return len(s.recipients)
}

// MaxAllowedStorage returns the tightest remaining-quota bound seen so far
func (s *Session) MaxAllowedStorage() int64 {
	return s.maxStorage
}
