package address

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Common errors
var (
	ErrNoAtSign    = errors.New("address must contain exactly one @")
	ErrEmptyLocal  = errors.New("address has an empty local part")
	ErrEmptyDomain = errors.New("address has an empty domain")
)

// TagSeparator splits the local part from a subaddress tag, as in
// user+tag@example.com.
const TagSeparator = "+"

// Address is a parsed internet mail address. Original preserves the address
// exactly as it appeared on the wire; the remaining fields are normalized.
type Address struct {
	Original  string
	LocalPart string
	Tag       string
	Domain    string
}

// Parse splits and normalizes a wire address. The local part and domain are
// NFC-normalized and lowercased; any angle brackets are stripped first. The
// subaddress tag, if present, is separated from the local part.
func Parse(input string) (Address, error) {
	original := strings.TrimSpace(input)
	trimmed := strings.TrimSuffix(strings.TrimPrefix(original, "<"), ">")

	sep := strings.LastIndex(trimmed, "@")
	if sep < 0 {
		return Address{}, ErrNoAtSign
	}

	local := normalize(trimmed[:sep])
	domain := normalize(trimmed[sep+1:])
	if local == "" {
		return Address{}, ErrEmptyLocal
	}
	if domain == "" {
		return Address{}, ErrEmptyDomain
	}

	var tag string
	if i := strings.Index(local, TagSeparator); i >= 0 {
		tag = local[i+1:]
		local = local[:i]
		if local == "" {
			return Address{}, ErrEmptyLocal
		}
	}

	return Address{
		Original:  trimmed,
		LocalPart: local,
		Tag:       tag,
		Domain:    domain,
	}, nil
}

// String returns the normalized address including any subaddress tag.
func (a Address) String() string {
	if a.Tag != "" {
		return a.LocalPart + TagSeparator + a.Tag + "@" + a.Domain
	}
	return a.CanonicalKey()
}

// CanonicalKey returns the normalized address with the subaddress tag
// stripped. Two wire addresses differing only by tag share a canonical key,
// which is what recipient de-duplication and directory lookups key on.
func (a Address) CanonicalKey() string {
	return a.LocalPart + "@" + a.Domain
}

func normalize(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}
