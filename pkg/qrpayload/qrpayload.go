// Package qrpayload builds and checks the compact verification string printed
// as a QR code on signed contracts. The payload only carries prefixes of the
// hash and HMAC, which is enough for an optical pre-check but never a
// substitute for full signature verification.
package qrpayload

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	Prefix        = "CONTRACT"
	HashPrefixLen = 16
	SigPrefixLen  = 8

	fieldID   = "ID:"
	fieldHash = "HASH:"
	fieldSig  = "SIG:"
	fieldTime = "TIME:"
)

var ErrMalformed = errors.New("malformed qr payload")

type Payload struct {
	ContractID string
	HashPrefix string
	SigPrefix  string
	Timestamp  time.Time
}

// Encode returns CONTRACT|ID:<id>|HASH:<16 hex upper>|SIG:<8 hex upper>|TIME:<epoch-ms>.
func Encode(contractID, hash, hmac string, at time.Time) string {
	var b strings.Builder
	b.WriteString(Prefix)
	b.WriteString("|" + fieldID)
	b.WriteString(contractID)
	b.WriteString("|" + fieldHash)
	b.WriteString(upperPrefix(hash, HashPrefixLen))
	b.WriteString("|" + fieldSig)
	b.WriteString(upperPrefix(hmac, SigPrefixLen))
	b.WriteString("|" + fieldTime)
	b.WriteString(strconv.FormatInt(at.UnixMilli(), 10))
	return b.String()
}

// Parse splits a payload into its fields. A payload built from a contract id
// containing '|' has extra fields and is reported as malformed.
func Parse(payload string) (Payload, error) {
	parts := strings.Split(payload, "|")
	if len(parts) != 5 || parts[0] != Prefix {
		return Payload{}, ErrMalformed
	}
	id, ok := strings.CutPrefix(parts[1], fieldID)
	if !ok || id == "" {
		return Payload{}, ErrMalformed
	}
	hash, ok := strings.CutPrefix(parts[2], fieldHash)
	if !ok || len(hash) != HashPrefixLen || !isUpperHex(hash) {
		return Payload{}, ErrMalformed
	}
	sig, ok := strings.CutPrefix(parts[3], fieldSig)
	if !ok || len(sig) != SigPrefixLen || !isUpperHex(sig) {
		return Payload{}, ErrMalformed
	}
	rawTime, ok := strings.CutPrefix(parts[4], fieldTime)
	if !ok {
		return Payload{}, ErrMalformed
	}
	ms, err := strconv.ParseInt(rawTime, 10, 64)
	if err != nil || ms < 0 {
		return Payload{}, ErrMalformed
	}
	return Payload{
		ContractID: id,
		HashPrefix: hash,
		SigPrefix:  sig,
		Timestamp:  time.UnixMilli(ms).UTC(),
	}, nil
}

// Verify reports whether payload belongs to contractID and to content with
// the given full hash. Only the ID and HASH fields are compared.
func Verify(payload, contractID, hash string) bool {
	if !strings.HasPrefix(payload, Prefix+"|") {
		return false
	}
	parts := strings.Split(payload, "|")
	if len(parts) < 3 {
		return false
	}
	return parts[1] == fieldID+contractID && parts[2] == fieldHash+upperPrefix(hash, HashPrefixLen)
}

func upperPrefix(value string, n int) string {
	if len(value) > n {
		value = value[:n]
	}
	return strings.ToUpper(value)
}

func isUpperHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
