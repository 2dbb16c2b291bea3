package domain

import "time"

// SignatureValidity is the fixed freshness window of a signature record.
const SignatureValidity = 90 * 24 * time.Hour

type SignerMetadata struct {
	SignerID    string
	SignerEmail string
	Location    string
	IPAddress   string
}

type SignatureRecord struct {
	ID          string
	ContractID  string
	Hash        string
	HMAC        string
	QRCode      string
	SignedAt    time.Time
	ExpiresAt   time.Time
	SignerID    string
	SignerEmail string
	Location    string
	IPAddress   string
}

func (r SignatureRecord) ExpiredAt(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

type VerificationOutcome string

const (
	OutcomeValid    VerificationOutcome = "VALID"
	OutcomeTampered VerificationOutcome = "TAMPERED"
	OutcomeExpired  VerificationOutcome = "EXPIRED"
	OutcomeError    VerificationOutcome = "ERROR"
)

// Reasons attached to non-valid outcomes.
const (
	ReasonHashMismatch      = "hash_mismatch"
	ReasonHMACMismatch      = "hmac_mismatch"
	ReasonExpired           = "signature_expired"
	ReasonSignatureNotFound = "signature_not_found"
	ReasonSealInvalid       = "embedded_seal_invalid"
	ReasonOriginalMismatch  = "original_hash_mismatch"
	ReasonStoreError        = "store_error"
)

// VerificationResult keeps integrity and freshness apart: TAMPERED means the
// content or its HMAC does not match, EXPIRED means both matched but the
// validity window lapsed.
type VerificationResult struct {
	ContractID string
	Outcome    VerificationOutcome
	Reason     string
	Record     *SignatureRecord
	CheckedAt  time.Time
}

func (r VerificationResult) Valid() bool {
	return r.Outcome == OutcomeValid
}

// IntegrityIntact is true when hash and HMAC matched, regardless of expiry.
func (r VerificationResult) IntegrityIntact() bool {
	return r.Outcome == OutcomeValid || r.Outcome == OutcomeExpired
}

type VerificationAttempt struct {
	ContractID string
	Timestamp  time.Time
	Outcome    VerificationOutcome
	ActorID    string
}

type SignerInfo struct {
	UserID   string
	Name     string
	Email    string
	Reason   string
	Location string
}

type SigningContext struct {
	IPAddress  string
	UserAgent  string
	DeviceInfo string
}
