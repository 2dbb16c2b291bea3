package domain

import (
	"fmt"
	"strings"
	"time"
)

type SignatureStatus string

const (
	StatusUnsigned         SignatureStatus = "UNSIGNED"
	StatusPendingSignature SignatureStatus = "PENDING_SIGNATURE"
	StatusSigned           SignatureStatus = "SIGNED"
	StatusVerified         SignatureStatus = "VERIFIED"
)

// ValidateContractID rejects ids that cannot be carried in a QR payload,
// where '|' separates fields, or used as an artifact key prefix.
func ValidateContractID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: contract_id is required", ErrInvalidInput)
	}
	if strings.ContainsAny(id, `|/\`) || id == "." || id == ".." {
		return fmt.Errorf("%w: contract_id %q is not allowed", ErrInvalidInput, id)
	}
	return nil
}

// CanTransition reports whether the signing state machine allows from -> to.
// The only backwards edge is the re-sign path taken after a content edit.
func CanTransition(from, to SignatureStatus) bool {
	switch from {
	case StatusUnsigned:
		return to == StatusPendingSignature
	case StatusPendingSignature:
		return to == StatusPendingSignature || to == StatusSigned
	case StatusSigned:
		return to == StatusVerified || to == StatusPendingSignature
	case StatusVerified:
		return to == StatusVerified || to == StatusPendingSignature
	default:
		return false
	}
}

type Contract struct {
	ID               string
	Parties          []string
	Fields           map[string]string
	Status           SignatureStatus
	OriginalHash     string
	OriginalLocation string
	SignedLocation   string
	Version          int64
	UpdatedAt        time.Time
}

type ArtifactKind string

const (
	ArtifactOriginal ArtifactKind = "ORIGINAL"
	ArtifactSigned   ArtifactKind = "SIGNED"
)

// ContractArtifact is an immutable rendered document. New signing events
// produce new versions; older versions stay in storage.
type ContractArtifact struct {
	ID         string
	ContractID string
	Kind       ArtifactKind
	Location   string
	Hash       string
	Size       int64
	Version    int
	CreatedAt  time.Time
}
