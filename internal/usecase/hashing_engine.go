package usecase

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"contractseal/internal/domain"
	"contractseal/pkg/qrpayload"
)

// HashingEngine computes content digests and keyed authenticity codes.
type HashingEngine struct {
	secret []byte
	Clock  Clock
	Logger *slog.Logger
}

// NewHashingEngine fails with domain.ErrConfiguration when secret is empty so
// a misconfigured deployment never reaches its first signing call.
func NewHashingEngine(secret string, clock Clock, logger *slog.Logger) (*HashingEngine, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: hashing secret is required", domain.ErrConfiguration)
	}
	return &HashingEngine{
		secret: []byte(secret),
		Clock:  clock,
		Logger: logger,
	}, nil
}

func (e *HashingEngine) Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ComputeHMAC is HMAC-SHA256(secret, contractID ":" hash ":" epochMillis).
func (e *HashingEngine) ComputeHMAC(contractID, hash string, signedAt time.Time) string {
	mac := hmac.New(sha256.New, e.secret)
	_, _ = mac.Write([]byte(contractID + ":" + hash + ":" + strconv.FormatInt(signedAt.UnixMilli(), 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// EqualHMAC compares two hex codes over their full length in constant time.
func (e *HashingEngine) EqualHMAC(expected, provided string) bool {
	want, err := hex.DecodeString(expected)
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(provided))
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}

// Seal is a keyed digest over embedded signature fields. Keys are sorted so
// the result does not depend on map order.
func (e *HashingEngine) Seal(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	mac := hmac.New(sha256.New, e.secret)
	for _, k := range keys {
		_, _ = mac.Write([]byte(k))
		_, _ = mac.Write([]byte{0})
		_, _ = mac.Write([]byte(fields[k]))
		_, _ = mac.Write([]byte{0})
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateSignature hashes content, authenticates the hash and appends the
// resulting record through tx, so it commits or rolls back together with
// whatever status transition the caller makes in the same transaction.
func (e *HashingEngine) GenerateSignature(ctx context.Context, tx Tx, contractID string, content []byte, meta *domain.SignerMetadata) (domain.SignatureRecord, error) {
	if tx == nil {
		return domain.SignatureRecord{}, errors.New("transaction is required")
	}
	if err := domain.ValidateContractID(contractID); err != nil {
		return domain.SignatureRecord{}, err
	}

	signedAt := e.now().UTC().Truncate(time.Millisecond)
	hash := e.Hash(content)
	mac := e.ComputeHMAC(contractID, hash, signedAt)

	record := domain.SignatureRecord{
		ContractID: contractID,
		Hash:       hash,
		HMAC:       mac,
		QRCode:     qrpayload.Encode(contractID, hash, mac, signedAt),
		SignedAt:   signedAt,
		ExpiresAt:  signedAt.Add(domain.SignatureValidity),
	}
	if meta != nil {
		record.SignerID = meta.SignerID
		record.SignerEmail = meta.SignerEmail
		record.Location = meta.Location
		record.IPAddress = meta.IPAddress
	}

	stored, err := tx.Signatures().Append(ctx, record)
	if err != nil {
		return domain.SignatureRecord{}, fmt.Errorf("persist signature for contract %s: %w", contractID, err)
	}

	e.logger().Debug("signature generated",
		"contract_id", contractID,
		"hash_prefix", hash[:12],
		"expires_at", stored.ExpiresAt,
	)
	return stored, nil
}

func (e *HashingEngine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *HashingEngine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
