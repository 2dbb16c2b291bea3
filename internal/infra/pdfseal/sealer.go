package pdfseal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"contractseal/internal/usecase"
)

var _ usecase.Sealer = (*Sealer)(nil)

// ErrNoSignature is returned by Extract when the document carries no
// embedded signature properties.
var ErrNoSignature = errors.New("pdf has no embedded signature")

// Document info keys written by Embed.
const (
	keySignerName   = "SealSignerName"
	keySignerEmail  = "SealSignerEmail"
	keySignerID     = "SealSignerID"
	keyReason       = "SealReason"
	keyLocation     = "SealLocation"
	keyIPAddress    = "SealIPAddress"
	keySignedAt     = "SealSignedAt"
	keyReferenceID  = "SealReferenceID"
	keyOriginalHash = "SealOriginalHash"
	keySeal         = "SealHMAC"
)

func init() {
	api.DisableConfigDir()
}

// Sealer records signer identity in a PDF's document information
// dictionary through pdfcpu.
type Sealer struct {
	conf *model.Configuration
}

func New() *Sealer {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Sealer{conf: conf}
}

func (s *Sealer) Embed(ctx context.Context, original []byte, sig usecase.EmbeddedSignature) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := api.Validate(bytes.NewReader(original), s.conf); err != nil {
		return nil, fmt.Errorf("validate original pdf: %w", err)
	}
	props := map[string]string{
		keySignerName:   sig.SignerName,
		keySignerEmail:  sig.SignerEmail,
		keySignerID:     sig.SignerID,
		keyReason:       sig.Reason,
		keyLocation:     sig.Location,
		keyIPAddress:    sig.IPAddress,
		keySignedAt:     strconv.FormatInt(sig.SignedAt.UnixMilli(), 10),
		keyReferenceID:  sig.ReferenceID,
		keyOriginalHash: sig.OriginalHash,
		keySeal:         sig.Seal,
	}
	for k, v := range props {
		if v == "" {
			delete(props, k)
		}
	}
	out := &bytes.Buffer{}
	if err := api.AddProperties(bytes.NewReader(original), out, props, s.conf); err != nil {
		return nil, fmt.Errorf("add signature properties: %w", err)
	}
	return out.Bytes(), nil
}

func (s *Sealer) Extract(ctx context.Context, signed []byte) (*usecase.EmbeddedSignature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	props, err := api.Properties(bytes.NewReader(signed), s.conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf properties: %w", err)
	}
	seal, ok := props[keySeal]
	if !ok || seal == "" {
		return nil, ErrNoSignature
	}
	millis, err := strconv.ParseInt(props[keySignedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", keySignedAt, err)
	}
	return &usecase.EmbeddedSignature{
		SignerName:   props[keySignerName],
		SignerEmail:  props[keySignerEmail],
		SignerID:     props[keySignerID],
		Reason:       props[keyReason],
		Location:     props[keyLocation],
		IPAddress:    props[keyIPAddress],
		SignedAt:     time.UnixMilli(millis).UTC(),
		ReferenceID:  props[keyReferenceID],
		OriginalHash: props[keyOriginalHash],
		Seal:         seal,
	}, nil
}

// PageCount is used by the CLI to describe a document.
func (s *Sealer) PageCount(data []byte) (int, error) {
	return api.PageCount(bytes.NewReader(data), s.conf)
}
