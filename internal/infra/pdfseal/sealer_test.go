package pdfseal

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"contractseal/internal/infra/render"
	"contractseal/internal/usecase"
)

func renderOriginal(t *testing.T) []byte {
	t.Helper()
	out, err := render.New("").Render(context.Background(), "c1", map[string]string{
		"rent":   "Rent: 5,000,000 VND/month",
		"tenant": "u42",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return out
}

func TestEmbedExtractRoundTrip(t *testing.T) {
	s := New()
	original := renderOriginal(t)
	signedAt := time.Date(2026, 1, 1, 0, 0, 0, 123_000_000, time.UTC)
	want := usecase.EmbeddedSignature{
		SignerName:   "Tran Thi B",
		SignerEmail:  "tenant@example.com",
		SignerID:     "u42",
		Reason:       "Lease agreement",
		Location:     "Ho Chi Minh City",
		IPAddress:    "203.0.113.7",
		SignedAt:     signedAt,
		ReferenceID:  "8d5e3a56-4b8f-4f9e-a7c6-2f1f2f0d9b11",
		OriginalHash: "3f8a2c9d1e7b4a6f3f8a2c9d1e7b4a6f3f8a2c9d1e7b4a6f3f8a2c9d1e7b4a6f",
		Seal:         "a1b2c3d4",
	}

	signed, err := s.Embed(context.Background(), original, want)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if bytes.Equal(signed, original) {
		t.Fatal("signed document must differ from original")
	}

	got, err := s.Extract(context.Background(), signed)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if *got != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", *got, want)
	}
	if n, err := s.PageCount(signed); err != nil || n != 1 {
		t.Fatalf("page count = %d, %v", n, err)
	}
}

func TestExtractUnsigned(t *testing.T) {
	s := New()
	_, err := s.Extract(context.Background(), renderOriginal(t))
	if !errors.Is(err, ErrNoSignature) {
		t.Fatalf("expected ErrNoSignature, got %v", err)
	}
}

func TestEmbedRejectsGarbage(t *testing.T) {
	s := New()
	if _, err := s.Embed(context.Background(), []byte("not a pdf"), usecase.EmbeddedSignature{Seal: "x"}); err == nil {
		t.Fatal("expected error for non-pdf input")
	}
}
