package qrpayload

import (
	"strings"
	"testing"
	"time"
)

const (
	testHash = "3f8a2c9d1e7b4a6f0c5d8e2b9a1f7c3e6d4b8a0f2e9c7d1b5a3f8e6c4d2b0a9f"
	testHMAC = "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"
)

func TestEncodeFormat(t *testing.T) {
	at := time.UnixMilli(1767225600123)
	got := Encode("c1", testHash, testHMAC, at)
	want := "CONTRACT|ID:c1|HASH:3F8A2C9D1E7B4A6F|SIG:A1B2C3D4|TIME:1767225600123"
	if got != want {
		t.Fatalf("unexpected payload\n got: %s\nwant: %s", got, want)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	payload := Encode("c1", testHash, testHMAC, time.Now())
	if !Verify(payload, "c1", testHash) {
		t.Fatal("expected payload to verify")
	}
	if Verify(payload, "c2", testHash) {
		t.Fatal("expected mismatch for other contract")
	}
}

func TestVerifyRejectsCorruptedFields(t *testing.T) {
	payload := Encode("contract-42", testHash, testHMAC, time.UnixMilli(1000))
	idStart := strings.Index(payload, "ID:") + len("ID:")
	hashStart := strings.Index(payload, "HASH:") + len("HASH:")

	positions := []int{}
	for i := idStart; i < idStart+len("contract-42"); i++ {
		positions = append(positions, i)
	}
	for i := hashStart; i < hashStart+HashPrefixLen; i++ {
		positions = append(positions, i)
	}

	for _, pos := range positions {
		b := []byte(payload)
		if b[pos] == 'X' {
			b[pos] = 'Y'
		} else {
			b[pos] = 'X'
		}
		if Verify(string(b), "contract-42", testHash) {
			t.Fatalf("corruption at %d should invalidate payload %q", pos, string(b))
		}
	}
}

func TestVerifyIgnoresSigAndTime(t *testing.T) {
	payload := Encode("c1", testHash, testHMAC, time.UnixMilli(1000))
	other := Encode("c1", testHash, strings.Repeat("0", 64), time.UnixMilli(2000))
	if !Verify(payload, "c1", testHash) || !Verify(other, "c1", testHash) {
		t.Fatal("SIG and TIME are not part of the offline pre-check")
	}
}

func TestVerifyRejectsWrongPrefix(t *testing.T) {
	payload := Encode("c1", testHash, testHMAC, time.Now())
	if Verify(strings.TrimPrefix(payload, "CONTRACT"), "c1", testHash) {
		t.Fatal("expected missing prefix to fail")
	}
	if Verify("", "c1", testHash) {
		t.Fatal("expected empty payload to fail")
	}
}

func TestParse(t *testing.T) {
	at := time.UnixMilli(1767225600123).UTC()
	p, err := Parse(Encode("c1", testHash, testHMAC, at))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.ContractID != "c1" || p.HashPrefix != "3F8A2C9D1E7B4A6F" || p.SigPrefix != "A1B2C3D4" {
		t.Fatalf("unexpected fields: %+v", p)
	}
	if !p.Timestamp.Equal(at) {
		t.Fatalf("expected timestamp %v, got %v", at, p.Timestamp)
	}

	bad := []string{
		"",
		"CONTRACT|ID:c1",
		"CONTRACT|ID:|HASH:3F8A2C9D1E7B4A6F|SIG:A1B2C3D4|TIME:1",
		"CONTRACT|ID:c1|HASH:3f8a2c9d1e7b4a6f|SIG:A1B2C3D4|TIME:1",
		"CONTRACT|ID:c1|HASH:3F8A2C9D1E7B4A6F|SIG:A1B2|TIME:1",
		"CONTRACT|ID:c1|HASH:3F8A2C9D1E7B4A6F|SIG:A1B2C3D4|TIME:abc",
		"RECEIPT|ID:c1|HASH:3F8A2C9D1E7B4A6F|SIG:A1B2C3D4|TIME:1",
	}
	for _, payload := range bad {
		if _, err := Parse(payload); err == nil {
			t.Fatalf("expected parse error for %q", payload)
		}
	}
}
