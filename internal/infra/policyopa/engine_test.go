package policyopa

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"contractseal/internal/domain"
)

func TestEngineAllowsParty(t *testing.T) {
	engine := mustDefaultEngine(t)
	out, err := engine.Evaluate(context.Background(), basePolicyInput())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !out.Result.Allow || len(out.Result.Deny) != 0 {
		t.Fatalf("expected allow, got %+v", out.Result)
	}
	if out.PolicyHash == "" || out.PolicyHash != engine.PolicyHash() {
		t.Fatalf("evaluation must carry the policy hash")
	}
}

func TestEngineDeterministic(t *testing.T) {
	engine := mustDefaultEngine(t)
	input := basePolicyInput()
	input.Signer.UserID = "stranger"
	input.Status = domain.StatusSigned
	first, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for i := 0; i < 5; i++ {
		next, err := engine.Evaluate(context.Background(), input)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if !reflect.DeepEqual(first, next) {
			t.Fatalf("evaluation changed between runs")
		}
	}
}

func TestEnginePolicyDenies(t *testing.T) {
	engine := mustDefaultEngine(t)

	tests := []struct {
		name   string
		mutate func(*domain.SigningPolicyInput)
		want   []string
	}{
		{
			name: "signer not party",
			mutate: func(input *domain.SigningPolicyInput) {
				input.Signer.UserID = "mallory"
			},
			want: []string{domain.DenySignerNotParty},
		},
		{
			name: "no parties",
			mutate: func(input *domain.SigningPolicyInput) {
				input.Parties = nil
			},
			want: []string{domain.DenySignerNotParty},
		},
		{
			name: "already signed",
			mutate: func(input *domain.SigningPolicyInput) {
				input.Status = domain.StatusSigned
			},
			want: []string{domain.DenyStatusInvalid},
		},
		{
			name: "everything wrong",
			mutate: func(input *domain.SigningPolicyInput) {
				input.Signer.UserID = "mallory"
				input.Status = domain.StatusUnsigned
				input.HasOrigin = false
			},
			want: []string{domain.DenyNoArtifact, domain.DenySignerNotParty, domain.DenyStatusInvalid},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := basePolicyInput()
			tt.mutate(&input)
			out, err := engine.Evaluate(context.Background(), input)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if out.Result.Allow {
				t.Fatalf("expected deny")
			}
			if got := denyOrder(out.Result.Deny); !reflect.DeepEqual(tt.want, got) {
				t.Fatalf("deny codes: got %v want %v", got, tt.want)
			}
		})
	}
}

func TestEngineFromPath(t *testing.T) {
	dir := t.TempDir()
	regoContent := `package contractseal.signing
result := {"allow": false, "deny": [{"code": "FROZEN"}]}`
	if err := os.WriteFile(filepath.Join(dir, "policy.rego"), []byte(regoContent), 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}
	engine, err := NewEngineFromPath(context.Background(), dir)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	out, err := engine.Evaluate(context.Background(), basePolicyInput())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.Result.Allow || denyOrder(out.Result.Deny)[0] != "FROZEN" {
		t.Fatalf("unexpected result %+v", out.Result)
	}
	if engine.PolicyHash() == mustDefaultEngine(t).PolicyHash() {
		t.Fatalf("different policies must hash differently")
	}
}

func TestEngineFromMissingPath(t *testing.T) {
	_, err := NewEngineFromPath(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPolicyHashStable(t *testing.T) {
	a, err := ComputePolicyHash(map[string][]byte{"a.rego": []byte("x"), "b.rego": []byte("y")})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := ComputePolicyHash(map[string][]byte{"b.rego": []byte("y"), "a.rego": []byte("x")})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a != b {
		t.Fatalf("hash depends on map order")
	}
}

func TestEngineRejectsTimeBuiltin(t *testing.T) {
	rejectBuiltin(t, "time.now_ns()")
}

func TestEngineRejectsHttpSend(t *testing.T) {
	rejectBuiltin(t, "http.send({\"method\": \"get\", \"url\": \"https://example.com\"})")
}

func TestEngineRejectsRand(t *testing.T) {
	rejectBuiltin(t, "rand.intn(\"seed\", 10)")
}

func rejectBuiltin(t *testing.T, expr string) {
	t.Helper()
	dir := t.TempDir()
	regoContent := `package contractseal.signing
result := {"allow": true, "deny": []} {
  ` + expr + `
}`
	if err := os.WriteFile(filepath.Join(dir, "policy.rego"), []byte(regoContent), 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}

	_, err := NewEngineFromPath(context.Background(), dir)
	if err == nil {
		t.Fatalf("expected builtin to be rejected")
	}
}

func mustDefaultEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewDefaultEngine(context.Background())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func basePolicyInput() domain.SigningPolicyInput {
	return domain.SigningPolicyInput{
		ContractID: "c1",
		Status:     domain.StatusPendingSignature,
		Parties:    []string{"landlord-1", "u42"},
		Signer:     domain.PolicySigner{UserID: "u42", Email: "tenant@example.com"},
		HasOrigin:  true,
	}
}

func denyOrder(deny []domain.PolicyDeny) []string {
	out := make([]string, 0, len(deny))
	for _, item := range deny {
		out = append(out, item.Code)
	}
	return out
}
