package ratelimit

import (
	"errors"
	"testing"
	"time"

	"contractseal/internal/domain"
)

func TestParsePolicies(t *testing.T) {
	def := Policy{Limit: 60, Window: time.Minute}
	policies, err := ParsePolicies(" shared=30 , verify_batch=5/10,qr_verify=0", def)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cases := map[string]Policy{
		"shared":       {Limit: 30, Window: time.Minute},
		"verify_batch": {Limit: 5, Window: 10 * time.Second},
		"qr_verify":    {Limit: 0, Window: time.Minute},
		"verify":       def,
	}
	for route, want := range cases {
		if got := policies.For(route); got != want {
			t.Fatalf("%s: got %+v want %+v", route, got, want)
		}
	}
	if !policies.Enabled() {
		t.Fatal("policies with a positive default are enabled")
	}
}

func TestParsePoliciesRejectsMalformed(t *testing.T) {
	for _, spec := range []string{"shared", "=5", "shared=x", "shared=-1", "shared=5/0", "shared=5/abc"} {
		if _, err := ParsePolicies(spec, Policy{}); !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("%q: expected ErrConfiguration, got %v", spec, err)
		}
	}
}

func TestPoliciesEnabledByOverrideOnly(t *testing.T) {
	policies, err := ParsePolicies("shared=3", Policy{Window: time.Minute})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !policies.Enabled() || policies.For("verify").Limit != 0 {
		t.Fatalf("unexpected policies %+v", policies)
	}
	if (Policies{}).Enabled() {
		t.Fatal("zero policies must be disabled")
	}
}
