package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"contractseal/internal/domain"
)

// Policy is the request budget of one route. A non-positive Limit disables
// limiting for that route.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Policies holds per-route budgets. Routes without an override use Default.
type Policies struct {
	Default Policy
	Routes  map[string]Policy
}

func (p Policies) For(route string) Policy {
	if override, ok := p.Routes[route]; ok {
		return override
	}
	return p.Default
}

// Enabled reports whether any route is limited.
func (p Policies) Enabled() bool {
	if p.Default.Limit > 0 {
		return true
	}
	for _, policy := range p.Routes {
		if policy.Limit > 0 {
			return true
		}
	}
	return false
}

// ParsePolicies reads overrides of the form "shared=30,verify_batch=5/60",
// where the optional suffix is the window in seconds. Overrides without a
// window inherit the default one.
func ParsePolicies(spec string, def Policy) (Policies, error) {
	policies := Policies{Default: def, Routes: map[string]Policy{}}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		route, budget, ok := strings.Cut(entry, "=")
		route = strings.TrimSpace(route)
		if !ok || route == "" {
			return Policies{}, fmt.Errorf("%w: rate limit override %q must be route=requests[/seconds]", domain.ErrConfiguration, entry)
		}
		limitPart, windowPart, hasWindow := strings.Cut(strings.TrimSpace(budget), "/")
		limit, err := strconv.Atoi(limitPart)
		if err != nil || limit < 0 {
			return Policies{}, fmt.Errorf("%w: rate limit for %s must be a non-negative integer", domain.ErrConfiguration, route)
		}
		policy := Policy{Limit: limit, Window: def.Window}
		if hasWindow {
			seconds, err := strconv.Atoi(windowPart)
			if err != nil || seconds <= 0 {
				return Policies{}, fmt.Errorf("%w: rate limit window for %s must be positive seconds", domain.ErrConfiguration, route)
			}
			policy.Window = time.Duration(seconds) * time.Second
		}
		policies.Routes[route] = policy
	}
	return policies, nil
}
