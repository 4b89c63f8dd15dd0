package secret

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

const refPrefix = "secretref:"

// refPattern finds references embedded in a longer value. The reference
// ends at the first whitespace.
var refPattern = regexp.MustCompile(`secretref:([^:\s]+):(\S+)`)

// Resolver turns configuration values into secrets. Values first go
// through ExpandEnvStrict; every secretref:<provider>:<ref> left in the
// result is then replaced by what the provider returns.
type Resolver struct {
	providers map[string]Provider
	strict    bool
}

// NewResolver creates a Resolver over providers, keyed by Name. Nil
// providers are skipped. A strict resolver rejects references that
// resolve to "".
func NewResolver(strict bool, providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider, len(providers)), strict: strict}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// ResolveValue resolves one value. A nil Resolver only expands the
// environment.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil || r == nil {
		return expanded, err
	}

	// A value that is exactly one reference may carry any characters in
	// its ref, whitespace included.
	if provider, ref, ok := ParseSecretRef(expanded); ok {
		return r.lookup(ctx, provider, ref)
	}

	matches := refPattern.FindAllStringSubmatchIndex(expanded, -1)
	if len(matches) == 0 {
		return expanded, nil
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		secret, err := r.lookup(ctx, expanded[m[2]:m[3]], expanded[m[4]:m[5]])
		if err != nil {
			return "", err
		}
		b.WriteString(expanded[last:m[0]])
		b.WriteString(secret)
		last = m[1]
	}
	b.WriteString(expanded[last:])
	return b.String(), nil
}

// ResolveSlice resolves every value, failing on the first error.
func (r *Resolver) ResolveSlice(ctx context.Context, values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for i, v := range values {
		resolved, err := r.ResolveValue(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out = append(out, resolved)
	}
	return out, nil
}

// ParseSecretRef splits a value of the exact form
// secretref:<provider>:<ref>. The ref may itself contain colons.
func ParseSecretRef(value string) (provider, ref string, ok bool) {
	rest, found := strings.CutPrefix(value, refPrefix)
	if !found {
		return "", "", false
	}
	provider, ref, found = strings.Cut(rest, ":")
	if !found || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}

func (r *Resolver) lookup(ctx context.Context, provider, ref string) (string, error) {
	if strings.TrimSpace(provider) == "" || strings.TrimSpace(ref) == "" {
		return "", ErrInvalidRef
	}
	p, ok := r.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	secret, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if r.strict && secret == "" {
		return "", fmt.Errorf("%w: %s:%s", ErrEmptySecret, provider, ref)
	}
	return secret, nil
}
