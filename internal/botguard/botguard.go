// Package botguard produces optional attestation tokens that are attached to
// InnerTube requests as the x-goog-ext-123-botguard header.
package botguard

import (
	"context"
	"time"
)

// HeaderName is the request header that carries the token.
const HeaderName = "x-goog-ext-123-botguard"

// Mode defines how Botguard solving is used.
type Mode int

const (
	// Off disables Botguard usage entirely.
	Off Mode = iota
	// Force runs attestation before every InnerTube player request.
	Force
)

// String returns the mode name.
func (m Mode) String() string {
	if m == Force {
		return "force"
	}
	return "off"
}

// Input carries the parameters required to perform Botguard attestation.
type Input struct {
	UserAgent     string `json:"userAgent"`
	PageURL       string `json:"pageUrl"`
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
	VisitorID     string `json:"visitorId"`
	VideoID       string `json:"videoId,omitempty"`
}

// Output contains an attestation result.
type Output struct {
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the token is usable at now. A zero ExpiresAt never
// expires.
func (o Output) Valid(now time.Time) bool {
	return o.Token != "" && (o.ExpiresAt.IsZero() || now.Before(o.ExpiresAt))
}

// Solver computes a token for the given input.
type Solver interface {
	Attest(ctx context.Context, input Input) (Output, error)
}

// Cache stores tokens between requests of one run.
type Cache interface {
	Get(key string) (Output, bool)
	Set(key string, value Output)
}

// KeyFromInput derives a cache key from the fields that shape a token.
func KeyFromInput(in Input) string {
	return in.UserAgent + "|" + in.ClientName + "|" + in.ClientVersion + "|" + in.VisitorID
}

// Attester combines a solver with an optional cache and a default TTL.
type Attester struct {
	Solver Solver
	Cache  Cache
	// TTL is applied when the solver does not report an expiry.
	TTL time.Duration

	now func() time.Time
}

// NewAttester returns an Attester backed by an in-memory cache.
func NewAttester(solver Solver, ttl time.Duration) *Attester {
	return &Attester{Solver: solver, Cache: NewMemoryCache(), TTL: ttl}
}

func (a *Attester) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

// Token returns a cached token for in, or asks the solver for a new one.
func (a *Attester) Token(ctx context.Context, in Input) (string, error) {
	key := KeyFromInput(in)
	if a.Cache != nil {
		if out, ok := a.Cache.Get(key); ok && out.Valid(a.clock()) {
			return out.Token, nil
		}
	}

	out, err := a.Solver.Attest(ctx, in)
	if err != nil {
		return "", err
	}
	if out.ExpiresAt.IsZero() && a.TTL > 0 {
		out.ExpiresAt = a.clock().Add(a.TTL)
	}
	if a.Cache != nil && out.Token != "" {
		a.Cache.Set(key, out)
	}
	return out.Token, nil
}
