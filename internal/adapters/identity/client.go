// Package identity holds the adapters to the Identity Gate: a local JWT
// verifier and a client for a remote token-introspection service.
package identity

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"housing_reviews/internal/adapters/observability"
	"housing_reviews/internal/domain"
)

// Client asks a remote identity service to introspect bearer tokens.
type Client struct {
	base string
	hc   *http.Client
	rl   *rate.Limiter
}

func NewClient(base string, rps int) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("identity base URL is required")
	}
	if rps <= 0 {
		rps = 50
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 5 * time.Second},
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

type introspection struct {
	Active         bool     `json:"active"`
	Subject        string   `json:"sub"`
	DomainVerified bool     `json:"domain_verified"`
	Roles          []string `json:"roles"`
}

// Verify implements domain.IdentityGate.
func (c *Client) Verify(ctx context.Context, bearer string) (domain.Identity, error) {
	if bearer == "" {
		return domain.Identity{}, domain.ErrNotAuthenticated
	}
	var out introspection
	if err := c.get(ctx, c.base+"/v1/introspect", bearer, &out); err != nil {
		return domain.Identity{}, err
	}
	if !out.Active || out.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: token inactive", domain.ErrNotAuthenticated)
	}
	return domain.Identity{
		UserID:         out.Subject,
		DomainVerified: out.DomainVerified,
		Moderator:      hasModeratorRole(out.Roles),
	}, nil
}

// get performs a GET with client-side rate limiting, retries, and JSON decode into out.
// Retries on 429 and transient 5xx, honoring Retry-After when provided.
// 401/403 from the service mean the token was rejected.
func (c *Client) get(ctx context.Context, url, bearer string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+bearer)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "housing-reviews/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observability.ObserveExternal("identity", "introspect", 0, time.Since(start))
			lastErr = fmt.Errorf("%w: identity service: %v", domain.ErrStoreUnavailable, err)
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("identity", "introspect", resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusUnauthorized, http.StatusForbidden:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return fmt.Errorf("%w: identity service returned %d", domain.ErrNotAuthenticated, resp.StatusCode)

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("%w: identity service returned %d", domain.ErrStoreUnavailable, resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("identity: bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential delay (100ms, 200ms, 400ms...) with up to
// +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 100 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
