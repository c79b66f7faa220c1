package browser

import (
	"context"
	"math/rand"
	"time"

	"github.com/maltedev/channel-catalog-scraper/internal/ratelimit"
)

// DelayRange bounds a randomized pause.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Pick returns a random duration inside the range.
func (r DelayRange) Pick() time.Duration {
	return ratelimit.Jitter(r.Min, r.Max)
}

// Policy bundles the evasion knobs of a crawl: which identity the browser
// presents and how long it pauses between interactions. Tests swap in
// NoDelayPolicy to make crawls instant and deterministic.
type Policy struct {
	UserAgents   []string
	ScrollStep   DelayRange
	Settle       DelayRange
	AfterDismiss DelayRange
}

func DefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

func DefaultPolicy() *Policy {
	return &Policy{
		UserAgents:   DefaultUserAgents(),
		ScrollStep:   DelayRange{Min: 1500 * time.Millisecond, Max: 2500 * time.Millisecond},
		Settle:       DelayRange{Min: 3 * time.Second, Max: 4 * time.Second},
		AfterDismiss: DelayRange{Min: 1 * time.Second, Max: 2 * time.Second},
	}
}

// NoDelayPolicy presents a single fixed identity and never pauses.
func NoDelayPolicy(userAgent string) *Policy {
	return &Policy{UserAgents: []string{userAgent}}
}

// UserAgent picks an identity from the pool.
func (p *Policy) UserAgent() string {
	pool := p.UserAgents
	if len(pool) == 0 {
		pool = DefaultUserAgents()
	}
	return pool[rand.Intn(len(pool))]
}

// Pause sleeps for a random duration inside r, returning early with the
// context error when ctx is done.
func (p *Policy) Pause(ctx context.Context, r DelayRange) error {
	return ratelimit.Sleep(ctx, r.Pick())
}
