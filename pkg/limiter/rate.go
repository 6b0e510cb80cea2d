package limiter

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rohmanhakim/site-archiver/pkg/timeutil"
)

// RateLimiter
// Specialized component to manage politeness during crawling
// Responsibilities:
// - Bookkeep each hostname's last fetch timestamp
// - Compute the final delay for each hostname given various factors
// - Make sure the crawling process respects the remote server's load
type RateLimiter interface {
	SetBaseDelay(baseDelay time.Duration)
	SetJitter(jitter time.Duration)
	SetRandomSeed(randomSeed int64)
	SetCrawlDelay(host string, delay time.Duration)
	SetRateLimit(requests int, window time.Duration)
	Backoff(host string)
	ResetBackoff(host string)
	MarkLastFetchAsNow(host string)
	ResolveDelay(host string) time.Duration
	Wait(ctx context.Context, host string) error
}

type ConcurrentRateLimiter struct {
	mu          sync.RWMutex
	rngMu       sync.Mutex
	baseDelay   time.Duration
	jitter      time.Duration
	hostTimings map[string]hostTiming

	// optional token-bucket layer on top of the delay resolution
	rateEnabled bool
	rateLimit   rate.Limit
	rateBurst   int
	buckets     map[string]*rate.Limiter

	rng *rand.Rand
}

func NewConcurrentRateLimiter() *ConcurrentRateLimiter {
	return &ConcurrentRateLimiter{
		hostTimings: make(map[string]hostTiming),
		buckets:     make(map[string]*rate.Limiter),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ConcurrentRateLimiter) SetBaseDelay(baseDelay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.baseDelay = baseDelay
}

func (r *ConcurrentRateLimiter) SetJitter(jitter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jitter = jitter
}

func (r *ConcurrentRateLimiter) SetRandomSeed(randomSeed int64) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	r.rng = rand.New(rand.NewSource(randomSeed))
}

// SetRateLimit enables a per-host token bucket allowing the given number
// of requests per window. Zero or negative values disable the bucket layer.
func (r *ConcurrentRateLimiter) SetRateLimit(requests int, window time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if requests <= 0 || window <= 0 {
		r.rateEnabled = false
		return
	}
	r.rateEnabled = true
	r.rateLimit = rate.Limit(float64(requests) / window.Seconds())
	r.rateBurst = requests
	r.buckets = make(map[string]*rate.Limiter)
}

// Set delay to given host, separated from global base delay
func (r *ConcurrentRateLimiter) SetCrawlDelay(host string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentHostTiming := r.hostTimings[host]
	currentHostTiming.crawlDelay = delay
	r.hostTimings[host] = currentHostTiming
}

// exponentialBackoffDelay computes exponential backoff based on count
// Does NOT take lock; caller must hold r.mu (RLock or Lock)
func (r *ConcurrentRateLimiter) exponentialBackoffDelay(backoffCount int) time.Duration {
	initialBackoff := 1 * time.Second
	multiplier := 2.0
	maxBackoff := 30 * time.Second

	// Compute exponential: initial * (multiplier ^ (count - 1))
	// First backoff (count=1): initialBackoff
	exponent := float64(backoffCount - 1)
	delay := float64(initialBackoff) * math.Pow(multiplier, exponent)
	if delay > float64(maxBackoff) {
		delay = float64(maxBackoff)
	}

	if r.jitter > 0 {
		jitterValue := r.computeJitter(r.jitter)
		delay += float64(jitterValue)
	}

	return time.Duration(delay)
}

// Backoff triggers exponential backoff for the given host.
// It increments the backoff counter and computes the delay.
func (r *ConcurrentRateLimiter) Backoff(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentHostTiming := r.hostTimings[host]
	currentHostTiming.backoffCount++
	currentHostTiming.backoffDelay = r.exponentialBackoffDelay(currentHostTiming.backoffCount)
	r.hostTimings[host] = currentHostTiming
}

// ResetBackoff resets the backoff counter for the given host.
// Called after a successful request to clear backoff state.
func (r *ConcurrentRateLimiter) ResetBackoff(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentHostTiming, exists := r.hostTimings[host]
	if exists {
		currentHostTiming.backoffCount = 0
		currentHostTiming.backoffDelay = time.Duration(0)
		r.hostTimings[host] = currentHostTiming
	}
}

// Mark the given host lastFetch to time.Now()
func (r *ConcurrentRateLimiter) MarkLastFetchAsNow(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	currentHostTiming := r.hostTimings[host]
	currentHostTiming.lastFetchAt = now
	// keep the reservation cursor from lagging behind real fetches
	if currentHostTiming.nextSlotAt.Before(now) {
		currentHostTiming.nextSlotAt = now
	}
	r.hostTimings[host] = currentHostTiming
}

// Compute jitter for the given max duration
// Returns a pseudo-random duration between 0 and max (inclusive)
func (r *ConcurrentRateLimiter) computeJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return time.Duration(r.rng.Int63n(int64(max)))
}

// SetRNG allows injecting a custom random number generator for testing
func (r *ConcurrentRateLimiter) SetRNG(rng *rand.Rand) {
	r.rngMu.Lock()
	r.rng = rng
	r.rngMu.Unlock()
}

// Compute the final delay resolution for given host
// FinalDelay = max(BaseDelay, crawlDelay, BackoffDelay) + Jitter
func (r *ConcurrentRateLimiter) ResolveDelay(host string) time.Duration {
	// copy needed state under read lock, then compute without holding r.mu
	r.mu.RLock()
	currentHostTiming, exists := r.hostTimings[host]
	base := r.baseDelay
	jitter := r.jitter
	r.mu.RUnlock()

	// return no delay if the host not registered yet
	if !exists {
		return time.Duration(0)
	}

	delays := []time.Duration{base, currentHostTiming.crawlDelay, currentHostTiming.backoffDelay}

	// compute the highest delay between BaseDelay, crawlDelay, and BackoffDelay
	finalDelay := timeutil.MaxDuration(delays)

	// add jitter to the final delay (computeJitter protects rng)
	finalDelay += r.computeJitter(jitter)

	elapsed := time.Since(currentHostTiming.lastFetchAt)

	// return the remaining time since the host last been fetched,
	// else don't delay
	if elapsed < finalDelay {
		return finalDelay - elapsed
	}

	return time.Duration(0)
}

// reserveSlot grants the caller a fetch slot for the host and advances the
// host's reservation cursor in the same critical section. Concurrent waiters
// on one host therefore receive consecutive slots spaced by the resolved
// delay instead of all observing the same lastFetch timestamp and clearing
// together. Returns how long the caller must sleep until its slot.
func (r *ConcurrentRateLimiter) reserveSlot(host string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	currentHostTiming, exists := r.hostTimings[host]
	if !exists {
		// first contact: fetch immediately, start the cursor here
		currentHostTiming.nextSlotAt = now
		r.hostTimings[host] = currentHostTiming
		return time.Duration(0)
	}

	gap := timeutil.MaxDuration([]time.Duration{
		r.baseDelay,
		currentHostTiming.crawlDelay,
		currentHostTiming.backoffDelay,
	})
	// computeJitter only takes rngMu; safe while holding r.mu
	gap += r.computeJitter(r.jitter)

	anchor := currentHostTiming.nextSlotAt
	if anchor.Before(currentHostTiming.lastFetchAt) {
		anchor = currentHostTiming.lastFetchAt
	}
	slot := anchor.Add(gap)
	if slot.Before(now) {
		slot = now
	}
	currentHostTiming.nextSlotAt = slot
	r.hostTimings[host] = currentHostTiming

	return slot.Sub(now)
}

// Wait blocks until the politeness constraints for the host are satisfied
// or the context is cancelled. The delay is a reservation: each call claims
// the host's next fetch slot before sleeping, then the optional token
// bucket layer applies on top.
func (r *ConcurrentRateLimiter) Wait(ctx context.Context, host string) error {
	if host == "" {
		return nil
	}

	if delay := r.reserveSlot(host); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	bucket := r.bucketFor(host)
	if bucket != nil {
		if err := bucket.Wait(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (r *ConcurrentRateLimiter) bucketFor(host string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.rateEnabled {
		return nil
	}
	bucket, exists := r.buckets[host]
	if !exists {
		bucket = rate.NewLimiter(r.rateLimit, r.rateBurst)
		r.buckets[host] = bucket
	}
	return bucket
}

func (r *ConcurrentRateLimiter) GetBaseDelay() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.baseDelay
}

func (r *ConcurrentRateLimiter) GetJitter() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jitter
}

// timing-related data used to track when to fetch host during crawling
type hostTiming struct {
	lastFetchAt  time.Time
	nextSlotAt   time.Time
	backoffDelay time.Duration
	crawlDelay   time.Duration
	backoffCount int
}
