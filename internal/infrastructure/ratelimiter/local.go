package ratelimiter

import (
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter keeps one rate.Limiter per source in process memory. It suits
// sources that live on a single node, such as websocket connections.
type LocalLimiter struct {
	limit           rate.Limit
	burst           int
	sourceHeaderKey string
	now             func() time.Time

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewLocal(options Options) *LocalLimiter {
	if options.MaxBurst <= 0 {
		options.MaxBurst = options.MaxRatePerSecond
	}
	if options.SourceHeaderKey == "" {
		options.SourceHeaderKey = defaultSourceKey
	}
	if options.Clock == nil {
		options.Clock = time.Now
	}

	return &LocalLimiter{
		limit:           rate.Limit(options.MaxRatePerSecond),
		burst:           options.MaxBurst,
		sourceHeaderKey: options.SourceHeaderKey,
		now:             options.Clock,
		buckets:         make(map[string]*rate.Limiter),
	}
}

func (l *LocalLimiter) bucket(sourceKey string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[sourceKey]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[sourceKey] = b
	}
	return b
}

func (l *LocalLimiter) Allow(sourceKey string) bool {
	return l.bucket(sourceKey).AllowN(l.now(), 1)
}

func (l *LocalLimiter) Remaining(sourceKey string) int {
	tokens := l.bucket(sourceKey).TokensAt(l.now())
	if tokens < 0 {
		return 0
	}
	return int(math.Floor(tokens))
}

func (l *LocalLimiter) GetMaxBurst() int {
	return l.burst
}

// Forget releases the bucket; a returning source starts full.
func (l *LocalLimiter) Forget(sourceKey string) {
	l.mu.Lock()
	delete(l.buckets, sourceKey)
	l.mu.Unlock()
}

func (l *LocalLimiter) GetSourceKey(r *http.Request) string {
	if key := r.Header.Get(l.sourceHeaderKey); key != "" {
		return key
	}
	return r.RemoteAddr
}
