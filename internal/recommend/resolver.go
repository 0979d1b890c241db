package recommend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"journez/backend/internal/parse"
	"journez/backend/internal/places"
	"journez/backend/internal/util"
)

// Lookuper resolves a place name within a location. A nil detail with a nil
// error means no match.
type Lookuper interface {
	Lookup(ctx context.Context, name, location string) (*places.Detail, error)
}

// ResolverConfig bounds directory traffic.
type ResolverConfig struct {
	MaxInFlight    int
	RateLimit      float64 // lookups per second, 0 disables limiting
	Burst          int
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// ProgressFunc is told about every finished lookup. Calls are serialized.
type ProgressFunc func(done, total int)

// Resolver enriches extracted items with directory details.
type Resolver struct {
	lookup         Lookuper
	limiter        *rate.Limiter
	maxInFlight    int
	timeout        time.Duration
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewResolver applies defaults to cfg. A nil lookup yields a resolver that
// reports places.ErrMissingCredential.
func NewResolver(lookup Lookuper, cfg ResolverConfig) *Resolver {
	r := &Resolver{
		lookup:         lookup,
		maxInFlight:    cfg.MaxInFlight,
		timeout:        cfg.Timeout,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}
	if r.maxInFlight <= 0 {
		r.maxInFlight = 8
	}
	if r.timeout <= 0 {
		r.timeout = 10 * time.Second
	}
	if r.maxRetries < 0 {
		r.maxRetries = 0
	}
	if r.initialBackoff <= 0 {
		r.initialBackoff = 500 * time.Millisecond
	}
	if r.maxBackoff < r.initialBackoff {
		r.maxBackoff = 8 * r.initialBackoff
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return r
}

// Ready reports whether lookups can be attempted.
func (r *Resolver) Ready() bool {
	return r != nil && r.lookup != nil
}

// Resolve looks up every item of every section with bounded concurrency.
// Result slot [i][j] belongs to sections[i].Items[j]. Per-item failures are
// logged and leave a nil slot; only cancellation of ctx fails the call.
func (r *Resolver) Resolve(ctx context.Context, location string, sections []parse.Section, progress ProgressFunc) ([][]*places.Detail, error) {
	if !r.Ready() {
		return nil, places.ErrMissingCredential
	}

	slots := make([][]*places.Detail, len(sections))
	total := 0
	for i, section := range sections {
		slots[i] = make([]*places.Detail, len(section.Items))
		total += len(section.Items)
	}

	var (
		mu   sync.Mutex
		done int
	)
	report := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxInFlight)
	for i, section := range sections {
		for j, item := range section.Items {
			i, j, item := i, j, item
			g.Go(func() error {
				detail, err := r.resolveItem(gctx, item.Name, location)
				if err != nil && ctx.Err() != nil {
					return ctx.Err()
				}
				slots[i][j] = detail
				report()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slots, nil
}

func (r *Resolver) resolveItem(ctx context.Context, name, location string) (*places.Detail, error) {
	timer := util.StartTimer()
	detail, err := r.lookupWithRetry(ctx, name, location)
	placeLookupDuration.Observe(timer.Seconds())

	fields := logrus.Fields{
		"place":      name,
		"location":   location,
		"elapsed_ms": timer.ElapsedMs(),
	}
	switch {
	case err != nil:
		placeLookupsTotal.WithLabelValues("error").Inc()
		if ctx.Err() == nil {
			logrus.WithFields(fields).WithError(err).Warn("place lookup failed; keeping item without details")
		}
	case detail == nil:
		placeLookupsTotal.WithLabelValues("no_match").Inc()
		logrus.WithFields(fields).Debug("no directory match")
	default:
		placeLookupsTotal.WithLabelValues("match").Inc()
	}
	return detail, err
}

func (r *Resolver) lookupWithRetry(ctx context.Context, name, location string) (*places.Detail, error) {
	delay := r.initialBackoff
	for attempt := 0; ; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		detail, err := r.lookup.Lookup(callCtx, name, location)
		cancel()
		if err == nil {
			return detail, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt >= r.maxRetries || !shouldRetryLookup(err) {
			return nil, err
		}

		placeLookupRetriesTotal.Inc()
		logrus.WithFields(logrus.Fields{
			"place":   name,
			"attempt": attempt + 1,
			"delay":   delay.String(),
		}).WithError(err).Debug("retrying place lookup")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > r.maxBackoff {
			delay = r.maxBackoff
		}
	}
}

func shouldRetryLookup(err error) bool {
	return places.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}
