// Package aggregator turns the tail of a fail2ban log into ban and unban counters.
//
// Every refresh reads only what was appended since the previous one (bounded to the last
// MaxLines lines), so each log line is counted at most once for the lifetime of the process.
// Refresh, Render and Scrape are serialized by a single mutex.
package aggregator

import (
	"context"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/timanema/fail2ban-exporter/internal/logger"
	"github.com/timanema/fail2ban-exporter/internal/metrics"
	"github.com/timanema/fail2ban-exporter/pkg/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"sync"
	"time"
)

var tracer = otel.Tracer("github.com/timanema/fail2ban-exporter/internal/aggregator")

type Options struct {
	Path         string
	MaxLines     int
	// MaxLineBytes defaults to DefaultMaxLineBytes when zero.
	MaxLineBytes int
	Retention    time.Duration
	ReadTimeout  time.Duration
	Patterns     PatternConfig
}

type Aggregator struct {
	mu sync.Mutex

	log        *logger.Logger
	store      storage.Storage
	exposition *metrics.Exposition
	patterns   *Patterns
	opts       Options

	cur cursor
	now func() time.Time
}

func New(log *logger.Logger, store storage.Storage, exposition *metrics.Exposition, opts Options) (*Aggregator, error) {
	if opts.Path == "" {
		return nil, errors.New("log path is required")
	}
	if opts.MaxLines <= 0 {
		return nil, errors.Errorf("max lines must be positive, got %d", opts.MaxLines)
	}
	if opts.Retention <= 0 {
		return nil, errors.Errorf("retention must be positive, got %v", opts.Retention)
	}
	if opts.MaxLineBytes < 0 {
		return nil, errors.Errorf("max line bytes must not be negative, got %d", opts.MaxLineBytes)
	}
	if opts.MaxLineBytes == 0 {
		opts.MaxLineBytes = DefaultMaxLineBytes
	}

	patterns, err := NewPatterns(opts.Patterns)
	if err != nil {
		return nil, err
	}

	return &Aggregator{
		log:        log,
		store:      store,
		exposition: exposition,
		patterns:   patterns,
		opts:       opts,
		now:        time.Now,
	}, nil
}

// Refresh records the events appended to the log file since the last refresh.
// Missing files and read failures leave the counters untouched; the last update time is always bumped.
func (a *Aggregator) Refresh(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.refresh(ctx)
}

// Render returns the current counters in the text exposition format.
func (a *Aggregator) Render() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.exposition.Render()
}

// Scrape refreshes and renders as one unit.
func (a *Aggregator) Scrape(ctx context.Context) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.refresh(ctx)
	return a.exposition.Render()
}

func (a *Aggregator) refresh(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "aggregator.refresh")
	defer span.End()

	id := uuid.NewString()
	now := a.now()
	defer func() {
		if err := a.store.SetLastUpdate(now); err != nil {
			a.log.Error().Err(err).Str("refresh", id).Msg("failed to set last update")
		}
	}()

	if a.opts.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.ReadTimeout)
		defer cancel()
	}

	lines, next, err := readLines(ctx, a.opts.Path, a.cur, a.opts.MaxLines, a.opts.MaxLineBytes)
	if errors.Is(err, errMissing) {
		a.log.Debug().Str("refresh", id).Str("path", a.opts.Path).Msg("log file not present, skipping refresh")
		return
	}
	if err != nil {
		a.log.Error().Err(err).Str("refresh", id).Str("path", a.opts.Path).Msg("error parsing logs")
		span.RecordError(err)
		span.SetStatus(codes.Error, "log read failed")
		return
	}
	a.cur = next

	cutoff := now.Add(-a.opts.Retention)
	var bans, unbans int
	for _, line := range lines {
		ev, ok := a.patterns.Parse(line)
		if !ok || !ev.Time.After(cutoff) {
			continue
		}

		switch ev.Kind {
		case BanEvent:
			err = a.store.AddBan(ev.Address, ev.Jail)
			bans++
		case UnbanEvent:
			err = a.store.AddUnban(ev.Jail)
			unbans++
		}
		if err != nil {
			a.log.Warn().Err(err).Str("refresh", id).Str("kind", ev.Kind.String()).Str("jail", ev.Jail).Msg("failed to record event")
		}
	}

	span.SetAttributes(
		attribute.Int("lines", len(lines)),
		attribute.Int("bans", bans),
		attribute.Int("unbans", unbans),
	)
	a.log.Debug().
		Str("refresh", id).
		Int("lines", len(lines)).
		Int("bans", bans).
		Int("unbans", unbans).
		Int64("offset", next.offset).
		Msg("refreshed counters")
}
