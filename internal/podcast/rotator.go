package podcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"lifecoach/backend/internal/apperr"
	"lifecoach/backend/internal/domain"
)

var tracer = otel.Tracer("lifecoach/podcast")

const (
	DefaultInterval = 24 * time.Hour
	DefaultLimit    = 3

	// cron's @every schedule starts from the whole second, so a tick can
	// land just short of a full interval after the startup rotation.
	tickSlack = time.Minute
)

type RotatorConfig struct {
	Interval time.Duration
	Limit    int
	Now      func() time.Time
}

// Rotator refreshes the catalog from the feed. A rotation replaces the
// catalog only when every series was fetched.
type Rotator struct {
	catalog  *Catalog
	feed     Feed
	interval time.Duration
	limit    int
	now      func() time.Time
	log      *slog.Logger

	// run serializes checks so the cron job and a manual trigger never
	// rotate at the same time.
	run  sync.Mutex
	cron *cron.Cron
}

func NewRotator(catalog *Catalog, feed Feed, cfg RotatorConfig, log *slog.Logger) *Rotator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Rotator{
		catalog:  catalog,
		feed:     feed,
		interval: cfg.Interval,
		limit:    cfg.Limit,
		now:      cfg.Now,
		log:      log.With(slog.String("component", "podcast")),
	}
}

// Check rotates when force is set or the catalog is older than the interval.
// It reports whether the catalog was replaced.
func (r *Rotator) Check(ctx context.Context, force bool) (bool, error) {
	r.run.Lock()
	defer r.run.Unlock()

	now := r.now()
	if !force && !r.due(now) {
		r.log.DebugContext(ctx, "podcast catalog is fresh", slog.Time("last_updated", r.catalog.LastUpdated()))
		return false, nil
	}

	ctx, span := tracer.Start(ctx, "podcast.rotate")
	defer span.End()
	span.SetAttributes(attribute.Bool("podcast.forced", force))

	snap := Snapshot{
		Episodes: make(map[string][]domain.PodcastEpisode),
		Totals:   make(map[string]int),
	}
	for _, s := range r.catalog.Series() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		items, total, err := r.feed.LatestEpisodes(ctx, s.ShowID, r.limit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "feed failed")
			return false, apperr.Remote(fmt.Sprintf("fetch episodes for %s", s.ID), err)
		}
		if len(items) > r.limit {
			items = items[:r.limit]
		}
		eps := make([]domain.PodcastEpisode, 0, len(items))
		for _, it := range items {
			eps = append(eps, ToEpisode(s.ID, it))
		}
		snap.Episodes[s.ID] = eps
		snap.Totals[s.ID] = total
	}

	r.catalog.ReplaceEpisodes(snap, now)
	r.log.InfoContext(ctx, "podcast catalog rotated", slog.Int("series", len(snap.Episodes)))
	return true, nil
}

// due reports whether the catalog is older than the interval, allowing for
// scheduler jitter. An empty catalog is always due.
func (r *Rotator) due(now time.Time) bool {
	last := r.catalog.LastUpdated()
	if last.IsZero() {
		return true
	}
	return now.Sub(last) > r.interval-min(tickSlack, r.interval/2)
}

// Start runs an immediate check and then one per interval until Stop.
// Scheduled failures are logged; the previous catalog stays in place.
func (r *Rotator) Start(ctx context.Context) error {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", r.interval)
	if _, err := c.AddFunc(spec, func() { r.auto(ctx) }); err != nil {
		return fmt.Errorf("podcast: schedule rotation: %w", err)
	}
	r.cron = c

	go r.auto(ctx)
	c.Start()
	return nil
}

func (r *Rotator) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// Trigger forces a rotation and returns its error to the caller.
func (r *Rotator) Trigger(ctx context.Context) error {
	_, err := r.Check(ctx, true)
	return err
}

func (r *Rotator) auto(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := r.Check(ctx, false); err != nil {
		r.log.ErrorContext(ctx, "scheduled podcast rotation failed", slog.Any("err", err))
	}
}
