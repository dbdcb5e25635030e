package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/patrimon/patrimon/internal/shared"
)

// Summary is the aggregated custody overview shown on the landing screen.
type Summary struct {
	TotalAssets     int            `json:"total_assets"`
	ByStatus        map[string]int `json:"by_status"`
	TotalValue      float64        `json:"total_value"`
	DisplayValue    string         `json:"display_value"`
	OpenRequests    int            `json:"open_requests"`
	PendingApproval int            `json:"pending_approval"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// StatsPort aggregates custody figures, optionally scoped to branches.
type StatsPort interface {
	CountsByStatus(ctx context.Context, branches []int64) (map[string]int, error)
	TotalValue(ctx context.Context, branches []int64) (float64, error)
	OpenRequests(ctx context.Context) (int, error)
}

const cacheTTL = 60 * time.Second

// Service builds dashboard summaries. Results are cached in Redis and
// concurrent builds for the same scope are collapsed through singleflight,
// so a cache miss costs one aggregation however many requests race on it.
type Service struct {
	stats   StatsPort
	cache   *redis.Client
	group   singleflight.Group
	logger  *slog.Logger
	printer *message.Printer
}

// NewService constructs the dashboard service. cache may be nil; every
// request then aggregates directly.
func NewService(stats StatsPort, cache *redis.Client, logger *slog.Logger) *Service {
	return &Service{
		stats:   stats,
		cache:   cache,
		logger:  logger,
		printer: message.NewPrinter(language.English),
	}
}

// Summary returns the overview for the actor's scope.
func (s *Service) Summary(ctx context.Context, actor shared.Actor) (Summary, error) {
	var branches []int64
	if !actor.IsGlobal() {
		branches = append(branches, actor.Branches...)
		sort.Slice(branches, func(i, j int) bool { return branches[i] < branches[j] })
	}
	key := cacheKey(branches)

	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	result, err, _ := s.group.Do(key, func() (any, error) {
		// A racing request may have filled the cache while this call
		// queued on the flight group.
		if cached, ok := s.fromCache(ctx, key); ok {
			return cached, nil
		}
		summary, err := s.build(ctx, branches)
		if err != nil {
			return Summary{}, err
		}
		s.toCache(ctx, key, summary)
		return summary, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return result.(Summary), nil
}

func (s *Service) build(ctx context.Context, branches []int64) (Summary, error) {
	summary := Summary{GeneratedAt: time.Now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.stats.CountsByStatus(gctx, branches)
		if err != nil {
			return err
		}
		summary.ByStatus = counts
		return nil
	})
	g.Go(func() error {
		value, err := s.stats.TotalValue(gctx, branches)
		if err != nil {
			return err
		}
		summary.TotalValue = value
		return nil
	})
	g.Go(func() error {
		open, err := s.stats.OpenRequests(gctx)
		if err != nil {
			return err
		}
		summary.OpenRequests = open
		return nil
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	for status, count := range summary.ByStatus {
		summary.TotalAssets += count
		switch status {
		case "PENDING", "TRANSFER_PENDING", "WRITE_OFF_PENDING":
			summary.PendingApproval += count
		}
	}
	summary.DisplayValue = s.printer.Sprintf("%.2f", summary.TotalValue)
	return summary, nil
}

func (s *Service) fromCache(ctx context.Context, key string) (Summary, bool) {
	if s.cache == nil {
		return Summary{}, false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return Summary{}, false
	}
	var summary Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return Summary{}, false
	}
	return summary, true
}

func (s *Service) toCache(ctx context.Context, key string, summary Summary) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
		s.logger.Warn("cache dashboard summary", slog.Any("error", err))
	}
}

func cacheKey(branches []int64) string {
	if len(branches) == 0 {
		return "dashboard:summary:global"
	}
	return fmt.Sprintf("dashboard:summary:branches:%v", branches)
}
