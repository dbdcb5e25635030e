package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/patrimon/patrimon/internal/shared"
)

type memStats struct {
	mu    sync.Mutex
	calls int
}

func (m *memStats) CountsByStatus(_ context.Context, branches []int64) (map[string]int, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if len(branches) > 0 {
		return map[string]int{"APPROVED": 2, "PENDING": 1}, nil
	}
	return map[string]int{"APPROVED": 10, "PENDING": 3, "TRANSFER_PENDING": 2, "WRITTEN_OFF": 5}, nil
}

func (m *memStats) TotalValue(_ context.Context, _ []int64) (float64, error) {
	return 125000.50, nil
}

func (m *memStats) OpenRequests(_ context.Context) (int, error) {
	return 4, nil
}

var adminActor = shared.Actor{ID: 1, Role: shared.RoleAdmin}

func newCachedService(t *testing.T) (*Service, *memStats) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	stats := &memStats{}
	return NewService(stats, client, slog.Default()), stats
}

func TestSummaryAggregates(t *testing.T) {
	service := NewService(&memStats{}, nil, slog.Default())

	summary, err := service.Summary(context.Background(), adminActor)
	require.NoError(t, err)
	require.Equal(t, 20, summary.TotalAssets)
	require.Equal(t, 5, summary.PendingApproval)
	require.Equal(t, 4, summary.OpenRequests)
	require.Equal(t, 125000.50, summary.TotalValue)
	require.Equal(t, "125,000.50", summary.DisplayValue)
}

func TestSummaryUsesCache(t *testing.T) {
	service, stats := newCachedService(t)

	first, err := service.Summary(context.Background(), adminActor)
	require.NoError(t, err)
	second, err := service.Summary(context.Background(), adminActor)
	require.NoError(t, err)

	require.Equal(t, first.TotalAssets, second.TotalAssets)
	require.Equal(t, 1, stats.calls)
}

func TestSummaryScopesCachePerBranchSet(t *testing.T) {
	service, stats := newCachedService(t)
	operator := shared.Actor{ID: 2, Role: shared.RoleOperator, Branches: []int64{1}}

	global, err := service.Summary(context.Background(), adminActor)
	require.NoError(t, err)
	scoped, err := service.Summary(context.Background(), operator)
	require.NoError(t, err)

	require.Equal(t, 20, global.TotalAssets)
	require.Equal(t, 3, scoped.TotalAssets)
	require.Equal(t, 2, stats.calls)
}

func TestSummaryCollapsesConcurrentBuilds(t *testing.T) {
	service, stats := newCachedService(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Summary(context.Background(), adminActor)
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	// Racing requests share one aggregation through singleflight; a
	// straggler may still rebuild after the first flight lands, but the
	// cache keeps it far below one build per request.
	require.LessOrEqual(t, stats.calls, 2)
}
