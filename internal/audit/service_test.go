package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memTimeline struct {
	rows []TimelineRow
}

func (m *memTimeline) TimelineWindow(_ context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	var matched []TimelineRow
	for _, row := range m.rows {
		if filters.Entity != "" && row.Entity != filters.Entity {
			continue
		}
		if filters.EntityID != "" && row.EntityID != filters.EntityID {
			continue
		}
		if filters.ActorID != 0 && row.ActorID != filters.ActorID {
			continue
		}
		matched = append(matched, row)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func seedRows(n int) []TimelineRow {
	rows := make([]TimelineRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, TimelineRow{
			ID:       int64(n - i),
			Entity:   "assets",
			EntityID: "7",
			Action:   fmt.Sprintf("entry %d", n-i),
			At:       time.Now().Add(-time.Duration(i) * time.Minute),
		})
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	service := NewService(&memTimeline{rows: seedRows(45)})

	result, err := service.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 20)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)

	result, err = service.Timeline(context.Background(), TimelineFilters{Page: 3})
	require.NoError(t, err)
	require.Len(t, result.Rows, 5)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.PrevPage)
}

func TestTimelineCapsPageSize(t *testing.T) {
	service := NewService(&memTimeline{rows: seedRows(80)})

	result, err := service.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Len(t, result.Rows, 50)
	require.Equal(t, 50, result.Paging.PageSize)
}

func TestTimelineEmptyPage(t *testing.T) {
	service := NewService(&memTimeline{})

	result, err := service.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.NotNil(t, result.Rows)
	require.Empty(t, result.Rows)
	require.False(t, result.Paging.HasNext)
}

func TestEntityHistoryFilters(t *testing.T) {
	store := &memTimeline{rows: append(seedRows(3), TimelineRow{
		ID: 99, Entity: "requests", EntityID: "4", Action: "Request approved",
	})}
	service := NewService(store)

	result, err := service.EntityHistory(context.Background(), "assets", "7", 1, 10)
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)
	for _, row := range result.Rows {
		require.Equal(t, "assets", row.Entity)
	}
}
