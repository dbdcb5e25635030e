package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/patrimon/patrimon/internal/notify"
)

// depreciationThresholds are the remaining-day marks that trigger an alert.
// The sweep runs daily, so each mark fires once per asset.
var depreciationThresholds = map[int]bool{60: true, 30: true, 10: true, 0: true}

// DepreciationSweeper alerts responsibles when an asset approaches the end
// of its depreciation window. The window is approximated as the category's
// depreciation months times 30 days.
type DepreciationSweeper struct {
	pool          *pgxpool.Pool
	notifications notify.RepositoryPort
	logger        *slog.Logger
	printer       *message.Printer
}

// NewDepreciationSweeper constructs a DepreciationSweeper.
func NewDepreciationSweeper(pool *pgxpool.Pool, notifications notify.RepositoryPort, logger *slog.Logger) *DepreciationSweeper {
	return &DepreciationSweeper{
		pool:          pool,
		notifications: notifications,
		logger:        logger,
		printer:       message.NewPrinter(language.English),
	}
}

// Handle processes TaskTypeDepreciationSweep tasks.
func (s *DepreciationSweeper) Handle(ctx context.Context, _ *asynq.Task) error {
	alerts, err := s.Sweep(ctx, time.Now())
	if err != nil {
		return err
	}
	s.logger.Info("depreciation sweep finished", slog.Int("alerts", alerts))
	return nil
}

type depreciationRow struct {
	assetID       int64
	description   string
	responsibleID int64
	value         float64
	purchaseDate  time.Time
	months        int
}

// Sweep scans every depreciating asset and stores an alert for each one
// sitting exactly on a threshold. It returns the number of alerts raised.
func (s *DepreciationSweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.pool.Query(ctx, `SELECT a.id, a.description, COALESCE(a.responsible_id, 0), a.value,
a.purchase_date, c.depreciation_months
FROM assets a
JOIN categories c ON c.id = a.category_id
WHERE a.status NOT IN ('WRITTEN_OFF', 'READY_FOR_WRITE_OFF')
  AND a.purchase_date IS NOT NULL
  AND c.depreciation_months > 0`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var pending []depreciationRow
	for rows.Next() {
		var row depreciationRow
		if err := rows.Scan(&row.assetID, &row.description, &row.responsibleID,
			&row.value, &row.purchaseDate, &row.months); err != nil {
			return 0, err
		}
		pending = append(pending, row)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	alerts := 0
	for _, row := range pending {
		if row.responsibleID == 0 {
			continue
		}
		end := row.purchaseDate.AddDate(0, 0, row.months*30)
		daysLeft := int(end.Sub(now).Hours() / 24)
		if !depreciationThresholds[daysLeft] {
			continue
		}
		body := s.printer.Sprintf("Asset %q (value %.2f) fully depreciates in %d days",
			row.description, row.value, daysLeft)
		if daysLeft == 0 {
			body = s.printer.Sprintf("Asset %q (value %.2f) is fully depreciated today",
				row.description, row.value)
		}
		_, err := s.notifications.Insert(ctx, notify.Notification{
			UserID:   row.responsibleID,
			Title:    "Depreciation alert",
			Body:     body,
			Entity:   "asset",
			EntityID: row.assetID,
		})
		if err != nil {
			s.logger.Error("store depreciation alert",
				slog.Int64("asset_id", row.assetID), slog.Any("error", err))
			continue
		}
		alerts++
	}
	return alerts, nil
}
