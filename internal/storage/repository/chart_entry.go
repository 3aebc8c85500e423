// Package repository содержит репозитории для работы с базой данных.
package repository

import (
	"context"
	"fmt"

	"spotifychart/internal/model"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// insertBatchSize ограничивает число строк в одном INSERT
const insertBatchSize = 500

// ChartEntryRepository реализует работу с записями чарта
type ChartEntryRepository struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewChartEntryRepository создает новый репозиторий записей чарта
func NewChartEntryRepository(db *bun.DB, logger *zap.Logger) *ChartEntryRepository {
	return &ChartEntryRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema создает таблицу и уникальный индекс, если их нет
func (r *ChartEntryRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*model.ChartEntry)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create chart_entries table: %w", err)
	}

	_, err = r.db.NewCreateIndex().
		Model((*model.ChartEntry)(nil)).
		Index("chart_entries_run_slot_rank_idx").
		Unique().
		IfNotExists().
		Column("run_id", "slot", "rank").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create chart_entries index: %w", err)
	}

	return nil
}

// upsertColumns все неключевые колонки chart_entries
var upsertColumns = []string{
	"fetched_at", "chart_date", "chart_time", "track_id", "title", "artists", "album",
	"release_date", "genres", "popularity", "danceability", "energy", "key", "tempo",
	"acousticness", "instrumentalness", "liveness", "valence", "album_image",
}

// insertQuery строит upsert по (run_id, slot, rank)
func (r *ChartEntryRepository) insertQuery(db bun.IDB, entries *[]model.ChartEntry) *bun.InsertQuery {
	query := db.NewInsert().
		Model(entries).
		ExcludeColumn("id").
		On("CONFLICT (run_id, slot, rank) DO UPDATE")
	for _, column := range upsertColumns {
		query = query.Set("? = EXCLUDED.?", bun.Ident(column), bun.Ident(column))
	}
	return query
}

// InsertBatch сохраняет записи пачками в одной транзакции
func (r *ChartEntryRepository) InsertBatch(ctx context.Context, entries []model.ChartEntry) error {
	if len(entries) == 0 {
		return nil
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for start := 0; start < len(entries); start += insertBatchSize {
			end := start + insertBatchSize
			if end > len(entries) {
				end = len(entries)
			}
			batch := entries[start:end]
			if _, err := r.insertQuery(tx, &batch).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert rows %d-%d: %w", start, end, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert chart entries: %w", err)
	}

	r.logger.Debug("Chart entries stored", zap.Int("rows", len(entries)))
	return nil
}

// ListByRun возвращает записи запуска в порядке слота и ранга
func (r *ChartEntryRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]model.ChartEntry, error) {
	var entries []model.ChartEntry

	err := r.db.NewSelect().
		Model(&entries).
		Where("run_id = ?", runID).
		Order("slot ASC", "rank ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chart entries: %w", err)
	}

	return entries, nil
}
