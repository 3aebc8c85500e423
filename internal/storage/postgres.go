// Package storage содержит работу с базой данных.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"spotifychart/internal/domain/chart"
	"spotifychart/internal/storage/repository"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"go.uber.org/zap"
)

// ConnectOptions параметры подключения
type ConnectOptions struct {
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConnectOptions 10 попыток с паузой 5 секунд
var DefaultConnectOptions = ConnectOptions{MaxRetries: 10, RetryDelay: 5 * time.Second}

// Postgres представляет подключение к PostgreSQL
type Postgres struct {
	db     *bun.DB
	logger *zap.Logger
}

// Open создает Bun DB без проверки соединения
func Open(databaseURL string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(databaseURL)))

	// Сборщику не нужен большой пул
	sqldb.SetMaxOpenConns(5)
	sqldb.SetMaxIdleConns(2)
	sqldb.SetConnMaxLifetime(5 * time.Minute)
	sqldb.SetConnMaxIdleTime(1 * time.Minute)

	return bun.NewDB(sqldb, pgdialect.New())
}

// NewPostgres создает новое подключение к PostgreSQL с retry логикой
func NewPostgres(ctx context.Context, databaseURL string, opts ConnectOptions, logger *zap.Logger) (*Postgres, error) {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		logger.Info("Attempting to connect to database",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", opts.MaxRetries))

		db := Open(databaseURL)

		// Добавляем отладку в режиме разработки
		if logger.Core().Enabled(zap.DebugLevel) {
			db.AddQueryHook(bundebug.NewQueryHook(
				bundebug.WithVerbose(true),
				bundebug.FromEnv("BUNDEBUG"),
			))
		}

		pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
		lastErr = db.PingContext(pingCtx)
		pingCancel()

		if lastErr == nil {
			logger.Info("Connected to PostgreSQL database with Bun ORM", zap.Int("attempt", attempt))
			return &Postgres{db: db, logger: logger}, nil
		}

		logger.Warn("Failed to connect to database",
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if err := db.Close(); err != nil {
			logger.Warn("Failed to close database connection", zap.Error(err))
		}

		if attempt == opts.MaxRetries {
			break
		}

		logger.Info("Retrying connection", zap.Duration("delay", opts.RetryDelay))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.RetryDelay):
		}
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", opts.MaxRetries, lastErr)
}

// Close закрывает соединение с базой данных
func (p *Postgres) Close() error {
	return p.db.Close()
}

// GetDB возвращает подключение к базе данных
func (p *Postgres) GetDB() *bun.DB {
	return p.db
}

// GetChartEntryRepository возвращает репозиторий записей чарта
func (p *Postgres) GetChartEntryRepository() *repository.ChartEntryRepository {
	return repository.NewChartEntryRepository(p.db, p.logger)
}

// Sink сохраняет результат сбора в PostgreSQL
type Sink struct {
	repo *repository.ChartEntryRepository
}

var _ chart.Sink = (*Sink)(nil)

// NewSink создает приемник и при необходимости создает таблицу
func NewSink(ctx context.Context, p *Postgres) (*Sink, error) {
	repo := p.GetChartEntryRepository()
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return &Sink{repo: repo}, nil
}

// Name реализует chart.Sink
func (s *Sink) Name() string {
	return "postgres"
}

// Write реализует chart.Sink
func (s *Sink) Write(ctx context.Context, result *chart.Result) error {
	return s.repo.InsertBatch(ctx, result.Entries)
}
