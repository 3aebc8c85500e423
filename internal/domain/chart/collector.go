package chart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"spotifychart/internal/gateway/spotify"
	"spotifychart/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source источник данных чарта
type Source interface {
	GetPlaylistTracks(ctx context.Context, playlistRef string) ([]*spotify.Track, error)
	GetAudioFeatures(ctx context.Context, trackIDs []string) (map[string]*spotify.AudioFeatures, error)
	GetArtistGenres(ctx context.Context, artistIDs []string) (map[string][]string, error)
}

var _ Source = (spotify.Interface)(nil)

// Checkpointer сохраняет промежуточные данные во время сбора
type Checkpointer interface {
	SaveCheckpoint(entries []model.ChartEntry, slot time.Time) (string, error)
}

// Sink получает итоговые данные сбора
type Sink interface {
	Name() string
	Write(ctx context.Context, result *Result) error
}

// Options настройки сборщика
type Options struct {
	PlaylistRef string
	// RequestDelay пауза после каждого успешного снимка
	RequestDelay time.Duration
	// IntermediateEvery промежуточное сохранение каждые N строк
	IntermediateEvery int
	// Follow ждать наступления будущих слотов
	Follow bool
}

// Result итог сбора за период
type Result struct {
	RunID       uuid.UUID
	Period      Period
	Entries     []model.ChartEntry
	FailedSlots []time.Time
	Checkpoints []string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Collector собирает снимки чарта
type Collector struct {
	source       Source
	checkpointer Checkpointer
	options      Options
	genres       *genreCache
	logger       *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCollector создает новый сборщик. checkpointer может быть nil.
func NewCollector(source Source, checkpointer Checkpointer, options Options, logger *zap.Logger) *Collector {
	if options.IntermediateEvery <= 0 {
		options.IntermediateEvery = 100
	}
	return &Collector{
		source:       source,
		checkpointer: checkpointer,
		options:      options,
		genres:       newGenreCache(),
		logger:       logger,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Snapshot получает текущий чарт и подписывает его временем слота
func (c *Collector) Snapshot(ctx context.Context, runID uuid.UUID, slot time.Time) ([]model.ChartEntry, error) {
	tracks, err := c.source.GetPlaylistTracks(ctx, c.options.PlaylistRef)
	if err != nil {
		return nil, fmt.Errorf("failed to get chart tracks: %w", err)
	}

	fetchedAt := c.now()

	trackIDs := make([]string, 0, len(tracks))
	artistIDs := make([]string, 0, len(tracks))
	for _, t := range tracks {
		trackIDs = append(trackIDs, t.ID)
		artistIDs = append(artistIDs, t.PrimaryArtistID())
	}

	// Характеристики и жанры запрашиваем параллельно, их ошибки не срывают снимок
	var features map[string]*spotify.AudioFeatures
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var ferr error
		features, ferr = c.source.GetAudioFeatures(gctx, trackIDs)
		if ferr != nil {
			c.logger.Warn("Failed to get audio features, leaving them empty", zap.Error(ferr))
		}
		return nil
	})
	g.Go(func() error {
		c.loadGenres(gctx, artistIDs)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := make([]model.ChartEntry, 0, len(tracks))
	for i, t := range tracks {
		genres, _ := c.genres.Get(t.PrimaryArtistID())

		entry := model.ChartEntry{
			RunID:       runID,
			Slot:        slot,
			FetchedAt:   fetchedAt,
			Date:        slot.Format("20060102"),
			Time:        slot.Format("15:04"),
			Rank:        i + 1,
			TrackID:     t.ID,
			Title:       t.Title,
			Artists:     joinArtists(t.Artists),
			Album:       t.Album,
			ReleaseDate: t.ReleaseDate,
			Genres:      model.JoinGenres(genres),
			Popularity:  t.Popularity,
			AlbumImage:  t.AlbumImage,
		}
		if f, ok := features[t.ID]; ok && f != nil {
			entry.SetFeatures(model.Features(*f))
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// loadGenres дозагружает жанры исполнителей, которых еще нет в кэше
func (c *Collector) loadGenres(ctx context.Context, artistIDs []string) {
	missing := c.genres.Missing(artistIDs)
	if len(missing) == 0 {
		return
	}

	genres, err := c.source.GetArtistGenres(ctx, missing)
	if err != nil {
		c.logger.Warn("Failed to get artist genres", zap.Int("artists", len(missing)), zap.Error(err))
	}
	// Частичный результат тоже сохраняем
	c.genres.Store(genres)
}

func joinArtists(artists []spotify.Artist) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// Collect собирает снимки по всем слотам периода.
// Ошибка слота логируется и не прерывает сбор. При отмене контекста
// возвращается частичный результат вместе с ctx.Err().
func (c *Collector) Collect(ctx context.Context, period Period) (*Result, error) {
	result := &Result{
		RunID:     uuid.New(),
		Period:    period,
		StartedAt: c.now(),
	}
	defer func() { result.FinishedAt = c.now() }()

	slots := period.Slots()
	lastCheckpoint := 0

	c.logger.Info("Starting chart collection",
		zap.String("run_id", result.RunID.String()),
		zap.Time("start", period.Start),
		zap.Time("end", period.End),
		zap.Int("slots", len(slots)))

	for i, slot := range slots {
		if c.options.Follow {
			if wait := slot.Sub(c.now()); wait > 0 {
				c.logger.Info("Waiting for slot", zap.Time("slot", slot), zap.Duration("wait", wait))
				if err := c.sleep(ctx, wait); err != nil {
					return result, err
				}
			}
		}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		entries, err := c.Snapshot(ctx, result.RunID, slot)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			c.logger.Error("Failed to collect chart slot",
				zap.Time("slot", slot),
				zap.Error(err))
			result.FailedSlots = append(result.FailedSlots, slot)
		} else {
			result.Entries = append(result.Entries, entries...)

			if err := c.sleep(ctx, c.options.RequestDelay); err != nil {
				return result, err
			}
		}

		// Промежуточное сохранение на каждом новом кратном пороге
		if n := len(result.Entries); n > 0 && n != lastCheckpoint && n%c.options.IntermediateEvery == 0 {
			lastCheckpoint = n
			c.checkpoint(result, slot)
		}

		c.logger.Info("Chart slot processed",
			zap.Int("slot", i+1),
			zap.Int("total_slots", len(slots)),
			zap.Time("slot_time", slot),
			zap.Int("rows", len(result.Entries)))
	}

	c.logger.Info("Chart collection finished",
		zap.String("run_id", result.RunID.String()),
		zap.Int("rows", len(result.Entries)),
		zap.Int("failed_slots", len(result.FailedSlots)),
		zap.Int("cached_artists", c.genres.Len()))

	return result, nil
}

func (c *Collector) checkpoint(result *Result, slot time.Time) {
	if c.checkpointer == nil {
		return
	}
	path, err := c.checkpointer.SaveCheckpoint(result.Entries, slot)
	if err != nil {
		c.logger.Error("Failed to save intermediate data", zap.Error(err))
		return
	}
	result.Checkpoints = append(result.Checkpoints, path)
	c.logger.Info("Intermediate data saved", zap.String("path", path), zap.Int("rows", len(result.Entries)))
}

// Publish передает результат во все приемники. Ошибки приемников объединяются.
func Publish(ctx context.Context, result *Result, logger *zap.Logger, sinks ...Sink) error {
	var errs []error
	for _, sink := range sinks {
		if err := sink.Write(ctx, result); err != nil {
			logger.Error("Failed to write chart data", zap.String("sink", sink.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		logger.Info("Chart data written", zap.String("sink", sink.Name()), zap.Int("rows", len(result.Entries)))
	}
	return errors.Join(errs...)
}
