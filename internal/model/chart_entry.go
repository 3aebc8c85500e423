// Package model содержит модели данных.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UnknownGenre подставляется, если жанры исполнителя неизвестны
const UnknownGenre = "Unknown"

// ChartEntry представляет позицию трека в снимке чарта за один слот
type ChartEntry struct {
	bun.BaseModel `bun:"table:chart_entries"`

	ID        int64     `bun:"id,pk,autoincrement" json:"-"`
	RunID     uuid.UUID `bun:"run_id,type:uuid,notnull" json:"run_id"`
	Slot      time.Time `bun:"slot,notnull" json:"slot"`
	FetchedAt time.Time `bun:"fetched_at,notnull" json:"fetched_at"`

	Date        string `bun:"chart_date,notnull" json:"date"` // YYYYMMDD
	Time        string `bun:"chart_time,notnull" json:"time"` // HH:MM
	Rank        int    `bun:"rank,notnull" json:"rank"`
	TrackID     string `bun:"track_id,notnull" json:"track_id"`
	Title       string `bun:"title,notnull" json:"title"`
	Artists     string `bun:"artists,notnull" json:"artists"`
	Album       string `bun:"album" json:"album"`
	ReleaseDate string `bun:"release_date" json:"release_date"`
	Genres      string `bun:"genres" json:"genres"`
	Popularity  int    `bun:"popularity" json:"popularity"`

	// Аудио-характеристики, nil если Spotify их не вернул
	Danceability     *float64 `bun:"danceability" json:"danceability"`
	Energy           *float64 `bun:"energy" json:"energy"`
	Key              *int     `bun:"key" json:"key"`
	Tempo            *float64 `bun:"tempo" json:"tempo"`
	Acousticness     *float64 `bun:"acousticness" json:"acousticness"`
	Instrumentalness *float64 `bun:"instrumentalness" json:"instrumentalness"`
	Liveness         *float64 `bun:"liveness" json:"liveness"`
	Valence          *float64 `bun:"valence" json:"valence"`

	AlbumImage string `bun:"album_image" json:"album_image"`
}

// Features аудио-характеристики в плоском виде
type Features struct {
	Danceability     float64
	Energy           float64
	Key              int
	Tempo            float64
	Acousticness     float64
	Instrumentalness float64
	Liveness         float64
	Valence          float64
}

// SetFeatures заполняет аудио-характеристики записи
func (e *ChartEntry) SetFeatures(f Features) {
	e.Danceability = &f.Danceability
	e.Energy = &f.Energy
	e.Key = &f.Key
	e.Tempo = &f.Tempo
	e.Acousticness = &f.Acousticness
	e.Instrumentalness = &f.Instrumentalness
	e.Liveness = &f.Liveness
	e.Valence = &f.Valence
}

// HasFeatures сообщает, заполнены ли аудио-характеристики
func (e *ChartEntry) HasFeatures() bool {
	return e.Danceability != nil
}

// JoinGenres склеивает жанры через запятую или возвращает UnknownGenre
func JoinGenres(genres []string) string {
	if len(genres) == 0 {
		return UnknownGenre
	}
	return strings.Join(genres, ", ")
}
