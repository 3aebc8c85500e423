// Package export сохраняет данные чарта в JSON и CSV файлы.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"spotifychart/internal/domain/chart"
	"spotifychart/internal/model"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Заголовки CSV
var (
	headersKO = []string{
		"날짜", "시간", "순위", "제목", "아티스트", "앨범", "발매일", "장르", "인기도",
		"댄스성", "에너지", "키", "템포", "음향도", "악기비율", "라이브성", "긍정도", "앨범이미지",
	}
	headersEN = []string{
		"date", "time", "rank", "title", "artists", "album", "release_date", "genres", "popularity",
		"danceability", "energy", "key", "tempo", "acousticness", "instrumentalness", "liveness", "valence", "album_image",
	}
)

// Headers возвращает заголовки CSV для языка ko или en
func Headers(lang string) []string {
	if lang == "en" {
		return headersEN
	}
	return headersKO
}

// CheckpointFileName имя файла промежуточного сохранения для слота
func CheckpointFileName(slot time.Time) string {
	return fmt.Sprintf("spotify_chart_data_%s.json", slot.Format("20060102_1504"))
}

// CSVFileName имя итогового CSV файла для периода
func CSVFileName(period chart.Period) string {
	return fmt.Sprintf("spotify_charts_%s_%s.csv", period.Start.Format("20060102"), period.End.Format("20060102"))
}

// WriteJSON пишет записи в JSON с отступом в 2 пробела, не экранируя юникод
func WriteJSON(w io.Writer, entries []model.ChartEntry) error {
	if entries == nil {
		entries = []model.ChartEntry{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// WriteCSV пишет записи в CSV в кодировке UTF-8 с BOM
func WriteCSV(w io.Writer, entries []model.ChartEntry, lang string) error {
	bom := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(bom)

	if err := cw.Write(Headers(lang)); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for i := range entries {
		if err := cw.Write(record(&entries[i])); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return bom.Close()
}

func record(e *model.ChartEntry) []string {
	return []string{
		e.Date,
		e.Time,
		strconv.Itoa(e.Rank),
		e.Title,
		e.Artists,
		e.Album,
		e.ReleaseDate,
		e.Genres,
		strconv.Itoa(e.Popularity),
		formatFloat(e.Danceability),
		formatFloat(e.Energy),
		formatInt(e.Key),
		formatFloat(e.Tempo),
		formatFloat(e.Acousticness),
		formatFloat(e.Instrumentalness),
		formatFloat(e.Liveness),
		formatFloat(e.Valence),
		e.AlbumImage,
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// Files сохраняет промежуточные JSON и итоговый CSV в каталог
type Files struct {
	Dir        string
	HeaderLang string
}

var (
	_ chart.Checkpointer = (*Files)(nil)
	_ chart.Sink         = (*Files)(nil)
)

// SaveCheckpoint сохраняет все накопленные записи в JSON
func (f *Files) SaveCheckpoint(entries []model.ChartEntry, slot time.Time) (string, error) {
	path := filepath.Join(f.Dir, CheckpointFileName(slot))
	err := writeFile(path, func(w io.Writer) error {
		return WriteJSON(w, entries)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// Name реализует chart.Sink
func (f *Files) Name() string {
	return "csv"
}

// Write сохраняет итоговый CSV
func (f *Files) Write(_ context.Context, result *chart.Result) error {
	return writeFile(f.CSVPath(result.Period), func(w io.Writer) error {
		return WriteCSV(w, result.Entries, f.HeaderLang)
	})
}

// CSVPath путь итогового CSV для периода
func (f *Files) CSVPath(period chart.Period) string {
	return filepath.Join(f.Dir, CSVFileName(period))
}

// writeFile пишет во временный файл и переименовывает его, чтобы не оставить обрезанный файл
func writeFile(path string, write func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
