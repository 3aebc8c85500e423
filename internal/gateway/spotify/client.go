// Package spotify реализует клиент для работы с Spotify Web API.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"spotifychart/internal/credentials"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Лимиты пакетных запросов Spotify API
const (
	playlistPageSize  = 100
	audioFeaturesBulk = 100
	artistsBulk       = 50
)

var (
	// ErrInvalidCredentials возвращается, если Spotify отклонил Client ID / Client Secret
	ErrInvalidCredentials = errors.New("spotify rejected client credentials")
	// ErrInvalidPlaylist возвращается для нераспознанной ссылки на плейлист
	ErrInvalidPlaylist = errors.New("invalid playlist reference")
)

// Options настройки клиента
type Options struct {
	Credentials credentials.Credentials
	// TokenURL по умолчанию spotifyauth.TokenURL
	TokenURL string
	// APIURL по умолчанию https://api.spotify.com/v1/
	APIURL string
	// HTTPClient базовый клиент для токена и запросов, по умолчанию http.DefaultClient
	HTTPClient *http.Client
	Retry      RetryConfig
}

// Client представляет клиент для работы с Spotify API (Client Credentials Flow)
type Client struct {
	api         *spotify.Client
	tokenSource oauth2.TokenSource
	retry       RetryConfig
	logger      *zap.Logger
}

// NewClient создает Spotify клиент. Токен запрашивается лениво и обновляется автоматически.
func NewClient(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	if err := opts.Credentials.Validate(); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}

	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}

	ccConfig := &clientcredentials.Config{
		ClientID:     strings.TrimSpace(opts.Credentials.ClientID),
		ClientSecret: strings.TrimSpace(opts.Credentials.ClientSecret),
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	var clientOpts []spotify.ClientOption
	if opts.APIURL != "" {
		apiURL := opts.APIURL
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		clientOpts = append(clientOpts, spotify.WithBaseURL(apiURL))
	}

	logger.Info("Spotify client created with client credentials flow",
		zap.Object("credentials", opts.Credentials))

	// Один источник токена на проверку и на запросы к API
	tokenSource := ccConfig.TokenSource(ctx)

	return &Client{
		api:         spotify.New(oauth2.NewClient(ctx, tokenSource), clientOpts...),
		tokenSource: tokenSource,
		retry:       opts.Retry,
		logger:      logger,
	}, nil
}

// Verify проверяет учетные данные: получает токен и запрашивает плейлист чарта
func (c *Client) Verify(ctx context.Context, playlistRef string) (*PlaylistInfo, error) {
	if _, err := c.tokenSource.Token(); err != nil {
		c.logger.Error("Failed to obtain access token", zap.Error(err))
		return nil, classifyTokenError(err)
	}

	info, err := c.GetPlaylistInfo(ctx, playlistRef)
	if err != nil {
		return nil, fmt.Errorf("credentials accepted but chart playlist is not accessible: %w", err)
	}

	c.logger.Info("Spotify credentials verified",
		zap.String("playlist_id", info.ID),
		zap.String("playlist_name", info.Name))

	return info, nil
}

// classifyTokenError отделяет отказ в авторизации от прочих ошибок
func classifyTokenError(err error) error {
	if err = markInvalidCredentials(err); errors.Is(err, ErrInvalidCredentials) {
		return err
	}
	return fmt.Errorf("failed to get token: %w", err)
}

// ExtractPlaylistID извлекает ID плейлиста из URL, URI или голого ID
func ExtractPlaylistID(playlistRef string) (string, error) {
	// Поддерживаем форматы:
	// https://open.spotify.com/playlist/37i9dQZEVXbNxXF4SkHj9F?si=...
	// spotify:playlist:37i9dQZEVXbNxXF4SkHj9F
	// 37i9dQZEVXbNxXF4SkHj9F
	ref := strings.TrimSpace(playlistRef)

	switch {
	case strings.HasPrefix(ref, "spotify:playlist:"):
		ref = strings.TrimPrefix(ref, "spotify:playlist:")
	case strings.Contains(ref, "open.spotify.com/"):
		parts := strings.SplitN(ref, "/playlist/", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("%w: %q", ErrInvalidPlaylist, playlistRef)
		}
		ref = parts[1]
		// Убираем возможные параметры после ID
		if i := strings.IndexAny(ref, "?/#"); i >= 0 {
			ref = ref[:i]
		}
	}

	if ref == "" || !isBase62(ref) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlaylist, playlistRef)
	}

	return ref, nil
}

func isBase62(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// GetPlaylistInfo получает информацию о плейлисте
func (c *Client) GetPlaylistInfo(ctx context.Context, playlistRef string) (*PlaylistInfo, error) {
	playlistID, err := ExtractPlaylistID(playlistRef)
	if err != nil {
		return nil, err
	}

	var playlist *spotify.FullPlaylist
	err = WithRetry(ctx, c.logger, c.retry, func() error {
		var reqErr error
		playlist, reqErr = c.api.GetPlaylist(ctx, spotify.ID(playlistID))
		return reqErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist %s: %w", playlistID, err)
	}

	return &PlaylistInfo{
		ID:          string(playlist.ID),
		Name:        playlist.Name,
		Description: playlist.Description,
		TotalTracks: int(playlist.Tracks.Total),
		Public:      playlist.IsPublic,
		Owner:       playlist.Owner.DisplayName,
	}, nil
}

// GetPlaylistTracks получает все треки плейлиста постранично. Эпизоды пропускаются.
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistRef string) ([]*Track, error) {
	playlistID, err := ExtractPlaylistID(playlistRef)
	if err != nil {
		return nil, err
	}

	var allTracks []*Track
	offset := 0

	for {
		c.logger.Debug("Requesting playlist items page",
			zap.String("playlist_id", playlistID),
			zap.Int("offset", offset),
			zap.Int("limit", playlistPageSize))

		var page *spotify.PlaylistItemPage
		err := WithRetry(ctx, c.logger, c.retry, func() error {
			var reqErr error
			page, reqErr = c.api.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(playlistPageSize), spotify.Offset(offset))
			return reqErr
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get playlist tracks at offset %d: %w", offset, err)
		}

		for _, item := range page.Items {
			// Пропускаем эпизоды подкастов и удаленные треки
			if item.Track.Track == nil {
				continue
			}
			allTracks = append(allTracks, convertTrack(item.Track.Track))
		}

		if len(page.Items) == 0 || offset+len(page.Items) >= int(page.Total) {
			break
		}
		offset += len(page.Items)
	}

	c.logger.Debug("Retrieved playlist tracks",
		zap.String("playlist_id", playlistID),
		zap.Int("total_tracks", len(allTracks)))

	return allTracks, nil
}

func convertTrack(t *spotify.FullTrack) *Track {
	track := &Track{
		ID:          string(t.ID),
		Title:       t.Name,
		Album:       t.Album.Name,
		ReleaseDate: t.Album.ReleaseDate,
		Popularity:  int(t.Popularity),
	}
	for _, a := range t.Artists {
		track.Artists = append(track.Artists, Artist{ID: string(a.ID), Name: a.Name})
	}
	if len(t.Album.Images) > 0 {
		track.AlbumImage = t.Album.Images[0].URL
	}
	return track
}

// GetAudioFeatures получает аудио-характеристики пакетами по 100 треков.
// Треки без характеристик в результат не попадают.
func (c *Client) GetAudioFeatures(ctx context.Context, trackIDs []string) (map[string]*AudioFeatures, error) {
	result := make(map[string]*AudioFeatures, len(trackIDs))

	for _, batch := range chunk(trackIDs, audioFeaturesBulk) {
		var features []*spotify.AudioFeatures
		err := WithRetry(ctx, c.logger, c.retry, func() error {
			var reqErr error
			features, reqErr = c.api.GetAudioFeatures(ctx, toIDs(batch)...)
			return reqErr
		})
		if err != nil {
			return result, fmt.Errorf("failed to get audio features: %w", err)
		}

		for _, f := range features {
			if f == nil {
				continue
			}
			result[string(f.ID)] = &AudioFeatures{
				Danceability:     float64(f.Danceability),
				Energy:           float64(f.Energy),
				Key:              int(f.Key),
				Tempo:            float64(f.Tempo),
				Acousticness:     float64(f.Acousticness),
				Instrumentalness: float64(f.Instrumentalness),
				Liveness:         float64(f.Liveness),
				Valence:          float64(f.Valence),
			}
		}
	}

	return result, nil
}

// GetArtistGenres получает жанры исполнителей пакетами по 50
func (c *Client) GetArtistGenres(ctx context.Context, artistIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(artistIDs))

	for _, batch := range chunk(artistIDs, artistsBulk) {
		var artists []*spotify.FullArtist
		err := WithRetry(ctx, c.logger, c.retry, func() error {
			var reqErr error
			artists, reqErr = c.api.GetArtists(ctx, toIDs(batch)...)
			return reqErr
		})
		if err != nil {
			return result, fmt.Errorf("failed to get artists: %w", err)
		}

		for _, a := range artists {
			if a == nil {
				continue
			}
			result[string(a.ID)] = a.Genres
		}
	}

	return result, nil
}

func toIDs(ids []string) []spotify.ID {
	out := make([]spotify.ID, 0, len(ids))
	for _, id := range ids {
		out = append(out, spotify.ID(id))
	}
	return out
}

// chunk делит список на части не длиннее size
func chunk(ids []string, size int) [][]string {
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}
