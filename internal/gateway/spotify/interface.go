package spotify

import "context"

// Interface определяет интерфейс для работы с Spotify API
type Interface interface {
	// Verify проверяет учетные данные запросом плейлиста чарта
	Verify(ctx context.Context, playlistRef string) (*PlaylistInfo, error)

	// GetPlaylistInfo получает информацию о плейлисте
	GetPlaylistInfo(ctx context.Context, playlistRef string) (*PlaylistInfo, error)

	// GetPlaylistTracks получает все треки плейлиста в порядке позиций
	GetPlaylistTracks(ctx context.Context, playlistRef string) ([]*Track, error)

	// GetAudioFeatures получает аудио-характеристики, ключ - ID трека
	GetAudioFeatures(ctx context.Context, trackIDs []string) (map[string]*AudioFeatures, error)

	// GetArtistGenres получает жанры исполнителей, ключ - ID исполнителя
	GetArtistGenres(ctx context.Context, artistIDs []string) (map[string][]string, error)
}

var _ Interface = (*Client)(nil)
