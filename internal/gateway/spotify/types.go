// Package spotify содержит типы для работы с Spotify API.
package spotify

// Track представляет трек из плейлиста Spotify
type Track struct {
	ID          string   // Spotify Track ID
	Title       string   // Название трека
	Artists     []Artist // Исполнители в порядке Spotify
	Album       string
	ReleaseDate string
	AlbumImage  string // URL первой обложки, может быть пустым
	Popularity  int
}

// Artist представляет исполнителя трека
type Artist struct {
	ID   string
	Name string
}

// PrimaryArtistID возвращает ID первого исполнителя
func (t *Track) PrimaryArtistID() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].ID
}

// AudioFeatures содержит аудио-характеристики трека
type AudioFeatures struct {
	Danceability     float64
	Energy           float64
	Key              int
	Tempo            float64
	Acousticness     float64
	Instrumentalness float64
	Liveness         float64
	Valence          float64
}

// PlaylistInfo содержит информацию о плейлисте Spotify
type PlaylistInfo struct {
	ID          string
	Name        string
	Description string
	TotalTracks int
	Public      bool
	Owner       string
}
