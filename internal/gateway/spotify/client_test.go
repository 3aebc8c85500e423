package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"spotifychart/internal/credentials"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const testPlaylistID = "37i9dQZEVXbNxXF4SkHj9F"

type fakeSpotify struct {
	t             *testing.T
	tokenRequests atomic.Int32
	featureCalls  atomic.Int32
	failFeatures  int32 // сколько первых запросов audio-features вернут 500
	tracks        []map[string]interface{}
	pageSize      int
}

func newFakeSpotify(t *testing.T) *fakeSpotify {
	return &fakeSpotify{
		t:        t,
		pageSize: 2,
		tracks: []map[string]interface{}{
			trackJSON("t1", "Supernova", "a1", "aespa"),
			{"type": "episode", "id": "e1", "name": "Podcast", "uri": "spotify:episode:e1"},
			trackJSON("t2", "Magnetic", "a2", "ILLIT"),
			trackJSON("t3", "How Sweet", "a3", "NewJeans"),
		},
	}
}

func trackJSON(id, name, artistID, artistName string) map[string]interface{} {
	return map[string]interface{}{
		"type":       "track",
		"id":         id,
		"name":       name,
		"popularity": 80,
		"artists":    []map[string]interface{}{{"id": artistID, "name": artistName}},
		"album": map[string]interface{}{
			"name":         name + " - Single",
			"release_date": "2024-05-13",
			"images":       []map[string]interface{}{{"url": "https://i.scdn.co/image/" + id, "height": 640, "width": 640}},
		},
	}
}

func (f *fakeSpotify) server() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenRequests.Add(1)
		id, secret, _ := r.BasicAuth()
		if id != "good-id" || secret != "good-secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"Invalid client"}`))
			return
		}
		writeJSON(w, map[string]interface{}{"access_token": "token", "token_type": "Bearer", "expires_in": 3600})
	})

	mux.HandleFunc("/v1/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]interface{}{"error": map[string]interface{}{"status": 401, "message": "No token provided"}})
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/v1/")
		switch {
		case path == "playlists/"+testPlaylistID:
			writeJSON(w, map[string]interface{}{
				"id":          testPlaylistID,
				"name":        "Top 50 - South Korea",
				"description": "Your daily update",
				"public":      true,
				"owner":       map[string]interface{}{"id": "spotify", "display_name": "Spotify"},
				"tracks":      map[string]interface{}{"total": len(f.tracks), "items": []interface{}{}},
			})
		case strings.HasPrefix(path, "playlists/"+testPlaylistID+"/"):
			f.writePage(w, r)
		case path == "audio-features":
			if f.featureCalls.Add(1) <= f.failFeatures {
				w.WriteHeader(http.StatusInternalServerError)
				writeJSON(w, map[string]interface{}{"error": map[string]interface{}{"status": 500, "message": "boom"}})
				return
			}
			var features []interface{}
			for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
				if id == "t3" {
					features = append(features, nil)
					continue
				}
				features = append(features, map[string]interface{}{
					"id": id, "danceability": 0.5, "energy": 0.7, "key": 5, "tempo": 120.5,
					"acousticness": 0.1, "instrumentalness": 0.0, "liveness": 0.2, "valence": 0.9,
				})
			}
			writeJSON(w, map[string]interface{}{"audio_features": features})
		case path == "artists":
			var artists []interface{}
			for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
				if id == "missing" {
					artists = append(artists, nil)
					continue
				}
				artists = append(artists, map[string]interface{}{"id": id, "name": id, "genres": []string{"k-pop", "k-pop girl group"}})
			}
			writeJSON(w, map[string]interface{}{"artists": artists})
		default:
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]interface{}{"error": map[string]interface{}{"status": 404, "message": "Not found"}})
		}
	})

	return httptest.NewServer(mux)
}

func (f *fakeSpotify) writePage(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	end := offset + f.pageSize
	if end > len(f.tracks) {
		end = len(f.tracks)
	}

	var items []interface{}
	if offset < len(f.tracks) {
		for _, tr := range f.tracks[offset:end] {
			items = append(items, map[string]interface{}{"added_at": "2024-01-01T00:00:00Z", "track": tr})
		}
	}

	writeJSON(w, map[string]interface{}{
		"href":   r.URL.String(),
		"limit":  f.pageSize,
		"offset": offset,
		"total":  len(f.tracks),
		"items":  items,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, srv *httptest.Server, id, secret string) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), Options{
		Credentials: credentials.Credentials{ClientID: id, ClientSecret: secret},
		TokenURL:    srv.URL + "/api/token",
		APIURL:      srv.URL + "/v1",
		HTTPClient:  srv.Client(),
		Retry: RetryConfig{
			MaxRetries:        2,
			InitialDelay:      time.Millisecond,
			MaxDelay:          5 * time.Millisecond,
			BackoffMultiplier: 2,
		},
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), Options{}, zap.NewNop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, credentials.ErrMissingClientID))
	assert.True(t, errors.Is(err, credentials.ErrMissingClientSecret))
}

func TestClient_Verify(t *testing.T) {
	fake := newFakeSpotify(t)
	srv := fake.server()
	defer srv.Close()

	client := newTestClient(t, srv, "good-id", "good-secret")

	info, err := client.Verify(context.Background(), testPlaylistID)
	require.NoError(t, err)
	assert.Equal(t, "Top 50 - South Korea", info.Name)
	assert.Equal(t, "Spotify", info.Owner)
	assert.Equal(t, 4, info.TotalTracks)
}

func TestClient_VerifyInvalidCredentials(t *testing.T) {
	fake := newFakeSpotify(t)
	srv := fake.server()
	defer srv.Close()

	client := newTestClient(t, srv, "good-id", "wrong-secret")

	_, err := client.Verify(context.Background(), testPlaylistID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCredentials), "got %v", err)
	assert.NotContains(t, err.Error(), "wrong-secret")
}

func TestClient_DataCallsDoNotRetryRejectedCredentials(t *testing.T) {
	fake := newFakeSpotify(t)
	srv := fake.server()
	defer srv.Close()

	client := newTestClient(t, srv, "good-id", "wrong-secret")

	_, err := client.GetPlaylistTracks(context.Background(), testPlaylistID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCredentials), "got %v", err)
	assert.Equal(t, int32(1), fake.tokenRequests.Load())
}

func TestIsRetryable(t *testing.T) {
	tokenErr := func(status int) error {
		return &url.Error{Op: "Get", URL: "https://api.spotify.com/v1/playlists", Err: &oauth2.RetrieveError{
			Response: &http.Response{StatusCode: status},
		}}
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", spotify.Error{Status: http.StatusTooManyRequests}, true},
		{"server error", spotify.Error{Status: http.StatusBadGateway}, true},
		{"not found", spotify.Error{Status: http.StatusNotFound}, false},
		{"token rejected", tokenErr(http.StatusBadRequest), false},
		{"token endpoint down", tokenErr(http.StatusServiceUnavailable), true},
		{"network", &url.Error{Op: "Get", URL: "https://api.spotify.com", Err: errors.New("connection refused")}, true},
		{"cancelled", context.Canceled, false},
		{"invalid credentials", ErrInvalidCredentials, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestClient_VerifyUnknownPlaylist(t *testing.T) {
	fake := newFakeSpotify(t)
	srv := fake.server()
	defer srv.Close()

	client := newTestClient(t, srv, "good-id", "good-secret")

	_, err := client.Verify(context.Background(), "doesNotExist")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidCredentials))
}

func TestClient_GetPlaylistTracks(t *testing.T) {
	fake := newFakeSpotify(t)
	srv := fake.server()
	defer srv.Close()

	client := newTestClient(t, srv, "good-id", "good-secret")

	tracks, err := client.GetPlaylistTracks(context.Background(), "https://open.spotify.com/playlist/"+testPlaylistID+"?si=abc")
	require.NoError(t, err)
	require.Len(t, tracks, 3)

	assert.Equal(t, "t1", tracks[0].ID)
	assert.Equal(t, "Supernova", tracks[0].Title)
	assert.Equal(t, "a1", tracks[0].PrimaryArtistID())
	assert.Equal(t, "Supernova - Single", tracks[0].Album)
	assert.Equal(t, "2024-05-13", tracks[0].ReleaseDate)
	assert.Equal(t, "https://i.scdn.co/image/t1", tracks[0].AlbumImage)
	assert.Equal(t, 80, tracks[0].Popularity)
	assert.Equal(t, "t2", tracks[1].ID)
	assert.Equal(t, "t3", tracks[2].ID)

	// Токен запрашивается один раз на весь клиент
	assert.Equal(t, int32(1), fake.tokenRequests.Load())
}

func TestClient_GetAudioFeaturesRetries(t *testing.T) {
	fake := newFakeSpotify(t)
	fake.failFeatures = 1
	srv := fake.server()
	defer srv.Close()

	client := newTestClient(t, srv, "good-id", "good-secret")

	features, err := client.GetAudioFeatures(context.Background(), []string{"t1", "t2", "t3"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.featureCalls.Load())

	require.Contains(t, features, "t1")
	assert.InDelta(t, 0.5, features["t1"].Danceability, 1e-6)
	assert.InDelta(t, 120.5, features["t1"].Tempo, 1e-3)
	assert.Equal(t, 5, features["t1"].Key)
	assert.NotContains(t, features, "t3")
}

func TestClient_GetAudioFeaturesGivesUp(t *testing.T) {
	fake := newFakeSpotify(t)
	fake.failFeatures = 100
	srv := fake.server()
	defer srv.Close()

	client := newTestClient(t, srv, "good-id", "good-secret")

	_, err := client.GetAudioFeatures(context.Background(), []string{"t1"})
	require.Error(t, err)
	// Первый запрос + 2 повтора
	assert.Equal(t, int32(3), fake.featureCalls.Load())
}

func TestClient_GetArtistGenres(t *testing.T) {
	fake := newFakeSpotify(t)
	srv := fake.server()
	defer srv.Close()

	client := newTestClient(t, srv, "good-id", "good-secret")

	ids := make([]string, 0, 60)
	for i := 0; i < 59; i++ {
		ids = append(ids, fmt.Sprintf("a%d", i))
	}
	ids = append(ids, "missing")

	genres, err := client.GetArtistGenres(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, genres, 59)
	assert.Equal(t, []string{"k-pop", "k-pop girl group"}, genres["a0"])
	assert.NotContains(t, genres, "missing")
}

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare id", testPlaylistID, testPlaylistID, false},
		{"uri", "spotify:playlist:" + testPlaylistID, testPlaylistID, false},
		{"url", "https://open.spotify.com/playlist/" + testPlaylistID, testPlaylistID, false},
		{"url with query", "https://open.spotify.com/playlist/" + testPlaylistID + "?si=123", testPlaylistID, false},
		{"localized url", "https://open.spotify.com/intl-ko/playlist/" + testPlaylistID, testPlaylistID, false},
		{"album url", "https://open.spotify.com/album/1234", "", true},
		{"empty", "  ", "", true},
		{"garbage", "not a playlist", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractPlaylistID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractPlaylistID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				assert.True(t, errors.Is(err, ErrInvalidPlaylist))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChunk(t *testing.T) {
	ids := []string{"1", "2", "3", "4", "5"}

	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}, {"5"}}, chunk(ids, 2))
	assert.Equal(t, [][]string{{"1", "2", "3", "4", "5"}}, chunk(ids, 10))
	assert.Nil(t, chunk(nil, 10))
}
