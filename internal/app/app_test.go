package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spotifychart/internal/config"
	"spotifychart/internal/credentials"
	"spotifychart/internal/gateway/spotify"
	"spotifychart/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSpotify struct {
	verifyErr error
	creds     credentials.Credentials
	snapshots int
}

func (f *fakeSpotify) Verify(ctx context.Context, playlistRef string) (*spotify.PlaylistInfo, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.GetPlaylistInfo(ctx, playlistRef)
}

func (f *fakeSpotify) GetPlaylistInfo(context.Context, string) (*spotify.PlaylistInfo, error) {
	return &spotify.PlaylistInfo{ID: config.DefaultChartPlaylist, Name: "Top 50 - South Korea"}, nil
}

func (f *fakeSpotify) GetPlaylistTracks(context.Context, string) ([]*spotify.Track, error) {
	f.snapshots++
	return []*spotify.Track{
		{ID: "t1", Title: "Song 1", Artists: []spotify.Artist{{ID: "a1", Name: "Artist 1"}}},
		{ID: "t2", Title: "Song 2", Artists: []spotify.Artist{{ID: "a2", Name: "Artist 2"}}},
	}, nil
}

func (f *fakeSpotify) GetAudioFeatures(context.Context, []string) (map[string]*spotify.AudioFeatures, error) {
	return map[string]*spotify.AudioFeatures{"t1": {Danceability: 0.5}}, nil
}

func (f *fakeSpotify) GetArtistGenres(context.Context, []string) (map[string][]string, error) {
	return map[string][]string{"a1": {"k-pop"}}, nil
}

type recordingNotifier struct {
	summaries []notify.Summary
}

func (r *recordingNotifier) Notify(_ context.Context, s notify.Summary) error {
	r.summaries = append(r.summaries, s)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		ChartPlaylist:     config.DefaultChartPlaylist,
		IntermediateEvery: 100,
		OutputDir:         t.TempDir(),
		CSVHeaderLang:     "en",
		Timezone:          "UTC",
	}
}

func newTestApp(cfg *config.Config, input string, source *fakeSpotify) (*App, *bytes.Buffer, *recordingNotifier) {
	out := &bytes.Buffer{}
	a := New(cfg, strings.NewReader(input), out, zap.NewNop())
	a.newSource = func(_ context.Context, creds credentials.Credentials) (spotify.Interface, error) {
		source.creds = creds
		return source, nil
	}
	n := &recordingNotifier{}
	a.notifier = n
	return a, out, n
}

func TestRun_PromptsAndCollects(t *testing.T) {
	cfg := testConfig(t)
	source := &fakeSpotify{}
	input := strings.Join([]string{
		"my-client-id",
		"my-secret",
		"2024 1 1 5", // конец раньше начала
		"2024 1 1 0",
		"2024 13 1", // некорректный месяц
		"2024 1 1 0",
		"2024 1 1 0",
		"2024 1 1 2",
		"y",
	}, "\n") + "\n"

	a, out, notifier := newTestApp(cfg, input, source)
	require.NoError(t, a.Run(context.Background(), RunOptions{}))

	assert.Equal(t, "my-client-id", source.creds.ClientID)
	assert.Equal(t, "my-secret", source.creds.ClientSecret)
	assert.Equal(t, 3, source.snapshots)

	text := out.String()
	assert.Contains(t, text, "Authentication succeeded")
	assert.Contains(t, text, "End date cannot be before start date.")
	assert.Contains(t, text, "Please enter a valid date")
	assert.Contains(t, text, "Total: 3 hours")
	assert.NotContains(t, text, "my-secret")

	csvPath := filepath.Join(cfg.OutputDir, "spotify_charts_20240101_20240101.csv")
	assert.FileExists(t, csvPath)

	require.Len(t, notifier.summaries, 1)
	assert.Equal(t, 6, notifier.summaries[0].Rows)
	assert.Equal(t, csvPath, notifier.summaries[0].CSVPath)
	assert.NoError(t, notifier.summaries[0].Err)
}

func TestRun_FlagsSkipPrompts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Credentials = credentials.Credentials{ClientID: "env-id", ClientSecret: "env-secret"}
	source := &fakeSpotify{}

	a, out, _ := newTestApp(cfg, "", source)
	require.NoError(t, a.Run(context.Background(), RunOptions{
		Start:     "2024 1 1 0",
		End:       "2024 1 1 0",
		AssumeYes: true,
	}))

	assert.Equal(t, "env-id", source.creds.ClientID)
	assert.Equal(t, 1, source.snapshots)
	assert.NotContains(t, out.String(), "Client ID:")
	assert.NotContains(t, out.String(), "(y/n)")
}

func TestRun_Declined(t *testing.T) {
	cfg := testConfig(t)
	cfg.Credentials = credentials.Credentials{ClientID: "env-id", ClientSecret: "env-secret"}
	source := &fakeSpotify{}

	a, out, notifier := newTestApp(cfg, "n\n", source)
	require.NoError(t, a.Run(context.Background(), RunOptions{Start: "2024 1 1 0", End: "2024 1 1 3"}))

	assert.Contains(t, out.String(), "Collection cancelled.")
	assert.Zero(t, source.snapshots)
	assert.Empty(t, notifier.summaries)

	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_VerificationFailed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Credentials = credentials.Credentials{ClientID: "bad-id", ClientSecret: "bad-secret"}
	source := &fakeSpotify{verifyErr: spotify.ErrInvalidCredentials}

	a, out, _ := newTestApp(cfg, "", source)
	err := a.Run(context.Background(), RunOptions{})

	assert.True(t, errors.Is(err, ErrVerificationFailed))
	assert.Contains(t, out.String(), "Authentication failed")
	assert.Zero(t, source.snapshots)
}

func TestRun_MissingCredentials(t *testing.T) {
	cfg := testConfig(t)
	source := &fakeSpotify{}

	a, _, _ := newTestApp(cfg, "\n\n", source)
	err := a.Run(context.Background(), RunOptions{})

	assert.True(t, errors.Is(err, credentials.ErrMissingClientID))
	assert.True(t, errors.Is(err, credentials.ErrMissingClientSecret))
}

func TestRun_PartialFlags(t *testing.T) {
	cfg := testConfig(t)
	cfg.Credentials = credentials.Credentials{ClientID: "env-id", ClientSecret: "env-secret"}

	a, _, _ := newTestApp(cfg, "", &fakeSpotify{})
	assert.Error(t, a.Run(context.Background(), RunOptions{Start: "2024 1 1 0"}))
}

func TestRun_CancelledStillFlushes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Credentials = credentials.Credentials{ClientID: "env-id", ClientSecret: "env-secret"}
	source := &fakeSpotify{}

	ctx, cancel := context.WithCancel(context.Background())
	a, _, notifier := newTestApp(cfg, "", source)
	a.newSource = func(context.Context, credentials.Credentials) (spotify.Interface, error) {
		return &cancellingSource{fakeSpotify: source, cancel: cancel}, nil
	}

	err := a.Run(ctx, RunOptions{Start: "2024 1 1 0", End: "2024 1 1 5", AssumeYes: true})
	assert.True(t, errors.Is(err, context.Canceled))

	assert.FileExists(t, filepath.Join(cfg.OutputDir, "spotify_charts_20240101_20240101.csv"))
	require.Len(t, notifier.summaries, 1)
	assert.Equal(t, 2, notifier.summaries[0].Rows)
	assert.Error(t, notifier.summaries[0].Err)
}

// cancellingSource отменяет контекст на снимке с номером at (по умолчанию второй)
type cancellingSource struct {
	*fakeSpotify
	cancel context.CancelFunc
	at     int
}

func (c *cancellingSource) GetPlaylistTracks(ctx context.Context, ref string) ([]*spotify.Track, error) {
	tracks, err := c.fakeSpotify.GetPlaylistTracks(ctx, ref)
	at := c.at
	if at == 0 {
		at = 2
	}
	if c.snapshots == at {
		c.cancel()
	}
	return tracks, err
}

// interruptingReader отменяет контекст при первом чтении, как Ctrl+C во время ввода
type interruptingReader struct {
	cancel context.CancelFunc
	data   *strings.Reader
}

func (r *interruptingReader) Read(p []byte) (int, error) {
	r.cancel()
	return r.data.Read(p)
}

func TestRun_CancelledAtPrompt(t *testing.T) {
	cfg := testConfig(t)
	cfg.Credentials = credentials.Credentials{ClientID: "env-id", ClientSecret: "env-secret"}
	source := &fakeSpotify{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &bytes.Buffer{}
	a := New(cfg, &interruptingReader{cancel: cancel, data: strings.NewReader("2024 1 1 0\n2024 1 1 3\ny\n")}, out, zap.NewNop())
	a.newSource = func(context.Context, credentials.Credentials) (spotify.Interface, error) { return source, nil }
	notifier := &recordingNotifier{}
	a.notifier = notifier

	err := a.Run(ctx, RunOptions{})
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)

	assert.NotContains(t, out.String(), "(y/n)")
	assert.Zero(t, source.snapshots)
	assert.Empty(t, notifier.summaries)

	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_CancelWhileWaitingForInput(t *testing.T) {
	cfg := testConfig(t)
	cfg.Credentials = credentials.Credentials{ClientID: "env-id", ClientSecret: "env-secret"}

	// Ввод так и не приходит
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	a := New(cfg, pr, &bytes.Buffer{}, zap.NewNop())
	a.newSource = func(context.Context, credentials.Credentials) (spotify.Interface, error) { return &fakeSpotify{}, nil }
	a.notifier = &recordingNotifier{}

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, RunOptions{}) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_CancelledBeforeFirstSlotKeepsOldFiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Credentials = credentials.Credentials{ClientID: "env-id", ClientSecret: "env-secret"}

	csvPath := filepath.Join(cfg.OutputDir, "spotify_charts_20240101_20240101.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("previous run"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	source := &fakeSpotify{}
	a, _, notifier := newTestApp(cfg, "", source)
	a.newSource = func(context.Context, credentials.Credentials) (spotify.Interface, error) {
		return &cancellingSource{fakeSpotify: source, cancel: cancel, at: 1}, nil
	}

	err := a.Run(ctx, RunOptions{Start: "2024 1 1 0", End: "2024 1 1 3", AssumeYes: true})
	assert.True(t, errors.Is(err, context.Canceled))

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "previous run", string(data))
	assert.Empty(t, notifier.summaries)
}
