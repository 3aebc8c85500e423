// Package app связывает конфигурацию, Spotify клиент, сборщик и приемники данных.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"spotifychart/internal/config"
	"spotifychart/internal/credentials"
	"spotifychart/internal/domain/chart"
	"spotifychart/internal/export"
	"spotifychart/internal/gateway/spotify"
	"spotifychart/internal/notify"
	"spotifychart/internal/storage"

	"go.uber.org/zap"
)

// ErrVerificationFailed возвращается, если Spotify не принял учетные данные
var ErrVerificationFailed = errors.New("spotify credentials verification failed")

// flushTimeout время на запись результата после отмены сбора
const flushTimeout = 30 * time.Second

// RunOptions параметры запуска из командной строки
type RunOptions struct {
	Start     string // "2024 1 1 0", пусто - спросить
	End       string
	Follow    bool
	AssumeYes bool
}

// SourceFactory создает клиент Spotify для учетных данных
type SourceFactory func(ctx context.Context, creds credentials.Credentials) (spotify.Interface, error)

// App выполняет один сбор чарта
type App struct {
	cfg       *config.Config
	src       io.Reader
	in        *bufio.Reader
	out       io.Writer
	logger    *zap.Logger
	newSource SourceFactory
	notifier  notify.Notifier
}

// New создает приложение с Spotify клиентом по умолчанию
func New(cfg *config.Config, in io.Reader, out io.Writer, logger *zap.Logger) *App {
	a := &App{
		cfg:    cfg,
		src:    in,
		out:    out,
		logger: logger,
	}
	a.newSource = a.defaultSource
	return a
}

func (a *App) defaultSource(ctx context.Context, creds credentials.Credentials) (spotify.Interface, error) {
	return spotify.NewClient(ctx, spotify.Options{
		Credentials: creds,
		TokenURL:    a.cfg.TokenURL,
		APIURL:      a.cfg.SpotifyAPIURL,
		Retry: spotify.RetryConfig{
			MaxRetries:        a.cfg.RetryConfig.MaxRetries,
			InitialDelay:      a.cfg.RetryConfig.InitialDelay,
			MaxDelay:          a.cfg.RetryConfig.MaxDelay,
			BackoffMultiplier: a.cfg.RetryConfig.BackoffMultiplier,
		},
	}, a.logger)
}

// Run проходит весь сценарий: учетные данные, проверка, период, подтверждение, сбор
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	// Отмена прерывает ожидание ввода
	a.in = bufio.NewReader(&contextReader{ctx: ctx, r: a.src})

	creds, err := a.credentials(ctx)
	if err != nil {
		return err
	}

	a.printf("\nVerifying credentials...\n")
	source, err := a.newSource(ctx, creds)
	if err != nil {
		return fmt.Errorf("failed to create spotify client: %w", err)
	}

	info, err := source.Verify(ctx, a.cfg.ChartPlaylist)
	if err != nil {
		a.logger.Error("Verification failed", zap.Object("credentials", creds), zap.Error(err))
		a.printf("Authentication failed. Check your Client ID and Client Secret.\n")
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	a.printf("Authentication succeeded (%s).\n\n", info.Name)

	period, err := a.period(ctx, opts)
	if err != nil {
		return err
	}

	a.printf("\nCollection period:\n")
	a.printf("Start: %s\n", period.Start.Format("2006-01-02 15:00"))
	a.printf("End:   %s\n", period.End.Format("2006-01-02 15:00"))
	a.printf("Total: %d hours\n", period.Hours())

	if !opts.AssumeYes {
		ok, err := a.confirm(ctx, "\nStart collecting? (y/n): ")
		if err != nil {
			return err
		}
		if !ok {
			a.printf("Collection cancelled.\n")
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return a.collect(ctx, source, period, opts.Follow)
}

// credentials берет учетные данные из окружения или спрашивает недостающие
func (a *App) credentials(ctx context.Context) (credentials.Credentials, error) {
	creds := a.cfg.Credentials
	if !creds.IsComplete() {
		a.printf("Enter your Spotify API credentials.\n")
		var err error
		creds, err = credentials.Prompt(a.in, a.out, creds)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return creds, ctxErr
		}
		if err != nil {
			return creds, err
		}
	}

	if err := creds.Validate(); err != nil {
		return creds, fmt.Errorf("invalid credentials: %w", err)
	}

	a.logger.Info("Credentials loaded", zap.Object("credentials", creds))
	return creds, nil
}

// period берет период из флагов или спрашивает, пока ввод не станет корректным
func (a *App) period(ctx context.Context, opts RunOptions) (chart.Period, error) {
	loc := a.cfg.Location()

	if opts.Start != "" || opts.End != "" {
		if opts.Start == "" || opts.End == "" {
			return chart.Period{}, fmt.Errorf("both start and end must be given")
		}
		return chart.ParsePeriod(opts.Start, opts.End, loc)
	}

	for {
		start, err := a.ask(ctx, "Start date as year month day hour separated by spaces (e.g. 2024 1 1 0): ")
		if err != nil {
			return chart.Period{}, err
		}
		end, err := a.ask(ctx, "End date as year month day hour separated by spaces (e.g. 2024 1 7 23): ")
		if err != nil {
			return chart.Period{}, err
		}

		period, err := chart.ParsePeriod(start, end, loc)
		switch {
		case err == nil:
			return period, nil
		case errors.Is(err, chart.ErrEndBeforeStart):
			a.printf("End date cannot be before start date.\n")
		default:
			a.printf("Please enter a valid date (%v).\n", err)
		}
	}
}

func (a *App) confirm(ctx context.Context, question string) (bool, error) {
	answer, err := a.ask(ctx, question)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(answer, "y"), nil
}

func (a *App) ask(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.printf("%s", question)
	line, err := a.in.ReadString('\n')
	if ctxErr := ctx.Err(); ctxErr != nil {
		a.printf("\n")
		return "", ctxErr
	}
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (a *App) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

// collect запускает сбор и сохраняет результат даже после отмены
func (a *App) collect(ctx context.Context, source chart.Source, period chart.Period, follow bool) error {
	files := &export.Files{Dir: a.cfg.OutputDir, HeaderLang: a.cfg.CSVHeaderLang}
	sinks := []chart.Sink{files}

	if a.cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgres(ctx, a.cfg.DatabaseURL, storage.DefaultConnectOptions, a.logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := pg.Close(); err != nil {
				a.logger.Warn("Failed to close database", zap.Error(err))
			}
		}()

		pgSink, err := storage.NewSink(ctx, pg)
		if err != nil {
			return err
		}
		sinks = append(sinks, pgSink)
	}

	collector := chart.NewCollector(source, files, chart.Options{
		PlaylistRef:       a.cfg.ChartPlaylist,
		RequestDelay:      a.cfg.RequestDelay,
		IntermediateEvery: a.cfg.IntermediateEvery,
		Follow:            follow,
	}, a.logger)

	result, collectErr := collector.Collect(ctx, period)
	if collectErr != nil && len(result.Entries) == 0 {
		// Пустой результат не перезаписывает файлы прошлых запусков
		a.logger.Warn("Collection stopped before any data was collected", zap.Error(collectErr))
		return collectErr
	}
	if collectErr != nil {
		a.logger.Warn("Collection interrupted, saving collected data",
			zap.Int("rows", len(result.Entries)),
			zap.Error(collectErr))
	}

	// Данные сохраняем даже после отмены основного контекста
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	publishErr := chart.Publish(flushCtx, result, a.logger, sinks...)

	csvPath := files.CSVPath(period)
	if publishErr != nil {
		csvPath = ""
	}
	runErr := errors.Join(collectErr, publishErr)

	if err := a.notifierFor().Notify(flushCtx, notify.NewSummary(result, csvPath, runErr)); err != nil {
		a.logger.Warn("Failed to send notification", zap.Error(err))
	}

	if runErr == nil {
		a.printf("\nCollection finished: %d rows saved to %s\n", len(result.Entries), csvPath)
	}
	return runErr
}

// notifierFor возвращает Telegram уведомитель, если он настроен
func (a *App) notifierFor() notify.Notifier {
	if a.notifier != nil {
		return a.notifier
	}
	if !a.cfg.NotificationsEnabled() {
		return notify.Nop{}
	}

	tg, err := notify.NewTelegram(a.cfg.BotToken, a.cfg.NotifyChatID, "", http.DefaultClient, a.logger)
	if err != nil {
		a.logger.Warn("Telegram notifier is unavailable", zap.Error(err))
		return notify.Nop{}
	}
	a.notifier = tg
	return tg
}

// contextReader прекращает ожидание чтения при отмене контекста.
// Незавершенное чтение остается в горутине до конца процесса.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

type readResult struct {
	n   int
	err error
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	buf := make([]byte, len(p))
	done := make(chan readResult, 1)
	go func() {
		n, err := c.r.Read(buf)
		done <- readResult{n: n, err: err}
	}()

	select {
	case <-c.ctx.Done():
		return 0, c.ctx.Err()
	case res := <-done:
		return copy(p, buf[:res.n]), res.err
	}
}
