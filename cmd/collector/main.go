// Package main запускает сбор почасового чарта Spotify.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"spotifychart/internal/app"
	"spotifychart/internal/config"
	"spotifychart/pkg/logger"

	"github.com/csmith/envflag/v2"
	"go.uber.org/zap"
)

var (
	collectStart  = flag.String("collect-start", "", "Start of the period: year month day [hour], e.g. \"2024 1 1 0\"")
	collectEnd    = flag.String("collect-end", "", "End of the period: year month day [hour], e.g. \"2024 1 7 23\"")
	collectFollow = flag.Bool("collect-follow", false, "Wait for future slots instead of snapshotting them immediately")
	assumeYes     = flag.Bool("assume-yes", false, "Start collecting without confirmation")
)

func main() {
	envflag.Parse()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	log, err := logger.New(cfg.LogConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// Ctrl+C останавливает сбор, собранное сохраняется
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = app.New(cfg, os.Stdin, os.Stdout, log).Run(ctx, app.RunOptions{
		Start:     *collectStart,
		End:       *collectEnd,
		Follow:    *collectFollow,
		AssumeYes: *assumeYes,
	})
	switch {
	case err == nil:
		log.Info("Collector stopped successfully")
	case errors.Is(err, context.Canceled):
		log.Info("Collection interrupted by signal, collected data saved")
		_ = log.Sync()
		os.Exit(130)
	default:
		log.Error("Collector stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}
