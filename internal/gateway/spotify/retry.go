package spotify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// RetryConfig конфигурация для retry механизма
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// RetryableFunc функция, которая может быть повторена
type RetryableFunc func() error

// WithRetry выполняет функцию с retry механизмом.
// Повторяются только временные ошибки, см. isRetryable.
func WithRetry(ctx context.Context, logger *zap.Logger, config RetryConfig, fn RetryableFunc) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		// Токен запрашивается внутри транспорта, отказ приходит обернутым в *url.Error
		lastErr = markInvalidCredentials(err)

		if attempt == config.MaxRetries || !isRetryable(lastErr) {
			break
		}

		delay := time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffMultiplier, float64(attempt)))
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}

		logger.Warn("Retry attempt failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", config.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// isRetryable: 429, 5xx и сетевые ошибки. Ошибки авторизации не повторяем.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrInvalidCredentials) {
		return false
	}

	if status, ok := apiStatus(err); ok {
		return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
	}

	// Ошибку выдачи токена проверяем раньше net.Error: *url.Error тоже net.Error
	if status, ok := tokenStatus(err); ok {
		return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// apiStatus извлекает HTTP статус из ошибки Spotify API
func apiStatus(err error) (int, bool) {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status, true
	}
	var apiErrPtr *spotify.Error
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Status, true
	}
	return 0, false
}

// tokenStatus извлекает HTTP статус ответа token endpoint
func tokenStatus(err error) (int, bool) {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return retrieveErr.Response.StatusCode, true
	}
	return 0, false
}

// markInvalidCredentials помечает отказ token endpoint (400, 401) как ErrInvalidCredentials
func markInvalidCredentials(err error) error {
	if errors.Is(err, ErrInvalidCredentials) {
		return err
	}
	if status, ok := tokenStatus(err); ok {
		switch status {
		case http.StatusBadRequest, http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
	}
	return err
}
