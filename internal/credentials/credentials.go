// Package credentials содержит пару Client ID / Client Secret приложения Spotify.
package credentials

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Переменные окружения с учетными данными
const (
	EnvClientID     = "SPOTIFY_CLIENT_ID"
	EnvClientSecret = "SPOTIFY_CLIENT_SECRET"
	EnvRedirectURI  = "SPOTIFY_REDIRECT_URI"
)

const redacted = "[REDACTED]"

var (
	// ErrMissingClientID возвращается, если Client ID не задан
	ErrMissingClientID = errors.New("spotify client ID is required")
	// ErrMissingClientSecret возвращается, если Client Secret не задан
	ErrMissingClientSecret = errors.New("spotify client secret is required")
	// ErrInvalidRedirectURI возвращается для некорректного redirect URI
	ErrInvalidRedirectURI = errors.New("invalid redirect URI")
)

// Credentials представляет учетные данные приложения из Spotify Developer Dashboard.
// RedirectURI нужен только для Authorization Code Flow.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// LookupFunc совпадает по сигнатуре с os.LookupEnv
type LookupFunc func(key string) (string, bool)

// FromEnv читает учетные данные из окружения
func FromEnv(lookup LookupFunc) Credentials {
	get := func(key string) string {
		value, _ := lookup(key)
		return strings.TrimSpace(value)
	}

	return Credentials{
		ClientID:     get(EnvClientID),
		ClientSecret: get(EnvClientSecret),
		RedirectURI:  get(EnvRedirectURI),
	}
}

// Prompt запрашивает недостающие значения у пользователя.
// Уже заполненные поля не перезапрашиваются.
func Prompt(in io.Reader, out io.Writer, current Credentials) (Credentials, error) {
	// Общий bufio.Reader не теряет ввод, который прочитан наперед
	reader, ok := in.(*bufio.Reader)
	if !ok {
		reader = bufio.NewReader(in)
	}

	ask := func(label string) (string, error) {
		if _, err := fmt.Fprintf(out, "%s: ", label); err != nil {
			return "", err
		}
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("failed to read %s: %w", label, err)
		}
		return strings.TrimSpace(line), nil
	}

	var err error
	if strings.TrimSpace(current.ClientID) == "" {
		if current.ClientID, err = ask("Client ID"); err != nil {
			return current, err
		}
	}
	if strings.TrimSpace(current.ClientSecret) == "" {
		if current.ClientSecret, err = ask("Client Secret"); err != nil {
			return current, err
		}
	}

	return current, nil
}

// IsComplete сообщает, заданы ли оба обязательных значения
func (c Credentials) IsComplete() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

// Validate проверяет учетные данные. Все найденные проблемы объединяются в одну ошибку.
func (c Credentials) Validate() error {
	var errs []error

	if strings.TrimSpace(c.ClientID) == "" {
		errs = append(errs, ErrMissingClientID)
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		errs = append(errs, ErrMissingClientSecret)
	}
	if c.RedirectURI != "" {
		if err := ValidateRedirectURI(c.RedirectURI); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ValidateRedirectURI проверяет redirect URI так же, как форма регистрации приложения:
// абсолютный http(s) URL с хостом.
func ValidateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRedirectURI, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidRedirectURI, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidRedirectURI)
	}
	return nil
}

// MaskedClientID возвращает первые 4 символа Client ID
func (c Credentials) MaskedClientID() string {
	id := strings.TrimSpace(c.ClientID)
	if id == "" {
		return ""
	}
	if len(id) <= 4 {
		return "****"
	}
	return id[:4] + "****"
}

// String никогда не выводит секрет
func (c Credentials) String() string {
	secret := ""
	if c.ClientSecret != "" {
		secret = redacted
	}
	return fmt.Sprintf("Credentials{ClientID: %q, ClientSecret: %q}", c.MaskedClientID(), secret)
}

// GoString закрывает вывод через %#v
func (c Credentials) GoString() string {
	return c.String()
}

// MarshalLogObject позволяет передавать учетные данные в zap.Object без утечки секрета
func (c Credentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("client_id", c.MaskedClientID())
	enc.AddBool("client_secret_set", c.ClientSecret != "")
	if c.RedirectURI != "" {
		enc.AddString("redirect_uri", c.RedirectURI)
	}
	return nil
}
