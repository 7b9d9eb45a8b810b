package supplier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"catalogsync/internal/logger"
)

const (
	StageLogin    = "login"
	StageDownload = "download"

	maxSheetSize = 64 << 20
)

// FetchError reports a failed login or download. It is always fatal for
// the run that hit it.
type FetchError struct {
	Stage string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("supplier %s failed: %v", e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type FetcherConfig struct {
	LoginURL string
	SheetURL string
	Username string
	Password string
	Timeout  time.Duration
}

// Fetcher logs into the supplier portal and downloads the price list.
type Fetcher struct {
	cfg    FetcherConfig
	logger *logger.Logger
}

func NewFetcher(cfg FetcherConfig, logger *logger.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Fetcher{
		cfg:    cfg,
		logger: logger,
	}
}

// Fetch opens a fresh session, logs in and returns the raw spreadsheet.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, &FetchError{Stage: StageLogin, Err: err}
	}
	client := &http.Client{
		Jar:     jar,
		Timeout: f.cfg.Timeout,
	}

	if err := f.login(ctx, client); err != nil {
		return nil, &FetchError{Stage: StageLogin, Err: err}
	}
	f.logger.Info("Logged in to supplier portal")

	blob, err := f.download(ctx, client)
	if err != nil {
		return nil, &FetchError{Stage: StageDownload, Err: err}
	}
	f.logger.Info("Downloaded supplier sheet (%d bytes)", len(blob))
	return blob, nil
}

func (f *Fetcher) login(ctx context.Context, client *http.Client) error {
	if f.cfg.LoginURL == "" {
		return errors.New("no login url configured")
	}

	form := url.Values{}
	form.Set("username", f.cfg.Username)
	form.Set("password", f.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("login request failed: %d", resp.StatusCode)
	}
	// The portal answers 200 either way and reports bad credentials inline.
	if strings.Contains(strings.ToLower(string(body)), "error") {
		return errors.New("credentials rejected")
	}
	return nil
}

func (f *Fetcher) download(ctx context.Context, client *http.Client) ([]byte, error) {
	if f.cfg.SheetURL == "" {
		return nil, errors.New("no sheet url configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.SheetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download request failed: %d", resp.StatusCode)
	}

	blob, err := io.ReadAll(io.LimitReader(resp.Body, maxSheetSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(blob) > maxSheetSize {
		return nil, fmt.Errorf("sheet larger than %d bytes", maxSheetSize)
	}
	if len(blob) == 0 {
		return nil, errors.New("empty sheet")
	}
	return blob, nil
}
