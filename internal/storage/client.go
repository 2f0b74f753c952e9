package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Object names stored under each fiche prefix
const (
	FunctionObject   = "function.star"
	ParametersObject = "parameters.json"
)

// maxObjectSize bounds a downloaded object
const maxObjectSize = 1 << 20

// ErrNotFound is returned when the storage has no object for a fiche
var ErrNotFound = errors.New("object not found")

// FicheUpdater receives a refreshed calculation source
type FicheUpdater interface {
	UpdateFunction(code, src string, options map[string][]string) error
}

// Client fetches fiche objects from the remote object storage and caches
// them in the local database.
type Client struct {
	db         *sql.DB
	baseURL    string
	httpClient *http.Client
	ttl        time.Duration
	now        func() time.Time
}

// NewClient creates a storage client. A zero ttl disables caching.
func NewClient(db *sql.DB, baseURL string, ttl time.Duration) *Client {
	return &Client{
		db:      db,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		ttl: ttl,
		now: time.Now,
	}
}

// FetchFunction returns the calculation source of a fiche
func (c *Client) FetchFunction(ctx context.Context, code string) (string, error) {
	return c.fetch(ctx, objectKey(code, FunctionObject))
}

// FetchParameterOptions returns the allowed values of the fiche's
// enumerated parameters. A fiche without a parameters object has none.
func (c *Client) FetchParameterOptions(ctx context.Context, code string) (map[string][]string, error) {
	body, err := c.fetch(ctx, objectKey(code, ParametersObject))
	if errors.Is(err, ErrNotFound) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	var options map[string][]string
	if err := json.Unmarshal([]byte(body), &options); err != nil {
		return nil, fmt.Errorf("failed to parse parameter options for %s: %w", code, err)
	}
	if options == nil {
		options = map[string][]string{}
	}
	return options, nil
}

// Sync downloads a fiche's objects and hands them to the catalogue
func (c *Client) Sync(ctx context.Context, code string, catalogue FicheUpdater) error {
	if err := c.Invalidate(code); err != nil {
		return err
	}

	src, err := c.FetchFunction(ctx, code)
	if err != nil {
		return err
	}
	options, err := c.FetchParameterOptions(ctx, code)
	if err != nil {
		return err
	}

	if err := catalogue.UpdateFunction(code, src, options); err != nil {
		return fmt.Errorf("failed to update fiche %s: %w", code, err)
	}
	return nil
}

// Invalidate drops the cached objects of a fiche
func (c *Client) Invalidate(code string) error {
	_, err := c.db.Exec("DELETE FROM storage_cache WHERE key LIKE ?", objectPrefix(code)+"%")
	if err != nil {
		return fmt.Errorf("failed to invalidate cache for %s: %w", code, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, key string) (string, error) {
	if body, ok := c.cached(key); ok {
		return body, nil
	}

	if c.baseURL == "" {
		return "", fmt.Errorf("storage URL is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+key, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("storage returned status %d for %s", resp.StatusCode, key)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(data) > maxObjectSize {
		return "", fmt.Errorf("object %s exceeds %d bytes", key, maxObjectSize)
	}

	body := string(data)
	c.store(key, body)
	return body, nil
}

// cached returns a fresh cache entry for key
func (c *Client) cached(key string) (string, bool) {
	if c.ttl <= 0 {
		return "", false
	}

	var body string
	var fetchedAt int64
	err := c.db.QueryRow("SELECT body, fetched_at FROM storage_cache WHERE key = ?", key).Scan(&body, &fetchedAt)
	if err != nil {
		return "", false
	}
	if c.now().Sub(time.Unix(fetchedAt, 0)) > c.ttl {
		return "", false
	}
	return body, true
}

func (c *Client) store(key, body string) {
	if c.ttl <= 0 {
		return
	}
	// Cache failures only cost a refetch
	_, _ = c.db.Exec(`
		INSERT INTO storage_cache (key, body, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, fetched_at = excluded.fetched_at
	`, key, body, c.now().Unix())
}

func objectPrefix(code string) string {
	return url.PathEscape(strings.ToUpper(strings.TrimSpace(code))) + "/"
}

func objectKey(code, object string) string {
	return objectPrefix(code) + object
}
