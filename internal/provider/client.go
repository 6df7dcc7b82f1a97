package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// RecordKind names a provider feed.
type RecordKind string

const (
	StatusChanges RecordKind = "status_changes"
	Trips         RecordKind = "trips"
)

// Page is one page of a provider response, normalized across feeds: the raw
// records plus the continuation URL, if any.
type Page struct {
	Version string
	Records []json.RawMessage
	Next    string
}

// Query bounds a fetch. Status-change queries send start_time/end_time; trip
// queries send min_end_time/max_end_time plus the optional device and vehicle
// filters.
type Query struct {
	StartTime time.Time
	EndTime   time.Time
	Paging    bool
	RateLimit time.Duration
	DeviceID  string
	VehicleID string
}

type payload struct {
	Version string                           `json:"version"`
	Data    map[RecordKind][]json.RawMessage `json:"data"`
	Links   struct {
		Next string `json:"next"`
	} `json:"links"`
}

// Client fetches paginated record pages from a provider endpoint. It holds no
// storage side effects; transport failures are retried per page with backoff.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	token       string
	maxRetries  int
	backoffBase time.Duration
	log         zerolog.Logger
}

func NewClient(endpoint, token string, log zerolog.Logger) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		endpoint:    endpoint,
		token:       token,
		maxRetries:  3,
		backoffBase: time.Second,
		log:         log,
	}
}

// Fetch requests successive pages of the given kind until no continuation is
// returned (or after the first page, when paging is off), sleeping the query's
// rate limit between page requests. A page that fails after all retries aborts
// the fetch; pages already returned are unaffected.
func (c *Client) Fetch(ctx context.Context, kind RecordKind, q Query) ([]Page, error) {
	next, err := c.firstPageURL(kind, q)
	if err != nil {
		return nil, err
	}

	var pages []Page
	for next != "" {
		page, err := c.fetchPage(ctx, kind, next)
		if err != nil {
			return pages, fmt.Errorf("fetch %s page %d: %w", kind, len(pages)+1, err)
		}
		pages = append(pages, page)

		next = page.Next
		if !q.Paging {
			break
		}
		if next != "" && q.RateLimit > 0 {
			select {
			case <-ctx.Done():
				return pages, ctx.Err()
			case <-time.After(q.RateLimit):
			}
		}
	}

	c.log.Info().
		Str("kind", string(kind)).
		Int("pages", len(pages)).
		Msg("fetch complete")
	return pages, nil
}

func (c *Client) firstPageURL(kind RecordKind, q Query) (string, error) {
	base, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("provider endpoint: %w", err)
	}
	base = base.JoinPath(string(kind))

	params := url.Values{}
	switch kind {
	case StatusChanges:
		params.Set("start_time", unixMillis(q.StartTime))
		params.Set("end_time", unixMillis(q.EndTime))
	case Trips:
		params.Set("min_end_time", unixMillis(q.StartTime))
		params.Set("max_end_time", unixMillis(q.EndTime))
		if q.DeviceID != "" {
			params.Set("device_id", q.DeviceID)
		}
		if q.VehicleID != "" {
			params.Set("vehicle_id", q.VehicleID)
		}
	default:
		return "", fmt.Errorf("unknown record kind %q", kind)
	}

	base.RawQuery = params.Encode()
	return base.String(), nil
}

func (c *Client) fetchPage(ctx context.Context, kind RecordKind, pageURL string) (Page, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoffBase << (attempt - 1)
			c.log.Warn().
				Err(lastErr).
				Str("kind", string(kind)).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying page fetch")
			select {
			case <-ctx.Done():
				return Page{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		page, err := c.doFetch(ctx, kind, pageURL)
		if err == nil {
			return page, nil
		}
		lastErr = err
	}
	return Page{}, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (c *Client) doFetch(ctx context.Context, kind RecordKind, pageURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Page{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	var pl payload
	if err := json.NewDecoder(resp.Body).Decode(&pl); err != nil {
		return Page{}, fmt.Errorf("decode payload: %w", err)
	}

	return Page{
		Version: pl.Version,
		Records: pl.Data[kind],
		Next:    pl.Links.Next,
	}, nil
}

func unixMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
