// Package enrichr queries the Enrichr web service (and its organism-specific
// siblings) as an enrichment provider.
package enrichr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"enrich/internal/domain"
)

// DefaultBaseURL is the public Enrichr host.
const DefaultBaseURL = "https://maayanlab.cloud"

// Config configures the Enrichr client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64 // <= 0 disables rate limiting
	Description       string
	HTTPClient        *http.Client
}

// Client implements domain.EnrichmentProvider. It is safe for concurrent use.
type Client struct {
	baseURL     string
	description string
	client      *http.Client
	maxRetries  int
	limiter     *rate.Limiter
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewClient creates a client using the provided configuration.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Description == "" {
		cfg.Description = "enrich"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		description: cfg.Description,
		client:      hc,
		maxRetries:  cfg.MaxRetries,
		limiter:     rate.NewLimiter(limit, 1),
		baseDelay:   200 * time.Millisecond,
		maxDelay:    5 * time.Second,
	}
}

// Name returns the identifier of this provider implementation.
func (c *Client) Name() string { return "enrichr" }

// ServiceFor maps an organism to the Enrichr deployment that hosts its libraries.
func ServiceFor(organism string) string {
	switch strings.ToLower(strings.TrimSpace(organism)) {
	case "fly", "drosophila":
		return "FlyEnrichr"
	case "yeast":
		return "YeastEnrichr"
	case "worm", "c. elegans", "celegans":
		return "WormEnrichr"
	case "fish", "zebrafish":
		return "FishEnrichr"
	default:
		return "Enrichr"
	}
}

// Query uploads genes once and runs enrichment against every library, concatenating
// the per-library tables in library order.
func (c *Client) Query(ctx context.Context, genes []string, libraries []string, organism string) (*domain.ResultTable, error) {
	if len(genes) == 0 {
		return nil, errors.New("empty gene list")
	}
	if len(libraries) == 0 {
		return nil, errors.New("no gene-set libraries")
	}
	svc := ServiceFor(organism)
	listID, err := c.addList(ctx, svc, genes)
	if err != nil {
		return nil, err
	}
	table := &domain.ResultTable{Label: strings.Join(libraries, ",")}
	for _, lib := range libraries {
		rows, err := c.enrich(ctx, svc, listID, lib, len(genes))
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, rows...)
	}
	return table, nil
}

func (c *Client) addList(ctx context.Context, svc string, genes []string) (int64, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("list", strings.Join(genes, "\n"))
	_ = mw.WriteField("description", c.description)
	if err := mw.Close(); err != nil {
		return 0, err
	}
	payload := body.Bytes()
	endpoint := fmt.Sprintf("%s/%s/addList", c.baseURL, svc)

	data, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return 0, err
	}
	var out struct {
		UserListID int64  `json:"userListId"`
		ShortID    string `json:"shortId"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("decode addList response: %w", err)
	}
	if out.UserListID == 0 {
		return 0, errors.New("enrichr returned no userListId")
	}
	return out.UserListID, nil
}

func (c *Client) enrich(ctx context.Context, svc string, listID int64, library string, querySize int) ([]domain.ResultRow, error) {
	q := url.Values{}
	q.Set("userListId", strconv.FormatInt(listID, 10))
	q.Set("backgroundType", library)
	endpoint := fmt.Sprintf("%s/%s/enrich?%s", c.baseURL, svc, q.Encode())

	data, err := c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, err
	}
	var out map[string][][]json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode enrich response for %s: %w", library, err)
	}
	entries, ok := out[library]
	if !ok {
		return nil, fmt.Errorf("library %s not found on %s", library, svc)
	}
	rows := make([]domain.ResultRow, 0, len(entries))
	for i, e := range entries {
		row, err := parseEntry(library, e, querySize)
		if err != nil {
			return nil, fmt.Errorf("%s entry %d: %w", library, i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseEntry decodes [rank, term, p, odds ratio, combined score, genes, adjusted p, old p, old adjusted p].
func parseEntry(library string, e []json.RawMessage, querySize int) (domain.ResultRow, error) {
	if len(e) < 7 {
		return domain.ResultRow{}, fmt.Errorf("expected at least 7 fields, got %d", len(e))
	}
	row := domain.ResultRow{GeneSet: library}
	if err := json.Unmarshal(e[1], &row.Term); err != nil {
		return row, fmt.Errorf("term: %w", err)
	}
	nums := []struct {
		idx int
		dst *float64
	}{
		{2, &row.PValue}, {3, &row.OddsRatio}, {4, &row.CombinedScore}, {6, &row.AdjustedPValue},
		{7, &row.OldPValue}, {8, &row.OldAdjustedPValue},
	}
	for _, n := range nums {
		if n.idx >= len(e) {
			continue
		}
		if err := json.Unmarshal(e[n.idx], n.dst); err != nil {
			return row, fmt.Errorf("field %d: %w", n.idx, err)
		}
	}
	if err := json.Unmarshal(e[5], &row.Genes); err != nil {
		return row, fmt.Errorf("genes: %w", err)
	}
	row.Overlap = fmt.Sprintf("%d/%d", len(row.Genes), querySize)
	return row, nil
}

// do sends the request built by newReq, retrying transport errors, 429 and 5xx.
func (c *Client) do(ctx context.Context, newReq func() (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := newReq()
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if attempt < c.maxRetries {
				if err := sleep(ctx, c.retryDelay(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := c.retryAfter(resp.Header.Get("Retry-After"), attempt)
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("enrichr %s %s: %s", req.Method, req.URL.Path, resp.Status)
			if attempt < c.maxRetries {
				if err := sleep(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("enrichr %s %s: %s", req.Method, req.URL.Path, resp.Status)
		}
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries {
				if err := sleep(ctx, c.retryDelay(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}
		return payload, nil
	}
	return nil, lastErr
}

func (c *Client) retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// exponential backoff capped at maxDelay
	d := c.baseDelay << attempt
	if d > c.maxDelay || d <= 0 {
		d = c.maxDelay
	}
	return d
}

// retryAfter honours a Retry-After header given in seconds, within the same
// cap as the backoff.
func (c *Client) retryAfter(header string, attempt int) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return c.retryDelay(attempt)
	}
	d := time.Duration(secs) * time.Second
	if d > c.maxDelay {
		d = c.maxDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
