// Package newsapi fetches and filters news from the You.com search API.
package newsapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "newsbot/pkg/logx"
)

const (
	DefaultEndpoint    = "https://api.ydc-index.io/v1/search"
	DefaultSource      = "مصادر"
	DefaultFallbackURL = "https://you.com"

	maxBodyBytes = 4 << 20
)

// ErrBudget means the call was refused locally before reaching upstream.
var ErrBudget = errors.New("news api call budget exhausted")

type Options struct {
	APIKey        string
	Endpoint      string
	Freshness     string
	Keywords      []string
	MaxItems      int
	SummaryBudget int
	FallbackURL   string
	Timeout       time.Duration
	// RatePerMin caps outbound calls across the process. 0 disables the cap.
	RatePerMin int

	HTTPClient *http.Client
	Log        logx.Logger
}

// Client is safe for concurrent use.
type Client struct {
	apiKey    string
	endpoint  string
	freshness string
	filter    Filter
	maxItems  int
	budget    int
	fallback  string
	timeout   time.Duration
	limiter   *rate.Limiter
	http      *http.Client
	log       logx.Logger
}

func New(opt Options) *Client {
	if opt.Endpoint == "" {
		opt.Endpoint = DefaultEndpoint
	}
	if opt.Freshness == "" {
		opt.Freshness = "day"
	}
	if opt.MaxItems <= 0 {
		opt.MaxItems = 5
	}
	if opt.SummaryBudget <= 0 {
		opt.SummaryBudget = 180
	}
	if opt.FallbackURL == "" {
		opt.FallbackURL = DefaultFallbackURL
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}
	if opt.HTTPClient == nil {
		opt.HTTPClient = &http.Client{Timeout: opt.Timeout}
	}
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}

	var lim *rate.Limiter
	if opt.RatePerMin > 0 {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opt.RatePerMin)), opt.RatePerMin)
	}
	return &Client{
		apiKey:    opt.APIKey,
		endpoint:  opt.Endpoint,
		freshness: opt.Freshness,
		filter:    NewFilter(opt.Keywords),
		maxItems:  opt.MaxItems,
		budget:    opt.SummaryBudget,
		fallback:  opt.FallbackURL,
		timeout:   opt.Timeout,
		limiter:   lim,
		http:      opt.HTTPClient,
		log:       opt.Log.With(logx.String("comp", "newsapi")),
	}
}

// Fetch runs one search and returns the filtered, capped items. It never
// returns an error directly; failures come back as OutcomeFailed.
func (c *Client) Fetch(ctx context.Context, query string, maxRaw int) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res := c.fetch(ctx, query, maxRaw)
	res.Took = time.Since(start)

	fields := []logx.Field{
		logx.String("outcome", string(res.Outcome)),
		logx.String("shape", res.Strategy),
		logx.Int("raw", res.Raw),
		logx.Int("kept", len(res.Items)),
		logx.Duration("took", res.Took),
	}
	if res.Outcome == OutcomeFailed {
		c.log.Warn("news fetch failed", append(fields, logx.Err(res.Err))...)
	} else {
		c.log.Debug("news fetched", fields...)
	}
	return res
}

func (c *Client) fetch(ctx context.Context, query string, maxRaw int) Result {
	fail := func(err error) Result { return Result{Outcome: OutcomeFailed, Err: err} }

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(fmt.Errorf("%w: %v", ErrBudget, err))
		}
	}

	body, err := c.get(ctx, query, maxRaw)
	if err != nil {
		return fail(err)
	}
	raw, shape, err := extract(body)
	if err != nil {
		return fail(fmt.Errorf("decode response: %w", err))
	}

	items := c.normalize(raw)
	out := Result{Items: items, Strategy: shape, Raw: len(raw), Outcome: OutcomeOK}
	if len(items) == 0 {
		out.Outcome = OutcomeEmpty
	}
	return out
}

func (c *Client) get(ctx context.Context, query string, maxRaw int) ([]byte, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("endpoint: %w", err)
	}
	q := u.Query()
	q.Set("query", query)
	q.Set("freshness", c.freshness)
	if maxRaw > 0 {
		q.Set("count", strconv.Itoa(maxRaw))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *Client) normalize(raw []rawItem) []Item {
	out := make([]Item, 0, c.maxItems)
	for _, r := range raw {
		if len(out) == c.maxItems {
			break
		}
		title := strings.TrimSpace(r.Title)
		if title == "" || !c.filter.Match(title) {
			continue
		}
		it := Item{
			Title:   title,
			Summary: TruncateSummary(r.Description, c.budget),
			URL:     strings.TrimSpace(r.URL),
			Source:  strings.TrimSpace(r.SourceName),
			PageAge: r.PageAge,
		}
		if it.URL == "" {
			it.URL = c.fallback
		}
		if it.Source == "" {
			it.Source = DefaultSource
		}
		out = append(out, it)
	}
	return out
}

// StatusError is returned for a non-2xx response.
type StatusError struct{ Code int }

func (e *StatusError) Error() string { return "upstream status " + strconv.Itoa(e.Code) }

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
