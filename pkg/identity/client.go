package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/time/rate"

	"github.com/Ramsey-B/fictotum/internal/platform/tracing"
	"github.com/Ramsey-B/fictotum/pkg/matching"
	"github.com/Ramsey-B/fictotum/pkg/metrics"
	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/redis"
)

const (
	serviceName = "wikidata"
	blockKey    = "wikidata"

	// MaxResponseSize is the maximum response body size (10MB)
	MaxResponseSize = 10 * 1024 * 1024
)

// Config holds Wikidata client configuration
type Config struct {
	BaseURL        string
	UserAgent      string
	Timeout        time.Duration
	MinInterval    time.Duration // minimum time between requests (default: 500ms)
	MaxAttempts    int           // total attempts per call including the first (default: 3)
	InitialBackoff time.Duration // default: 1s
	MaxBackoff     time.Duration // also caps Retry-After (default: 30s)
	LabelThreshold float64       // label similarity needed to confirm an id (default: 0.75)
	SearchLimit    int           // default: 10
}

// DefaultConfig returns default Wikidata client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://www.wikidata.org/w/api.php",
		UserAgent:      "Fictotum/1.0 (identity validation)",
		Timeout:        10 * time.Second,
		MinInterval:    500 * time.Millisecond,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		LabelThreshold: 0.75,
		SearchLimit:    10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MinInterval < 0 {
		c.MinInterval = 0
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.LabelThreshold <= 0 {
		c.LabelThreshold = d.LabelThreshold
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = d.SearchLimit
	}
	return c
}

// Client calls the Wikidata action API. Requests are spaced by a limiter and
// retried on 429 and 5xx; a shared Redis block key, when configured, makes
// every process honor a back-off one of them was told about.
type Client struct {
	config  Config
	http    *http.Client
	limiter *rate.Limiter
	blocker *redis.Blocker
	scorer  *matching.Scorer
	logger  ectologger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Wikidata client. blocker may be nil.
func NewClient(config Config, blocker *redis.Blocker, logger ectologger.Logger) *Client {
	config = config.withDefaults()

	limit := rate.Inf
	if config.MinInterval > 0 {
		limit = rate.Every(config.MinInterval)
	}

	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		blocker: blocker,
		scorer:  matching.NewScorer(matching.DefaultScorerConfig()),
		logger:  logger,
		sleep:   sleepCtx,
	}
}

type entitiesResponse struct {
	Entities map[string]struct {
		ID           string                            `json:"id"`
		Missing      *string                           `json:"missing,omitempty"`
		Labels       map[string]struct{ Value string } `json:"labels"`
		Descriptions map[string]struct{ Value string } `json:"descriptions"`
	} `json:"entities"`
}

type searchResponse struct {
	Search []struct {
		ID          string `json:"id"`
		Label       string `json:"label"`
		Description string `json:"description"`
	} `json:"search"`
}

// ValidateID fetches qid and compares its English label with expectedLabel
func (c *Client) ValidateID(ctx context.Context, qid, expectedLabel string) (*Validation, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Client.ValidateID")
	defer span.End()

	params := url.Values{
		"action":    {"wbgetentities"},
		"ids":       {qid},
		"props":     {"labels|descriptions"},
		"languages": {"en"},
		"format":    {"json"},
	}
	body, err := c.get(ctx, "validate", params)
	if err != nil {
		return nil, err
	}

	var resp entitiesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &models.ExternalServiceError{Service: serviceName, Err: fmt.Errorf("failed to decode entity response: %w", err)}
	}

	entity, ok := resp.Entities[qid]
	switch {
	case !ok:
		return &Validation{QID: qid, Reason: fmt.Sprintf("%s not found in Wikidata", qid)}, nil
	case entity.Missing != nil:
		return &Validation{QID: qid, Reason: fmt.Sprintf("%s is missing or deleted in Wikidata", qid)}, nil
	}
	label, ok := entity.Labels["en"]
	if !ok {
		return &Validation{QID: qid, Reason: fmt.Sprintf("%s has no English label", qid)}, nil
	}

	similarity := c.scorer.Ratio(expectedLabel, label.Value)
	v := &Validation{
		QID:         qid,
		Valid:       similarity >= c.config.LabelThreshold,
		Label:       label.Value,
		Description: entity.Descriptions["en"].Value,
		Similarity:  similarity,
	}
	if !v.Valid {
		v.Reason = fmt.Sprintf("label %q is only %.0f%% similar to %q", label.Value, similarity*100, expectedLabel)
	}
	return v, nil
}

// Search looks a work up by title plus creator and year, preferring results
// whose description fits the category. Results scoring under 0.7 are dropped.
func (c *Client) Search(ctx context.Context, query SearchQuery) (*SearchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Client.Search")
	defer span.End()

	if strings.TrimSpace(query.Title) == "" {
		return nil, &models.ValidationError{Field: "title", Message: "is required for identity search"}
	}

	terms := []string{query.Title}
	if query.Creator != "" {
		terms = append(terms, query.Creator)
	}
	if query.Year != nil {
		terms = append(terms, strconv.Itoa(*query.Year))
	}
	params := url.Values{
		"action":   {"wbsearchentities"},
		"search":   {strings.Join(terms, " ")},
		"language": {"en"},
		"limit":    {strconv.Itoa(c.config.SearchLimit)},
		"format":   {"json"},
		"type":     {"item"},
	}
	body, err := c.get(ctx, "search", params)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &models.ExternalServiceError{Service: serviceName, Err: fmt.Errorf("failed to decode search response: %w", err)}
	}
	if len(resp.Search) == 0 {
		return nil, nil
	}

	type scored struct {
		SearchResult
		categoryMatch bool
	}
	candidates := make([]scored, 0, len(resp.Search))
	for _, r := range resp.Search {
		similarity := c.scorer.Ratio(query.Title, r.Label)
		score := similarity
		if query.Creator != "" && strings.Contains(strings.ToLower(r.Description), strings.ToLower(query.Creator)) {
			score += 0.2
		}
		candidates = append(candidates, scored{
			SearchResult: SearchResult{
				QID:         r.ID,
				Label:       r.Label,
				Description: r.Description,
				Similarity:  similarity,
				Score:       score,
			},
			categoryMatch: query.Category == "" || matchesCategory(query.Category, r.Description),
		})
	}

	if query.Category != "" {
		var typed []scored
		for _, cand := range candidates {
			if cand.categoryMatch {
				typed = append(typed, cand)
			}
		}
		if len(typed) > 0 {
			candidates = typed
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	best := candidates[0].SearchResult
	best.Confidence = confidenceFor(best.Score)
	if best.Confidence == ConfidenceLow {
		return nil, nil
	}
	return &best, nil
}

// get performs one rate-limited API call with bounded retry
func (c *Client) get(ctx context.Context, operation string, params url.Values) ([]byte, error) {
	log := c.logger.WithContext(ctx).WithField("operation", operation)

	var lastErr error
	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if err := c.waitTurn(ctx); err != nil {
			return nil, &models.ExternalServiceError{Service: serviceName, Err: err}
		}

		body, retryAfter, err := c.do(ctx, operation, params)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var ext *models.ExternalServiceError
		if errors.As(err, &ext) && !retryable(ext.StatusCode) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, &models.ExternalServiceError{Service: serviceName, Err: ctx.Err()}
		}

		delay := c.backoff(attempt)
		if retryAfter > 0 {
			delay = min(retryAfter, c.config.MaxBackoff)
		}
		if ext != nil && ext.StatusCode == http.StatusTooManyRequests && c.blocker != nil {
			if err := c.blocker.BlockFor(ctx, blockKey, delay); err != nil {
				log.WithError(err).Warn("Failed to share identity back-off")
			}
		}
		if attempt >= c.config.MaxAttempts-1 {
			break
		}

		log.WithError(err).WithFields(map[string]any{
			"attempt": attempt + 1,
			"delay":   delay.String(),
		}).Warn("Retrying identity lookup")
		if err := c.sleep(ctx, delay); err != nil {
			return nil, &models.ExternalServiceError{Service: serviceName, Err: err}
		}
	}
	return nil, lastErr
}

// waitTurn honors a shared block and then the local limiter
func (c *Client) waitTurn(ctx context.Context) error {
	if c.blocker != nil {
		blocked, ttl, err := c.blocker.IsBlocked(ctx, blockKey)
		if err != nil {
			c.logger.WithContext(ctx).WithError(err).Warn("Failed to read shared identity back-off")
		} else if blocked && ttl > 0 {
			if err := c.sleep(ctx, min(ttl, c.config.MaxBackoff)); err != nil {
				return err
			}
		}
	}
	return c.limiter.Wait(ctx)
}

// do returns the body on 200, otherwise an ExternalServiceError and any Retry-After delay
func (c *Client) do(ctx context.Context, operation string, params url.Values) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.IdentityRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IdentityRequestsTotal.WithLabelValues(operation, "error").Inc()
		return nil, 0, &models.ExternalServiceError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()
	metrics.IdentityRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, 0, &models.ExternalServiceError{Service: serviceName, StatusCode: resp.StatusCode, Err: err}
	}
	if len(body) > MaxResponseSize {
		return nil, 0, &models.ExternalServiceError{Service: serviceName, StatusCode: resp.StatusCode, Err: errors.New("response body too large")}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()), &models.ExternalServiceError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s request failed", operation),
		}
	}
	return body, 0, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.config.InitialBackoff << attempt
	if d <= 0 || d > c.config.MaxBackoff {
		return c.config.MaxBackoff
	}
	return d
}

// retryable covers throttling, server errors and transport failures (status 0)
func retryable(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Validator = (*Client)(nil)
