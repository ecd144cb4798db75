package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/intprep/apiserver/config"
	"go.uber.org/zap"
)

const (
	defaultPollInterval    = time.Second
	defaultMaxPollAttempts = 30
	defaultHTTPTimeout     = 10 * time.Second
	maxErrorBodyBytes      = 4 << 10
	resultFields           = "token,stdout,stderr,compile_output,status,time,memory"
)

var (
	// ErrJudgeUnavailable is returned when the judge cannot be reached or
	// answers with an error.
	ErrJudgeUnavailable = errors.New("judge unavailable")

	// ErrPollExhausted is returned when some results are still queued or
	// processing after the configured number of poll attempts.
	ErrPollExhausted = errors.New("judge results not ready")

	errPending = errors.New("results pending")
)

// Request is a single execution request. One is sent per testcase.
type Request struct {
	SourceCode     string `json:"source_code"`
	LanguageID     int    `json:"language_id"`
	Stdin          string `json:"stdin"`
	ExpectedOutput string `json:"expected_output,omitempty"`
}

// Result is the judge's report for one token.
type Result struct {
	Token         string   `json:"token"`
	Status        Status   `json:"status"`
	Stdout        *string  `json:"stdout"`
	Stderr        *string  `json:"stderr"`
	CompileOutput *string  `json:"compile_output"`
	Time          *Seconds `json:"time"`
	Memory        *int     `json:"memory"`
}

// Seconds is an execution time. The judge encodes it as a decimal string.
type Seconds float64

func (s *Seconds) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" {
		*s = 0
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid time %q: %w", raw, err)
	}
	*s = Seconds(value)
	return nil
}

// Client talks to a Judge0-compatible HTTP API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	authToken    string
	rapidAPIKey  string
	rapidAPIHost string
	pollInterval time.Duration
	maxAttempts  int
	logger       *zap.Logger
}

// NewClient constructs a Client from config.
func NewClient(cfg config.JudgeConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval, attempts, timeout := limits(cfg)

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		authToken:    cfg.AuthToken,
		rapidAPIKey:  cfg.RapidAPIKey,
		rapidAPIHost: cfg.RapidAPIHost,
		pollInterval: interval,
		maxAttempts:  attempts,
		logger:       logger,
	}
}

// Budget is the longest Execute can take under cfg: the submit call plus
// every poll attempt, each allowed the full HTTP timeout.
func Budget(cfg config.JudgeConfig) time.Duration {
	interval, attempts, timeout := limits(cfg)
	return timeout + time.Duration(attempts)*(timeout+interval)
}

func limits(cfg config.JudgeConfig) (interval time.Duration, attempts int, timeout time.Duration) {
	interval = cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	attempts = cfg.MaxPollAttempts
	if attempts <= 0 {
		attempts = defaultMaxPollAttempts
	}
	timeout = cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return interval, attempts, timeout
}

// Execute submits the batch and waits for every result. Results are
// index-aligned with requests.
func (c *Client) Execute(ctx context.Context, requests []Request) ([]Result, error) {
	tokens, err := c.SubmitBatch(ctx, requests)
	if err != nil {
		return nil, err
	}
	results, err := c.PollBatch(ctx, tokens)
	if err != nil {
		return nil, err
	}
	if len(results) != len(requests) {
		return nil, fmt.Errorf("%w: expected %d results, got %d", ErrJudgeUnavailable, len(requests), len(results))
	}
	return results, nil
}

// SubmitBatch queues every request in a single call and returns one token
// per request, in request order.
func (c *Client) SubmitBatch(ctx context.Context, requests []Request) ([]string, error) {
	if len(requests) == 0 {
		return nil, errors.New("empty batch")
	}

	body, err := json.Marshal(struct {
		Submissions []Request `json:"submissions"`
	}{Submissions: requests})
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("base64_encoded", "false")

	var created []struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/submissions/batch", query, body, &created); err != nil {
		return nil, err
	}
	if len(created) != len(requests) {
		return nil, fmt.Errorf("%w: expected %d tokens, got %d", ErrJudgeUnavailable, len(requests), len(created))
	}

	tokens := make([]string, len(created))
	for i, item := range created {
		if strings.TrimSpace(item.Token) == "" {
			return nil, fmt.Errorf("%w: submission %d rejected", ErrJudgeUnavailable, i+1)
		}
		tokens[i] = item.Token
	}
	return tokens, nil
}

// PollBatch fetches results until every token reaches a terminal status,
// waiting the configured interval between attempts. Results are returned in
// token order.
func (c *Client) PollBatch(ctx context.Context, tokens []string) ([]Result, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	var policy backoff.BackOff = backoff.NewConstantBackOff(c.pollInterval)
	policy = backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1))
	policy = backoff.WithContext(policy, ctx)

	attempt := 0
	results, err := backoff.RetryWithData(func() ([]Result, error) {
		attempt++
		results, err := c.fetchBatch(ctx, tokens)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		pending := countPending(results)
		if pending > 0 {
			c.logger.Debug("judge results pending",
				zap.Int("attempt", attempt),
				zap.Int("pending", pending),
				zap.Int("tokens", len(tokens)),
			)
			return nil, errPending
		}
		return results, nil
	}, policy)
	if err != nil {
		if errors.Is(err, errPending) {
			return nil, fmt.Errorf("%w after %d attempts", ErrPollExhausted, attempt)
		}
		return nil, err
	}
	return results, nil
}

func (c *Client) fetchBatch(ctx context.Context, tokens []string) ([]Result, error) {
	query := url.Values{}
	query.Set("tokens", strings.Join(tokens, ","))
	query.Set("base64_encoded", "false")
	query.Set("fields", resultFields)

	var payload struct {
		Submissions []*Result `json:"submissions"`
	}
	if err := c.do(ctx, http.MethodGet, "/submissions/batch", query, nil, &payload); err != nil {
		return nil, err
	}

	byToken := make(map[string]Result, len(payload.Submissions))
	for _, result := range payload.Submissions {
		if result != nil {
			byToken[result.Token] = *result
		}
	}

	// A token missing from the response is treated as still queued.
	results := make([]Result, len(tokens))
	for i, token := range tokens {
		result, ok := byToken[token]
		if !ok {
			result = Result{Token: token, Status: Status{ID: StatusInQueue, Description: "In Queue"}}
		}
		results[i] = result
	}
	return results, nil
}

func countPending(results []Result) int {
	pending := 0
	for _, result := range results {
		if !result.Status.Terminal() {
			pending++
		}
	}
	return pending
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build judge request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("X-Auth-Token", c.authToken)
	}
	if c.rapidAPIKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.rapidAPIKey)
		if c.rapidAPIHost != "" {
			req.Header.Set("X-RapidAPI-Host", c.rapidAPIHost)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrJudgeUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrJudgeUnavailable, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", ErrJudgeUnavailable, path, err)
	}
	return nil
}
