package itn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// AuthorityConfirmer asks the gateway whether it really sent a notification.
// Implementations never return errors: failures are Inconclusive results.
type AuthorityConfirmer interface {
	Confirm(ctx context.Context, rawBody []byte) CheckResult
}

const (
	tokenValid   = "VALID"
	tokenInvalid = "INVALID"

	maxTokenBytes = 64
)

type ConfirmerConfig struct {
	ValidateURL string
	Timeout     time.Duration

	BreakerName         string
	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
}

// HTTPConfirmer replays the raw body to the gateway validate endpoint.
type HTTPConfirmer struct {
	validateURL string
	timeout     time.Duration
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[[]byte]
	logger      *slog.Logger
}

func NewHTTPConfirmer(cfg ConfirmerConfig, logger *slog.Logger) *HTTPConfirmer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPConfirmer{
		validateURL: cfg.ValidateURL,
		timeout:     timeout,
		client:      &http.Client{Timeout: timeout},
		breaker:     newBreaker(cfg, logger),
		logger:      logger,
	}
}

func newBreaker(cfg ConfirmerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[[]byte] {
	minRequests := cfg.BreakerMinRequests
	if minRequests == 0 {
		minRequests = 3
	}
	ratio := cfg.BreakerFailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}
	name := cfg.BreakerName
	if name == "" {
		name = "itn-authority-confirm"
	}

	var st gobreaker.Settings
	st.Name = name
	st.MaxRequests = cfg.BreakerMaxRequests
	st.Interval = cfg.BreakerInterval
	st.Timeout = cfg.BreakerTimeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.Requests >= minRequests && failureRatio >= ratio
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("authority confirm breaker state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String())
	}

	return gobreaker.NewCircuitBreaker[[]byte](st)
}

func (c *HTTPConfirmer) Confirm(ctx context.Context, rawBody []byte) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	token, err := c.breaker.Execute(func() ([]byte, error) {
		return c.post(ctx, rawBody)
	})
	if err != nil {
		detail := err.Error()
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			detail = "gateway validation suspended: " + err.Error()
		case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
			detail = fmt.Sprintf("gateway validation timed out after %s", c.timeout)
		}
		c.logger.Warn("authority confirmation inconclusive",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return inconclusive(CheckAuthority, detail)
	}

	return InterpretToken(token)
}

func (c *HTTPConfirmer) post(ctx context.Context, rawBody []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.validateURL, bytes.NewReader(rawBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create validate request: %w", err)
	}
	req.Header.Set("Content-Type", FormContentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validate request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read validate response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gateway validate returned status %d", resp.StatusCode)
	}

	return body, nil
}

// InterpretToken maps the gateway's answer onto a check result.
func InterpretToken(body []byte) CheckResult {
	token := strings.ToUpper(strings.TrimSpace(string(body)))
	switch token {
	case tokenValid:
		return passed(CheckAuthority, "gateway answered VALID")
	case tokenInvalid:
		return rejected(CheckAuthority, "gateway answered INVALID")
	default:
		return inconclusive(CheckAuthority, fmt.Sprintf("unrecognised gateway answer %q", truncate(token, 20)))
	}
}
