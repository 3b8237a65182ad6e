package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/observability/metrics"
	"github.com/rs/zerolog/log"
)

// BaseClient is implemented by every http backed client
type BaseClient interface {
	GetBaseURL() string
	GetDefaultRequestTimeout() time.Duration
	GetHttpClient() *http.Client
}

type HttpClientOptions struct {
	Timeout time.Duration
	Path    string
	// TemplatePath is used as the metrics label so ids in Path do not explode cardinality
	TemplatePath string
	Headers      map[string]string
}

// Error is returned for any non 2xx response
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Message)
}

// IsRetriable reports whether the request may succeed when sent again
func (e *Error) IsRetriable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func isAllowedMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodPost
}

func sendRequest[I any, R any](
	ctx context.Context, client BaseClient, method string, opts *HttpClientOptions, input *I,
) (*R, error) {
	if !isAllowedMethod(method) {
		return nil, fmt.Errorf("method %s is not allowed", method)
	}

	url := client.GetBaseURL() + opts.Path
	timeout := client.GetDefaultRequestTimeout()
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if input != nil {
		payload, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.GetHttpClient().Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("request to %s timed out: %w", url, err)
		}
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: string(raw)}
	}

	var output R
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &output); err != nil {
			return nil, fmt.Errorf("failed to decode response body: %w", err)
		}
	}

	return &output, nil
}

// SendRequest sends input as json and decodes the json response into R, recording the request duration
func SendRequest[I any, R any](
	ctx context.Context, client BaseClient, method string, opts *HttpClientOptions, input *I,
) (*R, error) {
	timer := metrics.StartClientRequestDurationTimer(
		client.GetBaseURL(), method, opts.TemplatePath,
	)

	result, err := sendRequest[I, R](ctx, client, method, opts, input)
	if err != nil {
		statusCode := 0
		var httpErr *Error
		if errors.As(err, &httpErr) {
			statusCode = httpErr.StatusCode
		}
		timer(statusCode)
		log.Ctx(ctx).Debug().Err(err).Str("path", opts.TemplatePath).Msg("Request failed")
		return nil, err
	}

	timer(http.StatusOK)
	return result, nil
}
