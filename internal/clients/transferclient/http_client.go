package transferclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/delegate-rewards/referral-payout/internal/clients/client"
	"github.com/delegate-rewards/referral-payout/internal/config"
	"github.com/rs/zerolog/log"
)

const transfersEndpoint = "/v1/transfers"

const (
	statusSuccess = "success"
	statusFailed  = "failed"
)

type transferRequest struct {
	Destination    string `json:"destination"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type transferResponse struct {
	Status  string `json:"status"`
	TxHash  string `json:"tx_hash"`
	Message string `json:"message"`
}

// HTTPClient hands transfers to an external signing service
type HTTPClient struct {
	httpClient *http.Client
	cfg        *config.TransferConfig
}

func NewHTTPClient(cfg *config.TransferConfig) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{},
		cfg:        cfg,
	}
}

func (c *HTTPClient) GetBaseURL() string {
	return strings.TrimSuffix(c.cfg.URL, "/")
}

func (c *HTTPClient) GetDefaultRequestTimeout() time.Duration {
	return c.cfg.Timeout
}

func (c *HTTPClient) GetHttpClient() *http.Client {
	return c.httpClient
}

func (c *HTTPClient) AttemptTransfer(ctx context.Context, transfer Transfer) (Outcome, error) {
	key := transfer.IdempotencyKey()
	opts := &client.HttpClientOptions{
		Path:         transfersEndpoint,
		TemplatePath: transfersEndpoint,
		Headers:      map[string]string{"Idempotency-Key": key},
	}
	req := &transferRequest{
		Destination:    transfer.Address,
		Amount:         transfer.Amount.String(),
		IdempotencyKey: key,
	}

	call := func() (*transferResponse, error) {
		return client.SendRequest[transferRequest, transferResponse](ctx, c, http.MethodPost, opts, req)
	}

	resp, err := clientCallWithRetry(ctx, call, c.cfg)
	if err != nil {
		return Failure, fmt.Errorf("transfer to %s failed: %w", transfer.Address, err)
	}

	switch resp.Status {
	case statusSuccess:
		log.Ctx(ctx).Info().
			Str("user", transfer.User).
			Str("address", transfer.Address).
			Stringer("amount", transfer.Amount).
			Str("tx_hash", resp.TxHash).
			Msg("Transfer confirmed")
		return Success, nil
	case statusFailed:
		return Failure, fmt.Errorf("transfer to %s rejected: %s", transfer.Address, resp.Message)
	default:
		return Failure, fmt.Errorf("transfer to %s returned unknown status %q", transfer.Address, resp.Status)
	}
}

func clientCallWithRetry[T any](
	ctx context.Context,
	call retry.RetryableFuncWithData[T],
	cfg *config.TransferConfig,
) (T, error) {
	result, err := retry.DoWithData(call,
		retry.Context(ctx),
		retry.Attempts(cfg.MaxRetryTimes),
		retry.Delay(cfg.RetryInterval),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetriable),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Debug().
				Uint("attempt", n+1).
				Uint("max_attempts", cfg.MaxRetryTimes).
				Err(err).
				Msg("Transfer request failed, retrying")
		}))
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// isRetriable retries transport failures and 429/5xx responses. The idempotency
// key makes a resend of an already executed transfer a no-op on the service side.
func isRetriable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr *client.Error
	if errors.As(err, &httpErr) {
		return httpErr.IsRetriable()
	}
	return true
}
