// Package identity verifies that the user id presented on a request belongs
// to a real account. Accounts live in a separate service; this module only
// asks yes or no.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/frahmantamala/stay-booking/internal"
)

type Provider interface {
	Verify(ctx context.Context, userID int64) error
}

// HTTPProvider checks user ids against the identity service.
type HTTPProvider struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPProvider(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (p *HTTPProvider) Verify(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/users/%d", p.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperrors.NewInternalError("failed to build identity request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Error("identity verification request failed", "error", err, "user_id", userID)
		return apperrors.NewInternalError("identity service unreachable", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return apperrors.ErrIdentityUnverified
	default:
		p.logger.Error("identity service returned unexpected status",
			"status_code", resp.StatusCode,
			"user_id", userID)
		return apperrors.NewInternalError(fmt.Sprintf("identity service returned status %d", resp.StatusCode), nil)
	}
}

// NoopProvider accepts every positive user id, used in local development and
// tests where no identity service is running.
type NoopProvider struct{}

func (NoopProvider) Verify(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return apperrors.ErrIdentityUnverified
	}
	return nil
}
