// Package authclient talks to auth-service over its internal routes.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"venue-server/shared/middleware"
	"venue-server/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config содержит настройки клиента auth-service.
type Config struct {
	BaseURL        string
	InternalSecret string
	Timeout        time.Duration
}

// Client implements authn.Renewer and authn.SubjectChecker.
type Client struct {
	baseURL        string
	internalSecret string
	timeout        time.Duration
	httpClient     *http.Client
	logger         *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		internalSecret: cfg.InternalSecret,
		timeout:        cfg.Timeout,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		logger:         logger.Named("AuthServiceClient"),
	}
}

// Renew exchanges a refresh credential for a new pair. Rejections become
// models.ErrSessionExpired or a *models.RestrictedError; transport failures and
// 5xx become models.ErrUpstreamUnavailable.
func (c *Client) Renew(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	var pair models.TokenPair
	status, errResp, err := c.do(ctx, http.MethodPost, "/internal/auth/session/renew", models.RenewRequest{RefreshToken: refreshToken}, &pair)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, rejection(status, errResp, models.ErrSessionExpired)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil, fmt.Errorf("%w: renewal response without tokens", models.ErrSessionExpired)
	}
	return &pair, nil
}

// Revoke deletes a refresh credential. Best effort: auth-service always answers 204.
func (c *Client) Revoke(ctx context.Context, refreshToken string) error {
	status, _, err := c.do(ctx, http.MethodPost, "/internal/auth/session/revoke", models.RenewRequest{RefreshToken: refreshToken}, nil)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return fmt.Errorf("revoke responded %d", status)
	}
	return nil
}

// CheckSubject confirms the subject still exists and is not restricted.
// A vanished subject is reported as models.ErrSessionExpired.
func (c *Client) CheckSubject(ctx context.Context, subjectID uuid.UUID) (*models.SubjectStatus, error) {
	var subject models.SubjectStatus
	status, errResp, err := c.do(ctx, http.MethodGet, "/internal/auth/subjects/"+subjectID.String(), nil, &subject)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, rejection(status, errResp, models.ErrSessionExpired)
	}
	return &subject, nil
}

// do performs one time-bounded call. A nil error means auth-service answered
// below 500; its status and decoded error body are returned.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, *models.ErrorResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.HeaderInternalSecret, c.internalSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("auth-service unreachable", zap.String("path", path), zap.Error(err))
		return 0, nil, fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		c.logger.Warn("auth-service failed", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return resp.StatusCode, nil, fmt.Errorf("%w: auth-service responded %d", models.ErrUpstreamUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading response: %v", models.ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var errResp models.ErrorResponse
		if json.Unmarshal(raw, &errResp) != nil {
			return resp.StatusCode, nil, nil
		}
		return resp.StatusCode, &errResp, nil
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return 0, nil, fmt.Errorf("failed to decode auth-service response: %w", err)
		}
	}
	return resp.StatusCode, nil, nil
}

// rejection maps a 4xx answer onto the gateway taxonomy.
func rejection(status int, errResp *models.ErrorResponse, fallback error) error {
	if errResp != nil && errResp.Code == models.ErrCodeAccountRestricted {
		if errResp.RetryAfter != nil {
			return models.NewRestrictedError(*errResp.RetryAfter)
		}
		return models.ErrAccountRestricted
	}
	if errResp != nil && errResp.Message != "" {
		return fmt.Errorf("%w: %s", fallback, errResp.Message)
	}
	if status == http.StatusUnauthorized || status == http.StatusNotFound {
		return fallback
	}
	return errors.Join(fallback, fmt.Errorf("auth-service responded %d", status))
}
