package profiles

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

	"go.uber.org/zap"
)

// Client создает профили в user-service по внутреннему каналу (X-Internal-Secret).
type Client struct {
	baseURL        string
	internalSecret string
	httpClient     *http.Client
	logger         *zap.Logger
}

// ClientConfig содержит настройки клиента user-service.
type ClientConfig struct {
	BaseURL        string
	InternalSecret string
	Timeout        time.Duration
}

type createProfileRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// NewClient создает клиент. Каждый вызов ограничен Timeout.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		internalSecret: cfg.InternalSecret,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		logger:         logger.Named("ProfileClient"),
	}
}

// CreateProfile creates the profile of a new subject. An existing profile
// (409) counts as success so registration retries stay safe.
func (c *Client) CreateProfile(ctx context.Context, subject *models.Subject) error {
	body, err := json.Marshal(createProfileRequest{
		UserID:   subject.ID.String(),
		Username: subject.Username,
		Email:    subject.Email,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal profile request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/profile", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build profile request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderInternalSecret, c.internalSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("user-service unreachable", zap.String("userID", subject.ID.String()), zap.Error(err))
		return fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusConflict:
		c.logger.Info("Profile already exists", zap.String("userID", subject.ID.String()))
		return nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: user-service responded %d", models.ErrUpstreamUnavailable, resp.StatusCode)
	default:
		var errResp models.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &errResp) == nil && errResp.Message != "" {
			return errors.New("profile creation rejected: " + errResp.Message)
		}
		return fmt.Errorf("profile creation rejected with status %d", resp.StatusCode)
	}
}
