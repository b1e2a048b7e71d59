package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/davekm/briefline/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrUnauthorized means the credential did not resolve to an identity
var ErrUnauthorized = errors.New("credential rejected by identity service")

// Client resolves bearer credentials against the external identity service
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Resolve exchanges a bearer token for the caller's tenant identity
func (c *Client) Resolve(ctx context.Context, token string) (*models.Identity, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/identity", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthorized
	}

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}

	var identity models.Identity
	if err := json.Unmarshal(responseBody, &identity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity response: %w", err)
	}

	if identity.UserID == "" {
		c.logger.Warn("Identity service returned empty user id")
		return nil, ErrUnauthorized
	}

	return &identity, nil
}
