package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mukund1606/taxmann-project/internal/config"
)

const predictPath = "/py-api/predict"

// ErrNoPrediction is returned when the model answered with an empty list.
var ErrNoPrediction = errors.New("classifier returned no prediction")

// Client calls the category prediction service.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

// New builds a client, or returns nil when no endpoint is configured.
func New(cfg config.ClassifierConfig, logger *zap.Logger) *Client {
	if !cfg.Enabled() {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL: cfg.URL,
		http:    &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		timeout: cfg.Timeout(),
		logger:  logger,
	}
}

type predictRequest struct {
	Text string `json:"text"`
}

type predictResponse struct {
	Prediction string `json:"prediction"`
}

// Predict returns the most likely category for text. Calls are throttled and
// bounded by the configured timeout.
func (c *Client) Predict(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("classifier throttled: %w", err)
	}

	body, err := json.Marshal(predictRequest{Text: text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("classifier call",
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("classifier responded %d", resp.StatusCode)
	}

	var decoded predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode classifier response: %w", err)
	}
	// The model serializes its prediction list as a JSON string.
	var labels []string
	if err := json.Unmarshal([]byte(decoded.Prediction), &labels); err != nil {
		return "", fmt.Errorf("decode prediction list: %w", err)
	}
	if len(labels) == 0 || labels[0] == "" {
		return "", ErrNoPrediction
	}
	return labels[0], nil
}
