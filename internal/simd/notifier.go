package simd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/config"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/utils"
)

var (
	ErrInvalidURL       = errors.New("invalid callback url")
	ErrMetadataEndpoint = errors.New("callback url targets a cloud metadata endpoint")
	ErrInternalHost     = errors.New("callback url targets an internal address")
)

// NotificationPayload represents the JSON payload sent to the callback URL
type NotificationPayload struct {
	RunID           string                 `json:"run_id"`
	Status          models.RunStatus       `json:"status"`
	CreatedAtUnixMs int64                  `json:"created_at_unix_ms"`
	StartedAtUnixMs int64                  `json:"started_at_unix_ms,omitempty"`
	EndedAtUnixMs   int64                  `json:"ended_at_unix_ms,omitempty"`
	Error           string                 `json:"error,omitempty"`
	CFR             []models.ResponseScore `json:"cfr,omitempty"`
	Stats           *models.RunStats       `json:"stats,omitempty"`
	Timestamp       int64                  `json:"timestamp"` // When notification was sent
}

// Notifier posts run completion notifications to caller-supplied URLs
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	backoff    utils.BackoffStrategy

	wg sync.WaitGroup
}

// NewNotifier creates a notifier with a 10s timeout and 3 retries starting at 1s
func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		backoff:    utils.NewExponentialBackoff(time.Second, 30*time.Second, 2, false),
	}
}

// NewNotifierFromConfig creates a notifier from the daemon's callback settings
func NewNotifierFromConfig(cfg config.CallbackConfig) (*Notifier, error) {
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, err
	}
	base, err := cfg.GetBaseDelay()
	if err != nil {
		return nil, err
	}
	n := NewNotifier()
	n.httpClient.Timeout = timeout
	n.maxRetries = cfg.MaxRetries
	if cfg.Backoff == "constant" {
		n.backoff = utils.NewConstantBackoff(base)
	} else {
		n.backoff = utils.NewExponentialBackoff(base, 30*base, 2, true)
	}
	return n, nil
}

// SetBackoff replaces the retry delay strategy
func (n *Notifier) SetBackoff(b utils.BackoffStrategy, maxRetries int) {
	n.backoff = b
	n.maxRetries = maxRetries
}

// Notify sends a notification for rec asynchronously. "{run_id}" in the URL is
// replaced with the run's ID.
func (n *Notifier) Notify(callbackURL string, callbackSecret string, rec *RunRecord) {
	if callbackURL == "" {
		return
	}
	if rec == nil || rec.Run == nil {
		logger.Warn("cannot notify: invalid run record", "callback_url", callbackURL)
		return
	}

	finalURL := strings.ReplaceAll(callbackURL, "{run_id}", rec.Run.ID)
	if err := validateCallbackURL(finalURL); err != nil {
		logger.Warn("callback url rejected", "run_id", rec.Run.ID, "error", err)
		return
	}

	payload := NotificationPayload{
		RunID:           rec.Run.ID,
		Status:          rec.Run.Status,
		CreatedAtUnixMs: rec.Run.CreatedAtUnixMs,
		StartedAtUnixMs: rec.Run.StartedAtUnixMs,
		EndedAtUnixMs:   rec.Run.EndedAtUnixMs,
		Error:           rec.Run.Error,
		Timestamp:       time.Now().UTC().UnixMilli(),
	}
	if rec.Result != nil {
		payload.CFR = rec.Result.Scores
		payload.Stats = &rec.Result.Stats
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.Deliver(context.Background(), finalURL, callbackSecret, payload); err != nil {
			logger.Error("failed to send notification after retries",
				"callback_url", finalURL,
				"run_id", payload.RunID,
				"status", payload.Status,
				"max_retries", n.maxRetries,
				"last_error", err)
		}
	}()
}

// Wait blocks until every pending notification has been delivered or given up
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Deliver POSTs payload to callbackURL, retrying non-2xx responses and
// transport errors.
func (n *Notifier) Deliver(ctx context.Context, callbackURL, callbackSecret string, payload NotificationPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.backoff.NextDelay(attempt - 1)
			logger.Debug("retrying notification",
				"callback_url", callbackURL,
				"run_id", payload.RunID,
				"attempt", attempt,
				"delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(payloadJSON))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "ptasim-core/1.0")
		if callbackSecret != "" {
			req.Header.Set("X-Simulation-Callback-Secret", callbackSecret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn("notification attempt failed",
				"callback_url", callbackURL,
				"run_id", payload.RunID,
				"attempt", attempt+1,
				"error", err)
			continue
		}

		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		responseBody := string(bodyBytes)
		if len(responseBody) > 200 {
			responseBody = responseBody[:200] + "..."
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notification sent successfully",
				"run_id", payload.RunID,
				"status", payload.Status,
				"status_code", resp.StatusCode)
			return nil
		}

		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		logger.Warn("notification returned non-2xx status",
			"callback_url", callbackURL,
			"run_id", payload.RunID,
			"status_code", resp.StatusCode,
			"response_body", responseBody,
			"attempt", attempt+1)
	}

	return lastErr
}

// validateCallbackURL rejects URLs that are malformed or point at metadata
// services or literal internal IPs. Hostnames are not resolved, so localhost
// stays usable in development.
func validateCallbackURL(raw string) error {
	u, err := url.Parse(strings.ReplaceAll(raw, "{run_id}", "run"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if strings.EqualFold(host, "metadata.google.internal") || host == "169.254.169.254" {
		return fmt.Errorf("%w: %s", ErrMetadataEndpoint, host)
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("%w: %s", ErrInternalHost, host)
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

func getCallbackSecret(rec *RunRecord) string {
	if rec == nil || rec.Input == nil {
		return ""
	}
	return rec.Input.CallbackSecret
}
