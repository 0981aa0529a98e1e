package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Mail is the payload for the external mail relay.
type Mail struct {
	Receiver string `json:"receiver"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

// Validate checks if the mail is deliverable.
func (m *Mail) Validate() error {
	if m.Receiver == "" {
		return fmt.Errorf("mail receiver is required")
	}
	if m.Title == "" {
		return fmt.Errorf("mail title is required")
	}
	if len(m.Body) > 100_000 {
		return fmt.Errorf("mail body too long")
	}
	return nil
}

// Mailer sends mail through the external relay. Delivery is best-effort from
// the caller's perspective; lifecycle code fires it asynchronously.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// Config holds configuration for the mail relay client.
type Config struct {
	URL            string
	Timeout        time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	MaxPayloadSize int64
}

// DefaultConfig returns a default configuration for the mail relay client.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		Timeout:        10 * time.Second,
		RetryAttempts:  3,
		RetryDelay:     time.Second,
		MaxPayloadSize: 1024 * 1024, // 1MB
	}
}

type client struct {
	config Config
	client *http.Client
	logger *log.Logger
}

// NewClient creates a Mailer with custom configuration.
func NewClient(config Config, logger *log.Logger) Mailer {
	if logger == nil {
		logger = log.Default()
	}
	return &client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

// Send posts the mail to the relay, retrying transient failures with a
// linear backoff.
func (c *client) Send(ctx context.Context, mail Mail) error {
	if err := mail.Validate(); err != nil {
		return fmt.Errorf("invalid mail: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			c.logger.Printf("Retrying mail send (attempt %d/%d)", attempt+1, c.config.RetryAttempts+1)
		}

		if err := c.sendAttempt(ctx, mail); err != nil {
			lastErr = err
			c.logger.Printf("Mail send attempt %d failed: %v", attempt+1, err)

			// Client-side errors will not get better on retry.
			if strings.Contains(err.Error(), "status 4") ||
				strings.Contains(err.Error(), "payload too large") {
				return err
			}
			continue
		}

		return nil
	}

	return fmt.Errorf("failed to send mail after %d attempts: %w", c.config.RetryAttempts+1, lastErr)
}

func (c *client) sendAttempt(ctx context.Context, mail Mail) error {
	payload, err := json.Marshal(mail)
	if err != nil {
		return fmt.Errorf("failed to marshal mail: %w", err)
	}

	if int64(len(payload)) > c.config.MaxPayloadSize {
		return fmt.Errorf("mail payload too large: %d bytes (max %d)", len(payload), c.config.MaxPayloadSize)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.URL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "remote-lab-api/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("mail relay returned error status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
