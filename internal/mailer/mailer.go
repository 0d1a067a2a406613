// Package mailer sends transactional email through a Resend-compatible API.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("email API key not configured")

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Client posts messages to {baseURL}/emails.
type Client struct {
	http   *resty.Client
	apiKey string
	from   string
}

func New(baseURL, apiKey, from string) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)
	return &Client{http: c, apiKey: apiKey, from: from}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Send delivers msg once. Failures are not retried.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}
	if msg.To == "" {
		return errors.New("email recipient is empty")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(sendRequest{From: c.from, To: []string{msg.To}, Subject: msg.Subject, HTML: msg.HTML}).
		SetError(&apiError{}).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*apiError); ok && e.Message != "" {
			return fmt.Errorf("email API %d: %s", resp.StatusCode(), e.Message)
		}
		return fmt.Errorf("email API %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
