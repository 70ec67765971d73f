// Package email sends notification mail through the Postmark API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

var ErrNotConfigured = errors.New("email client not configured")

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL points the client at another Postmark-compatible endpoint.
func WithAPIURL(u string) Option {
	return func(cl *Client) {
		cl.apiURL = u
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiURL:      defaultAPIURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token and sender are set.
func (c *Client) Configured() bool {
	return c != nil && c.serverToken != "" && c.fromEmail != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

// Reminder describes an upcoming worship event.
type Reminder struct {
	Title         string
	HouseholdName string
	MemberName    string
	SolarDate     string
	LunarDate     string
	DaysUntil     int
	WorshipID     int64
}

// When phrases the time left before the event.
func (r Reminder) When() string {
	switch r.DaysUntil {
	case 0:
		return "hôm nay"
	case 1:
		return "ngày mai"
	default:
		return fmt.Sprintf("còn %d ngày", r.DaysUntil)
	}
}

// SendReminder mails one upcoming worship event to toEmail.
func (c *Client) SendReminder(ctx context.Context, toEmail string, r Reminder) error {
	subject := fmt.Sprintf("Nhắc lịch: %s (%s)", r.Title, r.When())

	var text strings.Builder
	fmt.Fprintf(&text, "%s\n\n", r.Title)
	fmt.Fprintf(&text, "Gia đình: %s\n", r.HouseholdName)
	if r.MemberName != "" {
		fmt.Fprintf(&text, "Người: %s\n", r.MemberName)
	}
	fmt.Fprintf(&text, "Ngày dương lịch: %s\n", r.SolarDate)
	fmt.Fprintf(&text, "Ngày âm lịch: %s\n", r.LunarDate)
	if c.baseURL != "" {
		fmt.Fprintf(&text, "\nXem chi tiết: %s/api/worship/%d\n", c.baseURL, r.WorshipID)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "<h2>%s</h2><ul>", html.EscapeString(r.Title))
	fmt.Fprintf(&body, "<li>Gia đình: %s</li>", html.EscapeString(r.HouseholdName))
	if r.MemberName != "" {
		fmt.Fprintf(&body, "<li>Người: %s</li>", html.EscapeString(r.MemberName))
	}
	fmt.Fprintf(&body, "<li>Ngày dương lịch: %s</li>", html.EscapeString(r.SolarDate))
	fmt.Fprintf(&body, "<li>Ngày âm lịch: %s</li></ul>", html.EscapeString(r.LunarDate))

	return c.send(ctx, postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: body.String(),
		TextBody: text.String(),
		Tag:      "worship-reminder",
	})
}

// SendBackupFailed reports a failed scheduled backup.
func (c *Client) SendBackupFailed(ctx context.Context, toEmail, reason string) error {
	return c.send(ctx, postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  "Sao lưu dữ liệu thất bại",
		TextBody: "Bản sao lưu tự động không thành công:\n\n" + reason,
		HtmlBody: "<p>Bản sao lưu tự động không thành công:</p><pre>" + html.EscapeString(reason) + "</pre>",
		Tag:      "backup-failed",
	})
}

func (c *Client) send(ctx context.Context, payload postmarkEmail) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
