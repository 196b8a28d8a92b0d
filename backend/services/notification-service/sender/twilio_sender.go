package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com"

type TwilioSettings struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	// BaseURL overrides the Twilio API host. Empty means production.
	BaseURL string
}

type TwilioSender struct {
	settings   TwilioSettings
	httpClient *http.Client
}

func NewTwilioSender(s TwilioSettings) (*TwilioSender, error) {
	if s.AccountSID == "" || s.AuthToken == "" || s.FromNumber == "" {
		return nil, fmt.Errorf("twilio account sid, auth token and from number are required")
	}
	if s.BaseURL == "" {
		s.BaseURL = twilioAPIBase
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	return &TwilioSender{
		settings:   s,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type twilioMessage struct {
	SID string `json:"sid"`
}

func (t *TwilioSender) SendSMS(ctx context.Context, to, msg string) (SendResult, error) {
	apiURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.settings.BaseURL, url.PathEscape(t.settings.AccountSID))

	formData := url.Values{}
	formData.Set("To", to)
	formData.Set("From", t.settings.FromNumber)
	formData.Set("Body", msg)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(t.settings.AccountSID, t.settings.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return SendResult{}, fmt.Errorf("twilio error %s: %s", resp.Status, string(body))
	}

	var m twilioMessage
	_ = json.Unmarshal(body, &m)
	return SendResult{MessageID: m.SID, SentAt: time.Now()}, nil
}
