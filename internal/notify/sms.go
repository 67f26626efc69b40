package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const defaultSMSEndpoint = "https://www.intouchsms.co.rw/api/sendsms/.json"

var rwandaPhonePattern = regexp.MustCompile(`^250\d{9}$`)

// ErrInvalidPhone means the number could not be normalized to the
// Rwandan 250######### format.
var ErrInvalidPhone = errors.New("notify: invalid phone number")

// NormalizePhone strips separators and country-code variants and
// returns the canonical 12-digit Rwandan MSISDN.
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	switch {
	case strings.HasPrefix(cleaned, "+250"):
		cleaned = cleaned[4:]
	case strings.HasPrefix(cleaned, "250"):
		cleaned = cleaned[3:]
	case strings.HasPrefix(cleaned, "0"):
		cleaned = cleaned[1:]
	}
	cleaned = "250" + cleaned

	if !rwandaPhonePattern.MatchString(cleaned) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPhone, raw)
	}
	return cleaned, nil
}

// SMSSender delivers messages through the Intouch gateway.
type SMSSender struct {
	client   *http.Client
	endpoint string
	username string
	password string
	senderID string
}

// NewSMSSender builds a sender for the given gateway credentials. An
// empty endpoint selects the Intouch production URL.
func NewSMSSender(username, password, senderID, endpoint string) *SMSSender {
	if endpoint == "" {
		endpoint = defaultSMSEndpoint
	}
	return &SMSSender{
		client:   &http.Client{Timeout: 15 * time.Second},
		endpoint: endpoint,
		username: username,
		password: password,
		senderID: strings.TrimPrefix(senderID, "+"),
	}
}

// Configured reports whether gateway credentials are present.
func (s *SMSSender) Configured() bool {
	return s.username != "" && s.password != "" && s.senderID != ""
}

func (s *SMSSender) Send(ctx context.Context, phone, message string) error {
	recipient, err := NormalizePhone(phone)
	if err != nil {
		return err
	}

	params := url.Values{
		"username":  {s.username},
		"password":  {s.password},
		"sender":    {s.senderID},
		"recipient": {recipient},
		"message":   {message},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: sms gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify: sms gateway returned %d", resp.StatusCode)
	}
	var body struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("notify: decode sms response: %w", err)
	}
	if !body.Success {
		return errors.New("notify: sms gateway reported failure")
	}
	return nil
}
