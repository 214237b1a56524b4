package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/smukkama/gr20-alert/internal/external"
	"github.com/smukkama/gr20-alert/internal/protocol"
	"github.com/smukkama/gr20-alert/internal/report"
)

// SMSLimit is the length of one SMS in characters.
const SMSLimit = 160

// SMSSender talks to one SMS gateway.
type SMSSender interface {
	Send(ctx context.Context, to []string, text string) error
}

// SevenSender sends through the seven.io HTTP API.
type SevenSender struct {
	client  *external.Client
	baseURL string
	apiKey  string
	from    string
}

func NewSevenSender(baseURL, apiKey, from string) *SevenSender {
	if baseURL == "" {
		baseURL = "https://gateway.seven.io"
	}
	return &SevenSender{
		client:  external.NewClient(&http.Client{Timeout: 30 * time.Second}, "seven", ""),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		from:    from,
	}
}

type sevenResponse struct {
	Success string `json:"success"`
}

// Send posts one message to all recipients.
func (s *SevenSender) Send(ctx context.Context, to []string, text string) error {
	form := url.Values{}
	form.Set("to", strings.Join(to, ","))
	form.Set("text", text)
	if s.from != "" {
		form.Set("from", s.from)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/sms", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out sevenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode seven response: %w", err)
	}
	if out.Success != "100" {
		return &external.APIError{Provider: "seven", StatusCode: resp.StatusCode, Message: "return code " + out.Success}
	}
	return nil
}

// TwilioSender sends through the Twilio Messages API, one request per
// recipient.
type TwilioSender struct {
	client     *external.Client
	baseURL    string
	accountSID string
	authToken  string
	from       string
}

func NewTwilioSender(baseURL, accountSID, authToken, from string) *TwilioSender {
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	return &TwilioSender{
		client:     external.NewClient(&http.Client{Timeout: 30 * time.Second}, "twilio", ""),
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
	}
}

func (s *TwilioSender) Send(ctx context.Context, to []string, text string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, url.PathEscape(s.accountSID))

	for _, number := range to {
		form := url.Values{}
		form.Set("To", number)
		form.Set("From", s.from)
		form.Set("Body", text)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(s.accountSID, s.authToken)

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send SMS to %s: %w", number, err)
		}
		resp.Body.Close()
	}
	return nil
}

// SMSNotifier sends the report text as a single SMS.
type SMSNotifier struct {
	sender     SMSSender
	recipients []string
	log        zerolog.Logger
}

func NewSMSNotifier(sender SMSSender, recipients []string, log zerolog.Logger) *SMSNotifier {
	return &SMSNotifier{sender: sender, recipients: recipients, log: log}
}

// Notify sends msg.Text, cut to SMSLimit characters, to msg.Recipients or,
// when empty, to the configured numbers.
func (n *SMSNotifier) Notify(ctx context.Context, msg *protocol.ReportMessage) error {
	to := msg.Recipients
	if len(to) == 0 {
		to = n.recipients
	}
	if len(to) == 0 {
		n.log.Warn().Str("id", msg.ID).Msg("no SMS recipients configured, skipping SMS")
		return nil
	}

	if err := n.sender.Send(ctx, to, report.Truncate(msg.Text, SMSLimit)); err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	n.log.Info().Str("id", msg.ID).Int("recipients", len(to)).Msg("SMS sent")
	return nil
}
