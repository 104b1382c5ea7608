package twilio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	twilio "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// ErrNotConfigured is returned when sending without credentials or a sender number.
var ErrNotConfigured = errors.New("twilio client not initialised")

type messageAPI interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Client sends WhatsApp messages through Twilio's REST API.
type Client struct {
	api          messageAPI
	fromWhatsApp string
	logger       *zap.Logger
}

// New creates a Twilio client bound to the configured WhatsApp sender number.
// Without an account SID the client is returned unconfigured and every Send
// fails with ErrNotConfigured.
func New(accountSID, authToken, fromWhatsApp string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		fromWhatsApp: fromWhatsApp,
		logger:       logger.With(zap.String("component", "twilio")),
	}
	if accountSID != "" {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken})
		c.api = rest.Api
	}
	return c
}

// Send delivers body to the WhatsApp address to. The REST call itself takes
// no context, so Send returns as soon as ctx is done and abandons the call.
func (c *Client) Send(ctx context.Context, to, body string) error {
	if c.api == nil {
		return ErrNotConfigured
	}

	sender := normalizeWhatsAppAddress(c.fromWhatsApp)
	if sender == "" {
		return fmt.Errorf("twilio sender WhatsApp number is not configured")
	}

	recipient := normalizeWhatsAppAddress(to)
	if recipient == "" {
		return fmt.Errorf("recipient number missing or invalid")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(sender)
	params.SetBody(body)

	type result struct {
		sid string
		err error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.api.CreateMessage(params)
		var sid string
		if err == nil && resp != nil && resp.Sid != nil {
			sid = *resp.Sid
		}
		done <- result{sid: sid, err: err}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("twilio send message: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("twilio send message error: %w", res.err)
		}
		c.logger.Debug("message sent", zap.String("to", recipient), zap.String("sid", res.sid))
		return nil
	}
}

// ValidateRequest checks the X-Twilio-Signature of a webhook call made to
// url with the given form params.
func ValidateRequest(authToken, url string, params map[string]string, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	validator := twclient.NewRequestValidator(authToken)
	return validator.Validate(url, params, signature)
}

func normalizeWhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "whatsapp:") {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "+") {
		return "whatsapp:" + trimmed
	}
	return "whatsapp:+" + trimmed
}
