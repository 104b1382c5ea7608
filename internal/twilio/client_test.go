package twilio

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"sort"
	"testing"
	"time"

	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

type fakeAPI struct {
	params *openapi.CreateMessageParams
	err    error
	block  chan struct{}
}

func (f *fakeAPI) CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	if f.block != nil {
		<-f.block
	}
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &openapi.ApiV2010Message{Sid: &sid}, nil
}

func TestNormalizeWhatsAppAddress(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                  "",
		"  ":                "",
		"+84901234567":      "whatsapp:+84901234567",
		"84901234567":       "whatsapp:+84901234567",
		"whatsapp:+8490123": "whatsapp:+8490123",
	}
	for input, want := range cases {
		if got := normalizeWhatsAppAddress(input); got != want {
			t.Errorf("normalizeWhatsAppAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSendUnconfigured(t *testing.T) {
	t.Parallel()

	c := New("", "", "+1415", nil)
	if err := c.Send(context.Background(), "+84901", "hi"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Send() error = %v, want ErrNotConfigured", err)
	}
}

func TestSendBuildsMessage(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	c := &Client{api: api, fromWhatsApp: "+14155238886", logger: zap.NewNop()}

	if err := c.Send(context.Background(), "84901234567", "🔔 Đã đến giờ"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := *api.params.To; got != "whatsapp:+84901234567" {
		t.Errorf("To = %q", got)
	}
	if got := *api.params.From; got != "whatsapp:+14155238886" {
		t.Errorf("From = %q", got)
	}
	if got := *api.params.Body; got != "🔔 Đã đến giờ" {
		t.Errorf("Body = %q", got)
	}
}

func TestSendWrapsAPIError(t *testing.T) {
	t.Parallel()

	boom := errors.New("rate limited")
	c := &Client{api: &fakeAPI{err: boom}, fromWhatsApp: "+1415", logger: zap.NewNop()}
	if err := c.Send(context.Background(), "+84901", "hi"); !errors.Is(err, boom) {
		t.Fatalf("Send() error = %v, want wrapped %v", err, boom)
	}
}

func TestSendRespectsContext(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{block: make(chan struct{})}
	defer close(api.block)
	c := &Client{api: api, fromWhatsApp: "+1415", logger: zap.NewNop()}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := c.Send(ctx, "+84901", "hi"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send() error = %v, want deadline exceeded", err)
	}
}

func sign(token, url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := url
	for _, k := range keys {
		data += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	url := "https://example.com/twilio/webhook"
	params := map[string]string{"From": "whatsapp:+84901", "Body": "Họp lúc 9h sáng"}
	sig := sign("secret", url, params)

	if !ValidateRequest("secret", url, params, sig) {
		t.Error("valid signature rejected")
	}
	if ValidateRequest("other", url, params, sig) {
		t.Error("signature with wrong token accepted")
	}
	if ValidateRequest("secret", url, params, "") {
		t.Error("missing signature accepted")
	}
}
