package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Client wraps the OpenAI SDK as a last-resort date/time resolver.
type Client struct {
	client *openai.Client
	model  openai.ChatModel
	loc    *time.Location
}

// ErrClientNotInitialised is returned when attempting to call the API without a configured client.
var ErrClientNotInitialised = errors.New("openai client not initialised")

const noneAnswer = "NONE"

// New returns a client bound to apiKey. Without a key every call reports
// ErrClientNotInitialised. loc is the zone relative phrases are read in.
func New(apiKey, model string, loc *time.Location) *Client {
	if loc == nil {
		loc = time.UTC
	}
	if apiKey == "" {
		return &Client{loc: loc}
	}
	chatModel := openai.ChatModel(model)
	if model == "" {
		chatModel = openai.ChatModelGPT4oMini
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client: &client,
		model:  chatModel,
		loc:    loc,
	}
}

// Enabled reports whether an API key was configured.
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// ResolveInstant asks the model for the moment text refers to, relative to ref.
func (c *Client) ResolveInstant(ctx context.Context, text string, ref time.Time) (time.Time, bool, error) {
	if strings.TrimSpace(text) == "" {
		return time.Time{}, false, nil
	}
	if !c.Enabled() {
		return time.Time{}, false, ErrClientNotInitialised
	}

	req := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(systemPrompt(ref.In(c.loc))),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(text),
					},
				},
			},
		},
		Temperature:         openai.Float(0.0),
		MaxCompletionTokens: openai.Int(40),
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("openai resolve instant: %w", err)
	}
	if len(resp.Choices) == 0 {
		return time.Time{}, false, fmt.Errorf("no completion received")
	}
	return parseAnswer(resp.Choices[0].Message.Content)
}

func systemPrompt(now time.Time) string {
	return fmt.Sprintf(
		"You read reminder requests written in Vietnamese and find the moment the reminder should fire. "+
			"The current local time is %s. Reply with exactly one RFC 3339 timestamp including its UTC offset, "+
			"or %s if the message names no time.",
		now.Format(time.RFC3339), noneAnswer)
}

// parseAnswer turns the model reply into an instant.
func parseAnswer(answer string) (time.Time, bool, error) {
	answer = strings.Trim(strings.TrimSpace(answer), "`\"'")
	if answer == "" || strings.EqualFold(answer, noneAnswer) {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, answer)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("openai: unexpected answer %q: %w", answer, err)
	}
	return t.UTC(), true, nil
}
