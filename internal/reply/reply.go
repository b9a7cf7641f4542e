// Package reply sends a transcript to a chat model and returns its answer.
package reply

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// ErrEmptyReply is returned when the model answers with no text.
var ErrEmptyReply = errors.New("reply: empty response")

// Replier answers one user utterance.
type Replier interface {
	Reply(ctx context.Context, text string) (string, error)
}

// Options configures an OpenAI replier. An empty APIKey falls back to
// OPENAI_API_KEY.
type Options struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	// History is the number of previous exchanges sent with each request.
	History     int
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
}

// OpenAI keeps a short rolling conversation with a chat completion model.
type OpenAI struct {
	client oai.Client
	opts   Options

	mu      sync.Mutex
	history []exchange
}

type exchange struct {
	user, assistant string
}

// NewOpenAI constructs a replier.
func NewOpenAI(opts Options) (*OpenAI, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	var reqOpts []option.RequestOption
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: opts.Timeout}))
	}

	return &OpenAI{client: oai.NewClient(reqOpts...), opts: opts}, nil
}

// Reply implements Replier.
func (o *OpenAI) Reply(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("reply: empty prompt")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	resp, err := o.client.Chat.Completions.New(ctx, o.params(text))
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrEmptyReply
	}

	if o.opts.History > 0 {
		o.history = append(o.history, exchange{user: text, assistant: answer})
		if len(o.history) > o.opts.History {
			o.history = o.history[len(o.history)-o.opts.History:]
		}
	}
	return answer, nil
}

// Reset forgets the conversation.
func (o *OpenAI) Reset() {
	o.mu.Lock()
	o.history = nil
	o.mu.Unlock()
}

func (o *OpenAI) params(text string) oai.ChatCompletionNewParams {
	var msgs []oai.ChatCompletionMessageParamUnion
	if o.opts.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(o.opts.SystemPrompt))
	}
	for _, ex := range o.history {
		msgs = append(msgs, oai.UserMessage(ex.user), oai.AssistantMessage(ex.assistant))
	}
	msgs = append(msgs, oai.UserMessage(text))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(o.opts.Model),
		Messages: msgs,
	}
	if o.opts.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(o.opts.MaxTokens)
	}
	if o.opts.Temperature > 0 {
		params.Temperature = param.NewOpt(o.opts.Temperature)
	}
	return params
}
