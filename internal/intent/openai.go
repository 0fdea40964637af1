package intent

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// Turn is one prior exchange supplied to the classifier as context.
type Turn struct {
	Role    string
	Content string
}

// Classifier maps a message (plus minimal history) to an Intent.
type Classifier interface {
	Classify(ctx context.Context, message string, history []Turn) (Intent, error)
}

const classifierSystem = `You analyze the user message and determine their intent. Reply ONLY with a single JSON object, no other text.

Intents: bash (params.command), websearch (params.query), draft (params.prompt), generate_image (params.prompt, optional params.size), instagram_post (params.caption, params.imagePathOrUrl), metricool_schedule (params.content, params.scheduledDate), create_skill (params.name, params.description, params.instructions), browser_visit (params.url), store_credential (params.key, params.value), write_file (params.filePath, params.content), response (params.text for a direct answer, or empty).

Output format, only this JSON and no markdown:
{"intent":"...","params":{...}}

When no other intent fits, use response.`

// Options configure the OpenAI classifier.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int64
}

// OpenAIClassifier runs intent detection through an OpenAI-compatible chat
// completions endpoint (OpenRouter in the default deployment).
type OpenAIClassifier struct {
	client *openai.Client
	opts   Options
}

// NewOpenAIClassifier creates a classifier from an existing client.
func NewOpenAIClassifier(client *openai.Client, optFns ...func(o *Options)) *OpenAIClassifier {
	opts := Options{
		Model:       "anthropic/claude-3.5-sonnet",
		Temperature: 0.2,
		MaxTokens:   200,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &OpenAIClassifier{client: client, opts: opts}
}

// Classify sends the message to the model and parses the JSON verdict.
// Malformed model output falls back to a plain response; transport or auth
// failures are returned to the caller.
func (c *OpenAIClassifier) Classify(ctx context.Context, message string, history []Turn) (Intent, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(classifierSystem),
	}
	for _, h := range history {
		if h.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(h.Content))
		} else {
			messages = append(messages, openai.UserMessage(h.Content))
		}
	}
	messages = append(messages, openai.UserMessage(
		fmt.Sprintf("Message to analyze: %s\n\nReply with only the JSON object.", message),
	))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               c.opts.Model,
		Temperature:         openai.Float(c.opts.Temperature),
		MaxCompletionTokens: openai.Int(c.opts.MaxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, nil
	}
	return Parse(resp.Choices[0].Message.Content), nil
}

var _ Classifier = (*OpenAIClassifier)(nil)
