// Package pipeline drives the two-stage classification run against an
// OpenAI-compatible chat completions API
//
// Raw HTTP streaming is used instead of the SDK stream helper for better
// compatibility with OpenAI-compatible backends that vary slightly in their
// SSE framing
package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/openai/openai-go"

	perr "secondbrain/internal/platform/errors"
	"secondbrain/internal/platform/logger"
	"secondbrain/internal/platform/store"
	"secondbrain/internal/services/capture/domain"
)

// DefaultBaseURL is the stock OpenAI endpoint
const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultModel is used when no model is configured
const DefaultModel = "gpt-4o"

// Config is the pipeline connection settings
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Runner implements domain.Runner over the chat completions streaming API
// Conversation transcripts are persisted per handle so follow-up rounds keep
// the classifier's prior context
type Runner struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	docs       store.Docs
	log        *logger.Logger
}

// New builds a runner
func New(cfg Config, docs store.Docs, log *logger.Logger) *Runner {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if log == nil {
		log = logger.Named("pipeline")
	}
	return &Runner{
		httpClient: &http.Client{},
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		docs:       docs,
		log:        log,
	}
}

const systemPrompt = `You are the classification engine of a personal note capture system.
Every note the user submits belongs in exactly one of four buckets:

- People: notes about a specific person (facts, follow-ups, things they said)
- Projects: notes about an ongoing project or piece of work
- Ideas: free-floating ideas, thoughts, and possibilities
- Admin: chores, errands, appointments, and life admin

You must respond by calling exactly one tool:
- classify_and_file when you can place the note in a bucket
- request_clarification when the note is too ambiguous to place
- mark_as_junk when the note is noise with no value worth keeping

Never answer in plain text. Always call a tool.`

// conversation is the persisted transcript for one handle
type conversation struct {
	ID        string    `json:"id"`
	Turns     []turn    `json:"turns"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Run executes routing then classification, pushing events to emit in order
func (r *Runner) Run(ctx context.Context, req domain.RunRequest, emit func(domain.PipelineEvent)) error {
	conv, err := r.loadConversation(ctx, req.UserID, req.ConversationHandle)
	if err != nil {
		return err
	}
	handle := conv.ID

	// routing is deterministic with a single classifier downstream; its
	// stage still surfaces so clients can render progress
	emit(domain.PipelineEvent{Kind: domain.EventStepStarted, Stage: domain.StageRouting, Handle: handle})
	emit(domain.PipelineEvent{Kind: domain.EventText, Stage: domain.StageRouting, Text: req.Text, Handle: handle})
	emit(domain.PipelineEvent{Kind: domain.EventStepFinished, Stage: domain.StageRouting, Handle: handle})

	emit(domain.PipelineEvent{Kind: domain.EventStepStarted, Stage: domain.StageClassification, Handle: handle})
	text, calls, err := r.streamClassification(ctx, conv, req.Text, handle, emit)
	if err != nil {
		return err
	}
	emit(domain.PipelineEvent{Kind: domain.EventStepFinished, Stage: domain.StageClassification, Handle: handle})

	r.saveConversation(ctx, req.UserID, conv, req.Text, text, calls)
	return nil
}

// toolCall is one fully accumulated tool invocation
type toolCall struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

// streamClassification runs one streaming completion and returns the
// assistant's free text plus its accumulated tool calls
func (r *Runner) streamClassification(
	ctx context.Context,
	conv *conversation,
	text, handle string,
	emit func(domain.PipelineEvent),
) (string, []*toolCall, error) {
	resp, err := r.sendStreamRequest(ctx, conv, text)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	var assistant strings.Builder
	calls := map[int]*toolCall{}

	emitCalls := func() {
		ordered := make([]*toolCall, 0, len(calls))
		for _, c := range calls {
			ordered = append(ordered, c)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })
		for _, c := range ordered {
			emit(domain.PipelineEvent{
				Kind:   domain.EventToolCall,
				Stage:  domain.StageClassification,
				Tool:   c.name,
				Args:   json.RawMessage(c.args.String()),
				Handle: handle,
			})
		}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			emitCalls()
			return assistant.String(), mapValues(calls), nil
		}
		r.processChunk(data, handle, &assistant, calls, emit)
	}
	if err := scanner.Err(); err != nil {
		return "", nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "classification stream read")
	}

	// stream ended without the terminator; treat what arrived as complete
	emitCalls()
	return assistant.String(), mapValues(calls), nil
}

func mapValues(calls map[int]*toolCall) []*toolCall {
	out := make([]*toolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// processChunk folds one SSE data payload into the accumulators
func (r *Runner) processChunk(
	data, handle string,
	assistant *strings.Builder,
	calls map[int]*toolCall,
	emit func(domain.PipelineEvent),
) {
	var chunk struct {
		Choices []struct {
			Delta struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					Index    int    `json:"index"`
					ID       string `json:"id"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}
	// malformed chunks are skipped, same as any other SSE noise
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return
	}
	if len(chunk.Choices) == 0 {
		return
	}

	delta := chunk.Choices[0].Delta
	if delta.Content != "" {
		assistant.WriteString(delta.Content)
		emit(domain.PipelineEvent{
			Kind:   domain.EventText,
			Stage:  domain.StageClassification,
			Text:   delta.Content,
			Handle: handle,
		})
	}
	for _, tc := range delta.ToolCalls {
		acc, ok := calls[tc.Index]
		if !ok {
			acc = &toolCall{index: tc.Index}
			calls[tc.Index] = acc
		}
		if tc.ID != "" {
			acc.id = tc.ID
		}
		if tc.Function.Name != "" {
			acc.name = tc.Function.Name
		}
		acc.args.WriteString(tc.Function.Arguments)
	}
}

// sendStreamRequest posts the completion request and validates the response
func (r *Runner) sendStreamRequest(ctx context.Context, conv *conversation, text string) (*http.Response, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(conv.Turns)+2)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, t := range conv.Turns {
		switch t.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(t.Content))
		default:
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}
	messages = append(messages, openai.UserMessage(text))

	reqBody := map[string]interface{}{
		"model":       r.model,
		"messages":    messages,
		"stream":      true,
		"tools":       toolDefinitions(),
		"tool_choice": "auto",
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "marshal completion request")
	}

	url := r.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "build completion request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "completion request")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, perr.Newf(perr.ErrorCodeUnknown,
			"completion request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

// toolDefinitions is the closed tool set offered on every classification call
func toolDefinitions() []map[string]interface{} {
	scoreProp := map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1}
	return []map[string]interface{}{
		{
			"type": "function",
			"function": map[string]interface{}{
				"name":        "classify_and_file",
				"description": "File the note into exactly one bucket with a confidence score",
				"parameters": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"bucket": map[string]interface{}{
							"type": "string",
							"enum": []string{"People", "Projects", "Ideas", "Admin"},
						},
						"confidence":     scoreProp,
						"people_score":   scoreProp,
						"projects_score": scoreProp,
						"ideas_score":    scoreProp,
						"admin_score":    scoreProp,
						"raw_text":       map[string]interface{}{"type": "string"},
						"title":          map[string]interface{}{"type": "string"},
					},
					"required": []string{"bucket", "confidence"},
				},
			},
		},
		{
			"type": "function",
			"function": map[string]interface{}{
				"name":        "request_clarification",
				"description": "Ask the user one question when the note is too ambiguous to file",
				"parameters": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"question_text": map[string]interface{}{"type": "string"},
					},
					"required": []string{"question_text"},
				},
			},
		},
		{
			"type": "function",
			"function": map[string]interface{}{
				"name":        "mark_as_junk",
				"description": "Discard the note as noise while keeping it on record",
				"parameters": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"raw_text": map[string]interface{}{"type": "string"},
					},
				},
			},
		},
	}
}

// loadConversation resolves the transcript for a handle, minting a fresh
// handle when none was given
func (r *Runner) loadConversation(ctx context.Context, userID, handle string) (*conversation, error) {
	if handle == "" {
		now := time.Now().UTC()
		return &conversation{
			ID:        "conv-" + ulid.Make().String(),
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}
	c, err := r.docs.Container(store.ContainerConversations)
	if err != nil {
		return nil, err
	}
	raw, err := c.Read(ctx, userID, handle)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			// a stale handle starts a fresh transcript under the same id
			now := time.Now().UTC()
			return &conversation{ID: handle, CreatedAt: now, UpdatedAt: now}, nil
		}
		return nil, err
	}
	var conv conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeStorage, "decode conversation %s", handle)
	}
	return &conv, nil
}

// saveConversation appends this round's turns and upserts the transcript
// Persistence failures are logged, never fatal to the run
func (r *Runner) saveConversation(ctx context.Context, userID string, conv *conversation, userText, assistantText string, calls []*toolCall) {
	conv.Turns = append(conv.Turns, turn{Role: "user", Content: userText})
	if assistantText != "" {
		conv.Turns = append(conv.Turns, turn{Role: "assistant", Content: assistantText})
	}
	for _, c := range calls {
		conv.Turns = append(conv.Turns, turn{
			Role:    "assistant",
			Content: fmt.Sprintf("[tool %s] %s", c.name, c.args.String()),
		})
	}
	conv.UpdatedAt = time.Now().UTC()

	container, err := r.docs.Container(store.ContainerConversations)
	if err != nil {
		r.log.Warn().Err(err).Msg("conversation container unavailable")
		return
	}
	doc, err := json.Marshal(conv)
	if err != nil {
		r.log.Warn().Err(err).Str("handle", conv.ID).Msg("encode conversation")
		return
	}
	if err := container.Upsert(ctx, userID, conv.ID, doc); err != nil {
		r.log.Warn().Err(err).Str("handle", conv.ID).Msg("persist conversation")
	}
}
