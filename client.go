package chatkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/thecxx/chatkit/config"
	"github.com/thecxx/chatkit/constants"
	"github.com/thecxx/chatkit/ratelimit"
)

// Client dispatches chat requests to one provider. Every request takes one
// permit from the rate limiter and results in exactly one outbound
// exchange; nothing is retried. A Client is safe for concurrent use.
type Client struct {
	provider   Provider
	transport  Transport
	endpoint   Endpoint
	model      string
	limiter    *ratelimit.Limiter
	accountant *Accountant
	metrics    *Metrics
	logger     *slog.Logger
	defaults   []ChatOption
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// New creates a client for provider serving model.
func New(provider Provider, model string, opts ...ClientOption) *Client {
	c := &Client{
		provider: provider,
		model:    model,
		endpoint: Endpoint{Header: make(http.Header)},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(nil)
	}
	if c.accountant == nil {
		c.accountant = NewAccountant(nil)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// NewOpenAI creates a client for the OpenAI Chat Completions API.
func NewOpenAI(model, apiKey string, opts ...ClientOption) *Client {
	return New(OpenAI{}, model, append([]ClientOption{WithAPIKey(apiKey)}, opts...)...)
}

// NewAnthropic creates a client for the Anthropic Messages API.
func NewAnthropic(model, apiKey string, opts ...ClientOption) *Client {
	return New(Anthropic{}, model, append([]ClientOption{WithAPIKey(apiKey)}, opts...)...)
}

// NewFromConfig creates a client from a loaded configuration. opts are
// applied after the configuration.
func NewFromConfig(cfg *config.Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var provider Provider
	switch cfg.Provider {
	case constants.ProviderOpenAI:
		provider = OpenAI{}
	case constants.ProviderAnthropic:
		provider = Anthropic{}
	default:
		return nil, fmt.Errorf("chatkit: unknown provider %q", cfg.Provider)
	}

	base := []ClientOption{
		WithAPIKey(cfg.APIKey),
		WithBaseURL(cfg.BaseURL),
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.RateLimit != nil {
		limiter, err := ratelimit.New(*cfg.RateLimit)
		if err != nil {
			return nil, err
		}
		base = append(base, WithRateLimiter(limiter))
	}

	defaults := []ChatOption{
		WithMaxToolRounds(cfg.Tools.MaxRounds),
		WithEscalateToolErrors(cfg.Tools.EscalateErrors),
		WithToolConcurrency(cfg.Tools.Concurrency),
		WithStreaming(cfg.Tools.Stream),
	}
	if cfg.MaxTokens > 0 {
		defaults = append(defaults, WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Budget.Check {
		defaults = append(defaults, WithBudgetCheck(cfg.Budget.ReserveCompletion))
	}
	base = append(base, WithDefaults(defaults...))

	return New(provider, cfg.Model, append(base, opts...)...), nil
}

// WithTransport replaces the HTTP collaborator.
func WithTransport(transport Transport) ClientOption {
	return func(c *Client) { c.transport = transport }
}

// WithHTTPClient sends requests through client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.transport = NewHTTPTransport(client) }
}

// WithBaseURL overrides the provider's API root.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.endpoint.BaseURL = baseURL }
}

// WithAPIKey sets the API key.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.endpoint.APIKey = apiKey }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) { c.endpoint.Header.Add(key, value) }
}

// WithRateLimiter gates every request on limiter. The limiter may be
// shared by several clients drawing from the same quota.
func WithRateLimiter(limiter *ratelimit.Limiter) ClientOption {
	return func(c *Client) { c.limiter = limiter }
}

// WithAccountant sets the token accountant used by the budget check.
func WithAccountant(accountant *Accountant) ClientOption {
	return func(c *Client) { c.accountant = accountant }
}

// WithMetrics records request, tool and rate limiter metrics.
func WithMetrics(metrics *Metrics) ClientOption {
	return func(c *Client) { c.metrics = metrics }
}

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithDefaults sets chat options applied before the options of every call.
func WithDefaults(opts ...ChatOption) ClientOption {
	return func(c *Client) { c.defaults = append(c.defaults, opts...) }
}

// Name returns the default model of the client.
func (c *Client) Name() string { return c.model }

// Accountant returns the token accountant of the client.
func (c *Client) Accountant() *Accountant { return c.accountant }

// Send dispatches a buffered request and returns the complete response.
func (c *Client) Send(ctx context.Context, messages []Message, opts ...ChatOption) (Response, error) {
	options := newChatOptions(c.defaults, opts)
	req, err := c.prepare(messages, options)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	completion, err := c.send(ctx, req)
	c.metrics.observeRequest(c.provider.Name(), req.Model, "buffered", err)
	if err != nil {
		c.logger.DebugContext(ctx, "chat request failed",
			"provider", c.provider.Name(), "model", req.Model, "stream", false, "error", err)
		return nil, err
	}
	duration := time.Since(start)
	c.logger.DebugContext(ctx, "chat request finished",
		"provider", c.provider.Name(), "model", req.Model, "stream", false,
		"finish_reason", completion.FinishReason, "duration", duration)

	if completion.Meta.Model == "" {
		completion.Meta.Model = req.Model
	}
	return &response{
		answer:       completion.Message,
		finishReason: completion.FinishReason,
		usage:        completion.Usage,
		meta:         completion.Meta,
		duration:     duration,
	}, nil
}

// ChatCompletion implements Model.
func (c *Client) ChatCompletion(ctx context.Context, messages []Message, opts ...ChatOption) (Response, error) {
	return c.Send(ctx, messages, opts...)
}

// Stream dispatches a streaming request. The returned stream must be
// drained or closed by the caller; cancelling ctx aborts it.
func (c *Client) Stream(ctx context.Context, messages []Message, opts ...ChatOption) (*DeltaStream, error) {
	options := newChatOptions(c.defaults, opts)
	return c.stream(ctx, messages, options)
}

// ChatCompletionStream implements Model. Fragments are pushed to the
// watcher while the message is assembled.
func (c *Client) ChatCompletionStream(ctx context.Context, messages []Message, opts ...ChatOption) (Response, error) {
	options := newChatOptions(c.defaults, opts)
	start := time.Now()
	stream, err := c.stream(ctx, messages, options)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	assembler := NewAssembler()
	msg, err := collect(ctx, stream, assembler, options.watcher)
	if err != nil {
		return nil, err
	}
	return &response{
		answer:       msg,
		finishReason: assembler.FinishReason(),
		usage:        assembler.Usage(),
		meta: Meta{
			Provider:   c.provider.Name(),
			Model:      c.modelFor(options),
			StopReason: assembler.FinishReason(),
		},
		duration: time.Since(start),
	}, nil
}

func (c *Client) stream(ctx context.Context, messages []Message, options *ChatOptions) (*DeltaStream, error) {
	req, err := c.prepare(messages, options)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.dispatch(ctx, req, true)
	if err != nil {
		c.metrics.observeRequest(c.provider.Name(), req.Model, "stream", err)
		c.logger.DebugContext(ctx, "chat stream failed",
			"provider", c.provider.Name(), "model", req.Model, "stream", true, "error", err)
		return nil, err
	}

	stream := NewDeltaStream(ctx, c.provider.DecodeStream(resp.Body), resp.Body)
	stream.finish = func(err error) {
		c.metrics.observeRequest(c.provider.Name(), req.Model, "stream", err)
		c.logger.DebugContext(ctx, "chat stream finished",
			"provider", c.provider.Name(), "model", req.Model, "stream", true,
			"duration", time.Since(start), "error", err)
	}
	return stream, nil
}

// prepare validates the conversation, runs the optional budget check and
// builds the neutral request.
func (c *Client) prepare(messages []Message, options *ChatOptions) (*Request, error) {
	if len(messages) == 0 {
		return nil, errors.New("chatkit: empty conversation")
	}
	if err := validateMessages(messages); err != nil {
		return nil, err
	}
	req := &Request{
		Model:           c.modelFor(options),
		System:          options.prompt,
		Messages:        messages,
		Tools:           options.tools,
		MaxTokens:       options.maxTokens,
		Temperature:     options.temperature,
		TopP:            options.topP,
		TopK:            options.topK,
		Stop:            options.stop,
		ReasoningEffort: options.reasoningLevel,

		ResponseFormat:   options.responseFormat,
		Seed:             options.seed,
		FrequencyPenalty: options.frequencyPenalty,
		PresencePenalty:  options.presencePenalty,
		LogitBias:        options.logitBias,
		User:             options.user,
	}
	if req.Model == "" {
		return nil, errors.New("chatkit: no model configured")
	}

	if options.budgetCheck {
		prompt := messages
		if options.prompt != "" {
			prompt = append([]Message{SystemMessage(options.prompt)}, messages...)
		}
		budget, err := c.accountant.Budget(req.Model, prompt, options.reserved(), options.tools...)
		if err != nil {
			return nil, err
		}
		c.metrics.addPromptTokens(req.Model, budget.Prompt)
		if !budget.Fits() {
			return nil, &BudgetError{Budget: budget}
		}
	}
	return req, nil
}

func (c *Client) modelFor(options *ChatOptions) string {
	if options.model != "" {
		return options.model
	}
	return c.model
}

func (c *Client) send(ctx context.Context, req *Request) (*Completion, error) {
	resp, err := c.dispatch(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return c.provider.DecodeResponse(resp.Body)
}

// dispatch takes a permit, builds the wire request and performs the
// exchange. Non-2xx answers become *TransportError.
func (c *Client) dispatch(ctx context.Context, req *Request, stream bool) (*TransportResponse, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	tr, err := c.provider.NewRequest(c.endpoint, req, stream)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, tr)
}

func (c *Client) acquire(ctx context.Context) error {
	start := time.Now()
	if err := c.limiter.Acquire(ctx, 1); err != nil {
		return err
	}
	c.metrics.observeWait(time.Since(start))
	return nil
}

func (c *Client) do(ctx context.Context, tr *TransportRequest) (*TransportResponse, error) {
	resp, err := c.transport.Do(ctx, tr)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) || ctx.Err() != nil {
			return nil, err
		}
		return nil, &TransportError{Err: err}
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Models lists the models served by the provider.
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	return c.models(ctx, "")
}

// Model retrieves one model by ID.
func (c *Client) Model(ctx context.Context, id string) (ModelInfo, error) {
	models, err := c.models(ctx, id)
	if err != nil {
		return ModelInfo{}, err
	}
	if len(models) == 0 {
		return ModelInfo{}, fmt.Errorf("chatkit: model %q not found", id)
	}
	return models[0], nil
}

func (c *Client) models(ctx context.Context, id string) ([]ModelInfo, error) {
	lister, ok := c.provider.(ModelLister)
	if !ok {
		return nil, fmt.Errorf("%w: models", ErrNotSupported)
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	tr, err := lister.ModelsRequest(c.endpoint, id)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, tr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return lister.DecodeModels(resp.Body, id != "")
}

// Embeddings computes one embedding per input with model.
func (c *Client) Embeddings(ctx context.Context, model string, inputs []string) ([]Embedding, error) {
	embedder, ok := c.provider.(Embedder)
	if !ok {
		return nil, fmt.Errorf("%w: embeddings", ErrNotSupported)
	}
	if len(inputs) == 0 {
		return nil, errors.New("chatkit: no embedding inputs")
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	tr, err := embedder.EmbeddingsRequest(c.endpoint, model, inputs)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, tr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	embeddings, _, err := embedder.DecodeEmbeddings(resp.Body)
	return embeddings, err
}

// Speech synthesizes req.Input and returns the encoded audio.
func (c *Client) Speech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	speaker, ok := c.provider.(Speaker)
	if !ok {
		return nil, fmt.Errorf("%w: speech", ErrNotSupported)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	tr, err := speaker.NewSpeechRequest(c.endpoint, req)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, tr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	return audio, nil
}

// Transcribe uploads req.Audio and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, req TranscriptionRequest) (*Transcription, error) {
	transcriber, ok := c.provider.(Transcriber)
	if !ok {
		return nil, fmt.Errorf("%w: transcription", ErrNotSupported)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	tr, err := transcriber.NewTranscriptionRequest(c.endpoint, req)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, tr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return transcriber.DecodeTranscription(resp.Body, req.Format)
}

// RunTools drives the tool-calling loop over conversation with the
// client's defaults. See Orchestrator.Run.
func (c *Client) RunTools(ctx context.Context, conversation []Message, invoker Invoker, opts ...ChatOption) (*Result, error) {
	orchestrator := NewOrchestrator(c, invoker,
		WithOrchestratorLogger(c.logger),
		WithOrchestratorMetrics(c.metrics),
		withOrchestratorDefaults(c.defaults))
	return orchestrator.Run(ctx, conversation, opts...)
}

// collect pushes every delta to the watcher and the assembler.
func collect(ctx context.Context, stream *DeltaStream, assembler *Assembler, watcher StreamWatcher) (Message, error) {
	for delta, err := range stream.All() {
		if err != nil {
			assembler.Fail(err)
			break
		}
		if watcher != nil {
			if err := notify(ctx, watcher, delta); err != nil {
				return Message{}, err
			}
		}
		if err := assembler.Push(delta); err != nil {
			return Message{}, err
		}
	}
	msg, err := assembler.Finish()
	if err != nil {
		return Message{}, err
	}
	if watcher != nil {
		if err := watcher.OnStop(assembler.FinishReason()); err != nil {
			return Message{}, err
		}
	}
	return msg, nil
}

func notify(ctx context.Context, watcher StreamWatcher, delta Delta) error {
	if delta.Content != "" {
		if err := watcher.OnContent(delta.Content); err != nil {
			return err
		}
	}
	for _, call := range delta.ToolCalls {
		if err := watcher.OnToolCall(ctx, call); err != nil {
			return err
		}
	}
	return nil
}
