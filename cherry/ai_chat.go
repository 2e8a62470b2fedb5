package cherry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	msgAIEmptyQuestion = "❌ 我好像沒聽清楚你的問題，可以再說一次嗎？"
	msgAIFailure       = "❌ 我好像遇到了一點問題，請稍後再試一次！"
	msgAIThinking      = "🤔 Thinking..."
)

var errEmptyCompletion = errors.New("completion returned no choices")

// ChatCompletionClient is the subset of the OpenAI client used for AI
// thread conversations
type ChatCompletionClient interface {
	CreateChatCompletion(
		ctx context.Context,
		request openai.ChatCompletionRequest,
	) (response openai.ChatCompletionResponse, err error)
}

type aiThreadRegistry struct {
	Threads []string `json:"threads"`
}

// AIChat answers messages posted in registered AI threads, keeping a
// bounded per-thread memory of past turns.
type AIChat struct {
	client  ChatCompletionClient
	config  *AIConfig
	persona func() Persona
	store   KeyValueStore
	logger  *slog.Logger

	registry *Document[aiThreadRegistry]

	mu       sync.RWMutex
	threads  map[string]struct{}
	memories map[string]*Document[[]ConversationTurn]

	requestLimiter *rate.Limiter
}

func newAIChat(
	config *AIConfig,
	store KeyValueStore,
	persona func() Persona,
	httpClient *http.Client,
	logger *slog.Logger,
) *AIChat {
	clientCfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	return NewAIChat(openai.NewClientWithConfig(clientCfg), config, store, persona, logger)
}

func NewAIChat(
	client ChatCompletionClient,
	config *AIConfig,
	store KeyValueStore,
	persona func() Persona,
	logger *slog.Logger,
) *AIChat {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(loggerNameKey, "ai")
	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(config.RequestsPerMinute))
	}
	return &AIChat{
		client:         client,
		config:         config,
		persona:        persona,
		store:          store,
		logger:         logger,
		registry:       NewDocument(store, documentAIThreads, func() aiThreadRegistry { return aiThreadRegistry{} }, logger),
		threads:        map[string]struct{}{},
		memories:       map[string]*Document[[]ConversationTurn]{},
		requestLimiter: rate.NewLimiter(limit, 1),
	}
}

// Load reads the thread registry into memory
func (a *AIChat) Load(ctx context.Context) {
	reg := a.registry.Load(ctx)
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range reg.Threads {
		a.threads[id] = struct{}{}
	}
	a.logger.InfoContext(ctx, "loaded ai threads", "count", len(a.threads))
}

// RegisterThread persists threadID as an AI conversation thread
func (a *AIChat) RegisterThread(ctx context.Context, threadID string) error {
	_, err := a.registry.Update(
		ctx, func(v *aiThreadRegistry) error {
			for _, id := range v.Threads {
				if id == threadID {
					return nil
				}
			}
			v.Threads = append(v.Threads, threadID)
			return nil
		},
	)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.threads[threadID] = struct{}{}
	a.mu.Unlock()
	return nil
}

// IsThread reports whether channelID is a registered AI thread
func (a *AIChat) IsThread(channelID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.threads[channelID]
	return ok
}

func (a *AIChat) memory(threadID string) *Document[[]ConversationTurn] {
	a.mu.Lock()
	defer a.mu.Unlock()
	doc, ok := a.memories[threadID]
	if !ok {
		doc = NewDocument(
			a.store,
			documentMemoryPrefix+threadID,
			func() []ConversationTurn { return []ConversationTurn{} },
			a.logger,
		)
		a.memories[threadID] = doc
	}
	return doc
}

// History returns the remembered turns for threadID
func (a *AIChat) History(ctx context.Context, threadID string) []ConversationTurn {
	return a.memory(threadID).Load(ctx)
}

// Ask sends question to the completion endpoint with the thread's
// history, records the new turn, and returns the message to post.
// Failures are returned as a UserError carrying the apology text.
func (a *AIChat) Ask(
	ctx context.Context,
	threadID string,
	userID string,
	userName string,
	question string,
) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return msgAIEmptyQuestion, nil
	}

	persona := a.persona()
	mem := a.memory(threadID)
	prompt := persona.Prompt(mem.Load(ctx), userID, userName, question)

	if err := a.requestLimiter.Wait(ctx); err != nil {
		return "", externalFailure(msgAIFailure, err)
	}

	reqCtx := ctx
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(
		reqCtx, openai.ChatCompletionRequest{
			Model: a.config.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		},
	)
	if err != nil {
		a.logger.ErrorContext(ctx, "completion failed", "thread_id", threadID, tint.Err(err))
		return "", externalFailure(msgAIFailure, err)
	}
	if len(resp.Choices) == 0 {
		return "", externalFailure(msgAIFailure, errEmptyCompletion)
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	a.logger.InfoContext(
		ctx,
		"completion received",
		"thread_id", threadID,
		"duration", time.Since(start),
		"total_tokens", resp.Usage.TotalTokens,
	)

	maxTurns := a.config.MemoryTurns
	if _, err = mem.Update(
		ctx, func(v *[]ConversationTurn) error {
			turns := append(
				*v,
				ConversationTurn{UserID: userID, UserName: userName, User: question, AI: reply},
			)
			if maxTurns > 0 && len(turns) > maxTurns {
				turns = turns[len(turns)-maxTurns:]
			}
			*v = turns
			return nil
		},
	); err != nil {
		a.logger.ErrorContext(ctx, "error saving conversation memory", tint.Err(err))
	}

	return fmt.Sprintf("🌟 %s: %s", persona.Nickname, reply), nil
}
