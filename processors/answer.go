package processors

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"quizHelper/core"
	"quizHelper/storage"
)

const DefaultTopK = 5

const answerSystemPrompt = `You are a chat assistant that is taking a quiz. Given a question, context, and answer choices, accurately answer the question.
Only return the text of the correct answer and nothing else.`

const answerPromptTemplate = `QUESTION: %s

CONTEXT:
%s

ANSWER CHOICES:
%s

Return the correct answer choice to the question given the context. Only return the text of the correct answer choice.`

// BuildAnswerPrompt fills the user prompt. Context passages are separated by
// a blank line and choices keep their order, one per line.
func BuildAnswerPrompt(q core.Query, contexts []string) string {
	return fmt.Sprintf(answerPromptTemplate, q.Question, strings.Join(contexts, "\n\n"), q.ChoicesBlock())
}

// ChatCompleter sends a system and a user message and returns the reply.
type ChatCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAIChat calls /chat/completions and returns the first choice as is.
type OpenAIChat struct {
	client *openai.Client
	model  string
}

func NewOpenAIChat(client *openai.Client, model string) *OpenAIChat {
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIChat{client: client, model: model}
}

func (c *OpenAIChat) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// RetrievalAnswerer answers a query from the k passages closest to its
// question.
type RetrievalAnswerer struct {
	embedder storage.Embedder
	chat     ChatCompleter
	topK     int
	timeout  time.Duration
	logger   *log.Logger
}

func NewRetrievalAnswerer(embedder storage.Embedder, chat ChatCompleter, topK int, timeout time.Duration, logger *log.Logger) *RetrievalAnswerer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = newLogger("ANSWER")
	}
	return &RetrievalAnswerer{embedder: embedder, chat: chat, topK: topK, timeout: timeout, logger: logger}
}

func (a *RetrievalAnswerer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(ctx, a.timeout)
	}
	return ctx, func() {}
}

// Retrieve embeds text and returns the k nearest hits from ix.
func (a *RetrievalAnswerer) Retrieve(ctx context.Context, text string, ix *storage.Index, k int) ([]core.Hit, error) {
	embedCtx, cancel := a.withTimeout(ctx)
	vec, err := a.embedder.Embed(embedCtx, text)
	cancel()
	if err != nil {
		return nil, &core.EmbeddingServiceError{ChunkIndex: -1, Err: err}
	}
	return ix.Search(ctx, vec, k)
}

// Answer returns the chat model's reply verbatim.
func (a *RetrievalAnswerer) Answer(ctx context.Context, q core.Query, ix *storage.Index) (string, error) {
	start := time.Now()
	hits, err := a.Retrieve(ctx, q.Question, ix, a.topK)
	if err != nil {
		return "", err
	}
	prompt := BuildAnswerPrompt(q, core.HitTexts(hits))

	chatCtx, cancel := a.withTimeout(ctx)
	defer cancel()
	answer, err := a.chat.Complete(chatCtx, answerSystemPrompt, prompt)
	if err != nil {
		return "", &core.AnswerServiceError{Err: err}
	}
	a.logger.Printf("Answered with %d context passages in %.2fs", len(hits), time.Since(start).Seconds())
	return answer, nil
}
