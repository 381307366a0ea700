package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driving"
)

// User-visible notices appended to the stream on degraded paths. They are
// also recorded as the assistant's turn so the transcript reflects what the
// user actually saw.
const (
	NoticeRateLimited = "All models are currently rate-limited. Please try again in a moment."
	NoticeFailed      = "Something went wrong while generating the answer. Please try again."
)

// Verify interface compliance
var _ driving.ChatService = (*ChatService)(nil)

// ChatService orchestrates one chat turn: record the question, build
// grounded context, stream the answer, record the reply.
type ChatService struct {
	chats     driven.ChatStore
	retrieval *RetrievalService
	generator *FallbackGenerator
	topK      int
	logger    *slog.Logger
}

// NewChatService creates the chat service. topK <= 0 uses DefaultTopK.
func NewChatService(chats driven.ChatStore, retrieval *RetrievalService, generator *FallbackGenerator, topK int, logger *slog.Logger) *ChatService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		chats:     chats,
		retrieval: retrieval,
		generator: generator,
		topK:      topK,
		logger:    logger,
	}
}

// StreamAnswer implements driving.ChatService.
//
// The accumulated partial answer is committed to the transcript even when
// generation fails part-way; it is never silently dropped.
func (s *ChatService) StreamAnswer(ctx context.Context, message string, sink func(string)) (*domain.StreamResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrInvalidInput)
	}

	if err := s.chats.Append(ctx, domain.NewUserMessage(message)); err != nil {
		return nil, fmt.Errorf("record user turn: %w", err)
	}

	chunks, err := s.retrieval.Retrieve(ctx, message, s.topK)
	if err != nil {
		return nil, err
	}
	prompt := BuildPrompt(message, chunks)

	var answer strings.Builder
	forward := func(delta string) {
		answer.WriteString(delta)
		sink(delta)
	}

	result, err := s.generator.StreamAnswer(ctx, prompt, forward)
	switch {
	case err == nil:
		s.commitAssistantTurn(ctx, answer.String())
		return result, nil

	case errors.Is(err, domain.ErrRateLimited):
		// Every model variant exhausted. Surface a notice instead of leaving
		// the user with a silently truncated answer.
		s.logger.Error("all models rate limited", "models", s.generator.Models())
		sink(NoticeRateLimited)
		s.commitAssistantTurn(ctx, joinNotice(answer.String(), NoticeRateLimited))
		return nil, err

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Consumer went away mid-stream. Keep whatever was already sent.
		s.logger.Info("chat stream cancelled by consumer")
		if answer.Len() > 0 {
			s.commitAssistantTurn(context.WithoutCancel(ctx), answer.String())
		}
		return nil, err

	default:
		s.logger.Error("generation failed", "error", err)
		sink(NoticeFailed)
		s.commitAssistantTurn(ctx, joinNotice(answer.String(), NoticeFailed))
		return nil, err
	}
}

// History implements driving.ChatService.
func (s *ChatService) History(ctx context.Context) ([]domain.ChatMessage, error) {
	return s.chats.History(ctx)
}

// Reset implements driving.ChatService.
func (s *ChatService) Reset(ctx context.Context) error {
	return s.chats.Reset(ctx)
}

func (s *ChatService) commitAssistantTurn(ctx context.Context, content string) {
	if err := s.chats.Append(ctx, domain.NewAssistantMessage(content)); err != nil {
		s.logger.Error("failed to record assistant turn", "error", err)
	}
}

func joinNotice(partial, notice string) string {
	if partial == "" {
		return notice
	}
	return partial + "\n\n" + notice
}
