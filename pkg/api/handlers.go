package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/harun/taskpilot/internal/observability"
	"github.com/harun/taskpilot/pkg/agent"
	"github.com/harun/taskpilot/pkg/conversation"
)

// handleChat runs one chat turn: persist the user message, drive the
// model loop, persist the assistant reply and the tool-call audit trail.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp, err := s.runChatTurn(r.Context(), userID, req, nil)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		s.logger.Error().Err(err).Msg("Chat turn failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// runChatTurn is shared by the HTTP and websocket chat paths. A model
// failure does not return an error: the turn still produces a persisted,
// user-visible assistant message describing it.
func (s *Server) runChatTurn(ctx context.Context, userID string, req ChatRequest, onTool func(agent.ToolCallRecord)) (*ChatResponse, error) {
	start := time.Now()

	conv, err := s.resolveConversation(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	if _, err := s.conversations.SaveMessage(ctx, conversation.SaveMessageInput{
		ConversationID: conv.ID,
		Role:           "user",
		Content:        req.Message,
	}); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	history, err := s.loadHistory(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	result, runErr := s.runner.Run(ctx, agent.RunParams{
		UserID:         userID,
		ConversationID: conv.ID,
		Message:        req.Message,
		History:        history,
		Config:         s.options.Model,
		OnToolCall:     onTool,
	})

	if runErr != nil {
		// The turn must not be lost: persist and return an error reply.
		content := fmt.Sprintf("I encountered an error: %v", runErr)
		msg, err := s.conversations.SaveMessage(ctx, conversation.SaveMessageInput{
			ConversationID: conv.ID,
			Role:           "assistant",
			Content:        content,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to save error message: %w", err)
		}

		observability.RecordChatRequest(time.Since(start), false)

		return &ChatResponse{
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			Role:           "assistant",
			Content:        content,
			CreatedAt:      msg.CreatedAt,
			ToolCalls:      []ToolCallSummary{},
		}, nil
	}

	msg, err := s.conversations.SaveMessage(ctx, conversation.SaveMessageInput{
		ConversationID:   conv.ID,
		Role:             "assistant",
		Content:          result.Text,
		PromptTokens:     &result.Usage.PromptTokens,
		CompletionTokens: &result.Usage.CompletionTokens,
		TotalTokens:      &result.Usage.TotalTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}

	summaries := make([]ToolCallSummary, 0, len(result.ToolCalls))
	for _, record := range result.ToolCalls {
		status := "success"
		if !record.Result.Success {
			status = "error"
		}

		inputJSON, _ := json.Marshal(record.Input)
		outputJSON, _ := json.Marshal(record.Result)

		duration := record.DurationMS
		if _, err := s.conversations.SaveToolCall(ctx, conversation.SaveToolCallInput{
			MessageID:  msg.ID,
			ToolName:   record.Name,
			InputJSON:  string(inputJSON),
			OutputJSON: string(outputJSON),
			Status:     status,
			DurationMS: &duration,
		}); err != nil {
			s.logger.Error().Err(err).Str("tool", record.Name).Msg("Failed to save tool call audit record")
		}

		summaries = append(summaries, ToolCallSummary{
			ToolName: record.Name,
			Status:   status,
		})
	}

	observability.RecordChatRequest(time.Since(start), true)

	return &ChatResponse{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		Role:           "assistant",
		Content:        result.Text,
		CreatedAt:      msg.CreatedAt,
		ToolCalls:      summaries,
	}, nil
}

// resolveConversation loads the requested conversation or starts a new
// one titled after the first message.
func (s *Server) resolveConversation(ctx context.Context, userID string, req ChatRequest) (*conversation.Conversation, error) {
	if req.ConversationID != "" {
		return s.conversations.GetConversation(ctx, req.ConversationID, userID)
	}

	title := req.Message
	if runes := []rune(title); len(runes) > 50 {
		title = string(runes[:50]) + "..."
	}

	return s.conversations.CreateConversation(ctx, userID, title)
}

// loadHistory converts stored messages to model history, excluding the
// just-saved current user message (the runner appends it itself).
func (s *Server) loadHistory(ctx context.Context, conversationID string) ([]agent.Message, error) {
	messages, err := s.conversations.History(ctx, conversationID, s.options.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	if len(messages) > 0 {
		messages = messages[:len(messages)-1]
	}

	history := make([]agent.Message, 0, len(messages))
	for _, m := range messages {
		history = append(history, agent.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	return history, nil
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	conversations, err := s.conversations.ListConversations(r.Context(), userID, 0, 100)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list conversations")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	result := make([]ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		count, err := s.conversations.MessageCount(r.Context(), conv.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("Failed to count messages")
			s.writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		result = append(result, ConversationSummary{
			ID:           conv.ID,
			Title:        conv.Title,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: count,
		})
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	conversationID := r.PathValue("id")

	conv, err := s.conversations.GetConversation(r.Context(), conversationID, userID)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to load conversation")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	messages, err := s.conversations.History(r.Context(), conversationID, 0)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load history")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	detail := ConversationDetail{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Messages:  make([]MessageDetail, 0, len(messages)),
	}
	for _, m := range messages {
		detail.Messages = append(detail.Messages, MessageDetail{
			ID:               m.ID,
			Role:             m.Role,
			Content:          m.Content,
			CreatedAt:        m.CreatedAt,
			PromptTokens:     m.PromptTokens,
			CompletionTokens: m.CompletionTokens,
			TotalTokens:      m.TotalTokens,
		})
	}

	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	conversationID := r.PathValue("id")

	if err := s.conversations.DeleteConversation(r.Context(), conversationID, userID); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to delete conversation")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
