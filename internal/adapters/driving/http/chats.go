package http

import (
	"net/http"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

// AskRequest asks a question, optionally inside an existing chat
type AskRequest struct {
	ChatID   string `json:"chat_id,omitempty"`
	Question string `json:"question" validate:"required,max=4000"`
}

// CreateChatRequest starts a chat
type CreateChatRequest struct {
	Title string `json:"title" validate:"max=200"`
}

// RenameChatRequest sets a chat title
type RenameChatRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

// ChatListResponse is a page of chats
type ChatListResponse struct {
	Chats  []*domain.ChatSummary `json:"chats"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// handleAsk godoc
// @Summary      Ask a question
// @Description  Answer a question from the caller's documents. A new chat is created when chat_id is empty.
// @Description  Model outages produce a degraded apology answer rather than an error.
// @Tags         Chat
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      AskRequest  true  "Question"
// @Success      200      {object}  domain.AskResult
// @Failure      400      {object}  ErrorResponse  "Invalid question"
// @Failure      404      {object}  ErrorResponse  "Chat not found"
// @Router       /chat/ask [post]
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.chatService.Ask(r.Context(), ownerID(r), req.ChatID, req.Question)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListChats godoc
// @Summary      List chats
// @Description  The caller's chats, most recently active first
// @Tags         Chat
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query     int  false  "Page size (default 20, max 100)"
// @Param        offset  query     int  false  "Rows to skip"
// @Success      200     {object}  ChatListResponse
// @Router       /chats [get]
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := queryInt(q.Get("limit")), queryInt(q.Get("offset"))

	chats, err := s.chatService.ListChats(r.Context(), ownerID(r), limit, offset)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatListResponse{Chats: chats, Limit: limit, Offset: offset})
}

// handleCreateChat godoc
// @Summary      Create chat
// @Description  Start an empty chat
// @Tags         Chat
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      CreateChatRequest  false  "Title"
// @Success      201      {object}  domain.ChatSession
// @Failure      400      {object}  ErrorResponse  "Invalid title"
// @Router       /chats [post]
func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	chat, err := s.chatService.CreateChat(r.Context(), ownerID(r), req.Title)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, chat)
}

// handleGetChat godoc
// @Summary      Get chat
// @Description  A chat with its full transcript and citations
// @Tags         Chat
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Chat ID"
// @Success      200  {object}  domain.ChatWithMessages
// @Failure      404  {object}  ErrorResponse  "Chat not found"
// @Router       /chats/{id} [get]
func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.chatService.GetChat(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chat)
}

// handleRenameChat godoc
// @Summary      Rename chat
// @Tags         Chat
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string             true  "Chat ID"
// @Param        request  body      RenameChatRequest  true  "New title"
// @Success      200      {object}  domain.ChatSession
// @Failure      400      {object}  ErrorResponse  "Invalid title"
// @Failure      404      {object}  ErrorResponse  "Chat not found"
// @Router       /chats/{id}/title [put]
func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	var req RenameChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	chat, err := s.chatService.RenameChat(r.Context(), ownerID(r), r.PathValue("id"), req.Title)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chat)
}

// handleDeleteChat godoc
// @Summary      Delete chat
// @Tags         Chat
// @Security     BearerAuth
// @Param        id   path  string  true  "Chat ID"
// @Success      204
// @Failure      404  {object}  ErrorResponse  "Chat not found"
// @Router       /chats/{id} [delete]
func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.chatService.DeleteChat(r.Context(), ownerID(r), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
