package http

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driving"
)

var (
	_ driving.AuthService      = (*mockAuthService)(nil)
	_ driving.IngestionService = (*mockIngestionService)(nil)
	_ driving.ChatService      = (*mockChatService)(nil)
)

type mockAuthService struct{ mock.Mock }

func (m *mockAuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.UserSummary, error) {
	args := m.Called(ctx, req)
	user, _ := args.Get(0).(*domain.UserSummary)
	return user, args.Error(1)
}

func (m *mockAuthService) Authenticate(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*domain.LoginResponse)
	return resp, args.Error(1)
}

func (m *mockAuthService) ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error) {
	args := m.Called(ctx, token)
	authCtx, _ := args.Get(0).(*domain.AuthContext)
	return authCtx, args.Error(1)
}

func (m *mockAuthService) RefreshToken(ctx context.Context, req domain.RefreshRequest) (*domain.LoginResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*domain.LoginResponse)
	return resp, args.Error(1)
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockAuthService) LogoutAll(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockAuthService) ChangePassword(ctx context.Context, userID string, req domain.ChangePasswordRequest) error {
	return m.Called(ctx, userID, req).Error(0)
}

func (m *mockAuthService) GetUser(ctx context.Context, userID string) (*domain.UserSummary, error) {
	args := m.Called(ctx, userID)
	user, _ := args.Get(0).(*domain.UserSummary)
	return user, args.Error(1)
}

type mockIngestionService struct{ mock.Mock }

func (m *mockIngestionService) Ingest(ctx context.Context, ownerID, filename string, content []byte) (*domain.Document, error) {
	args := m.Called(ctx, ownerID, filename, content)
	doc, _ := args.Get(0).(*domain.Document)
	return doc, args.Error(1)
}

func (m *mockIngestionService) Process(ctx context.Context, documentID string, attempt domain.Attempt) error {
	return m.Called(ctx, documentID, attempt).Error(0)
}

func (m *mockIngestionService) Reprocess(ctx context.Context, ownerID, documentID string) error {
	return m.Called(ctx, ownerID, documentID).Error(0)
}

func (m *mockIngestionService) Delete(ctx context.Context, ownerID, documentID string) error {
	return m.Called(ctx, ownerID, documentID).Error(0)
}

func (m *mockIngestionService) Get(ctx context.Context, ownerID, documentID string) (*domain.Document, error) {
	args := m.Called(ctx, ownerID, documentID)
	doc, _ := args.Get(0).(*domain.Document)
	return doc, args.Error(1)
}

func (m *mockIngestionService) List(ctx context.Context, ownerID string, opts domain.ListOptions) (*domain.DocumentList, error) {
	args := m.Called(ctx, ownerID, opts)
	list, _ := args.Get(0).(*domain.DocumentList)
	return list, args.Error(1)
}

func (m *mockIngestionService) RecoverStale(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockChatService struct{ mock.Mock }

func (m *mockChatService) Ask(ctx context.Context, ownerID, chatID, question string) (*domain.AskResult, error) {
	args := m.Called(ctx, ownerID, chatID, question)
	result, _ := args.Get(0).(*domain.AskResult)
	return result, args.Error(1)
}

func (m *mockChatService) CreateChat(ctx context.Context, ownerID, title string) (*domain.ChatSession, error) {
	args := m.Called(ctx, ownerID, title)
	chat, _ := args.Get(0).(*domain.ChatSession)
	return chat, args.Error(1)
}

func (m *mockChatService) ListChats(ctx context.Context, ownerID string, limit, offset int) ([]*domain.ChatSummary, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	chats, _ := args.Get(0).([]*domain.ChatSummary)
	return chats, args.Error(1)
}

func (m *mockChatService) GetChat(ctx context.Context, ownerID, chatID string) (*domain.ChatWithMessages, error) {
	args := m.Called(ctx, ownerID, chatID)
	chat, _ := args.Get(0).(*domain.ChatWithMessages)
	return chat, args.Error(1)
}

func (m *mockChatService) RenameChat(ctx context.Context, ownerID, chatID, title string) (*domain.ChatSession, error) {
	args := m.Called(ctx, ownerID, chatID, title)
	chat, _ := args.Get(0).(*domain.ChatSession)
	return chat, args.Error(1)
}

func (m *mockChatService) DeleteChat(ctx context.Context, ownerID, chatID string) error {
	return m.Called(ctx, ownerID, chatID).Error(0)
}

// pingFunc adapts a function to Pinger
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
