package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/appealdesk/appealdesk/internal/auth"
	"github.com/appealdesk/appealdesk/internal/rbac"
	"github.com/appealdesk/appealdesk/internal/shared"
)

type stubRepo struct {
	user      *auth.User
	principal *rbac.Principal
	lastLogin bool
}

func (s *stubRepo) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	if s.user == nil || s.user.Username != username {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateUser(_ context.Context, user auth.User) (*auth.User, error) {
	user.ID = uuid.New()
	s.user = &user
	return &user, nil
}

func (s *stubRepo) UpdateLastLogin(context.Context, uuid.UUID) error {
	s.lastLogin = true
	return nil
}

func (s *stubRepo) LoadPrincipal(context.Context, uuid.UUID) (*rbac.Principal, error) {
	if s.principal == nil {
		return nil, shared.ErrNotFound
	}
	return s.principal, nil
}

func newAuthHandler(t *testing.T, repo auth.Repository) (chi.Router, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	handler := auth.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), auth.NewService(repo), sessions, validator.New())
	router := chi.NewRouter()
	handler.MountRoutes(router)
	return router, sessions
}

func loginWith(t *testing.T, router chi.Router, sessions *shared.SessionManager, body string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	sess, err := sessions.Load(context.Background(), req)
	require.NoError(t, err)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.NoError(t, sessions.Commit(req.Context(), res, req, sess))
	return res, sess
}

func TestLoginSuccessBindsSession(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &stubRepo{user: &auth.User{
		ID:           uuid.New(),
		Username:     "alice",
		PasswordHash: string(hashed),
	}}
	handler, sessions := newAuthHandler(t, repo)

	res, sess := loginWith(t, handler, sessions, `{"username":"alice","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, repo.user.ID.String(), sess.User())
	require.True(t, repo.lastLogin)

	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "alice", body["username"])
}

func TestLoginRejectsBadPassword(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &stubRepo{user: &auth.User{ID: uuid.New(), Username: "alice", PasswordHash: string(hashed)}}
	handler, sessions := newAuthHandler(t, repo)

	res, sess := loginWith(t, handler, sessions, `{"username":"alice","password":"wrongwrong"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Empty(t, sess.User())
}

func TestLoginRejectsBannedAccount(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &stubRepo{user: &auth.User{
		ID:           uuid.New(),
		Username:     "alice",
		PasswordHash: string(hashed),
		IsBanned:     true,
	}}
	handler, sessions := newAuthHandler(t, repo)

	res, _ := loginWith(t, handler, sessions, `{"username":"alice","password":"correct horse"}`)
	// Banned accounts get the same answer as bad credentials.
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestRegisterCreatesAccountAndSession(t *testing.T) {
	repo := &stubRepo{}
	handler, sessions := newAuthHandler(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"username":"bob","email":"bob@example.com","password":"longenough"}`))
	sess, err := sessions.Load(context.Background(), req)
	require.NoError(t, err)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusCreated, res.Code)
	require.NotNil(t, repo.user)
	require.Equal(t, repo.user.ID.String(), sess.User())

	// The stored hash must verify against the original password.
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.user.PasswordHash), []byte("longenough")))
}

func TestRegisterValidatesInput(t *testing.T) {
	handler, sessions := newAuthHandler(t, &stubRepo{})

	req := httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"username":"x","email":"not-an-email","password":"short"}`))
	sess, err := sessions.Load(context.Background(), req)
	require.NoError(t, err)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusBadRequest, res.Code)
}
