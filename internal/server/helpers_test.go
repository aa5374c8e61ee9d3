package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/app"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/database"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/mail"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type capturingMailer struct {
	mu   sync.Mutex
	sent []mail.BoardInvitation
}

func (m *capturingMailer) SendBoardInvitation(_ context.Context, invitation mail.BoardInvitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, invitation)
	return nil
}

func (m *capturingMailer) lastToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].InvitationToken
}

type testStack struct {
	server     *httptest.Server
	services   *app.Services
	issuer     *auth.TokenIssuer
	dispatcher *RealtimeDispatcher
	mailer     *capturingMailer
	collectors *metrics.Collectors
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "server.db")}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	dispatcher := NewRealtimeDispatcher()
	mailer := &capturingMailer{}
	services, err := app.NewServices(app.Config{
		Database:         db,
		Logger:           zap.NewNop(),
		InvitationMailer: mailer,
		Listener:         NotificationListener(dispatcher),
	})
	if err != nil {
		t.Fatalf("failed to build services: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "taskboard-auth",
		Audience:      "taskboard-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}
	collectors := metrics.New()
	dispatcher.SetObserver(collectors)

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager:      issuer,
		Users:             services.Users,
		Boards:            services.Boards,
		Columns:           services.Columns,
		Tasks:             services.Tasks,
		Invitations:       services.Invitations,
		Notifications:     services.Notifications,
		Activity:          services.Activity,
		Realtime:          dispatcher,
		Metrics:           collectors,
		CookieName:        "taskboard_session",
		HeartbeatInterval: time.Minute,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testStack{
		server:     server,
		services:   services,
		issuer:     issuer,
		dispatcher: dispatcher,
		mailer:     mailer,
		collectors: collectors,
	}
}

type session struct {
	UserID string
	Token  string
}

func (s *testStack) register(t *testing.T, email, name string) session {
	t.Helper()
	var response struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	status := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    email,
		"name":     name,
		"password": "correct-horse-battery",
	}, &response)
	if status != http.StatusCreated {
		t.Fatalf("register %s: unexpected status %d", email, status)
	}
	return session{UserID: response.User.ID, Token: response.AccessToken}
}

// do sends a JSON request and decodes the response body into out when it is non-nil.
func (s *testStack) do(t *testing.T, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, s.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()
	if out != nil {
		payload, err := io.ReadAll(response.Body)
		if err != nil {
			t.Fatalf("failed to read response: %v", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, out); err != nil {
				t.Fatalf("failed to decode %s %s response %q: %v", method, path, string(payload), err)
			}
		}
	}
	return response.StatusCode
}
