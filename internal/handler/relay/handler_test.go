package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	tokenservice "github.com/curiolabs/curio/internal/service/token"
)

func setup(t *testing.T, upstream http.HandlerFunc) (*chi.Mux, string) {
	t.Helper()

	store, err := tokenservice.Open(filepath.Join(t.TempDir(), "tokens.db"))
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	_, plaintext, err := store.Issue(context.Background(), "tester")
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}

	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)

	r := chi.NewRouter()
	New(store, server.URL, "real-api-key").RegisterRoutes(r)
	return r, plaintext
}

func TestChatStreamRequiresValidToken(t *testing.T) {
	r, _ := setup(t, func(w http.ResponseWriter, req *http.Request) {
		t.Error("upstream must not be reached without auth")
	})

	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(`{"query":"hi"}`))
	req.Header.Set("Authorization", "Bearer vu-bogus")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestChatStreamSwapsCredentialsAndRelays(t *testing.T) {
	var upstreamAuth string
	var upstreamBody map[string]any

	r, plaintext := setup(t, func(w http.ResponseWriter, req *http.Request) {
		upstreamAuth = req.Header.Get("Authorization")
		_ = json.NewDecoder(req.Body).Decode(&upstreamBody)

		w.Header().Set("X-Conversation-Id", "c1")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"type\":\"text-delta\",\"data\":{\"delta\":\"hi\"}}\n")
		_, _ = io.WriteString(w, "data: {\"type\":\"done\",\"data\":{}}\n")
	})

	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(`{"query":"hi"}`))
	req.Header.Set("Authorization", "Bearer "+plaintext)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if upstreamAuth != "Bearer real-api-key" {
		t.Fatalf("real key not swapped in: %q", upstreamAuth)
	}
	if strings.Contains(upstreamAuth, plaintext) {
		t.Fatal("virtual token leaked upstream")
	}
	if upstreamBody["externalUserId"] == "" || upstreamBody["externalUserId"] == nil {
		t.Fatal("virtual user id not injected as externalUserId")
	}
	if got := resp.Header().Get("X-Conversation-Id"); got != "c1" {
		t.Fatalf("fallback header not propagated: %q", got)
	}
	if !strings.Contains(resp.Body.String(), "\"type\":\"done\"") {
		t.Fatalf("stream not relayed: %q", resp.Body.String())
	}
}

func TestChatStreamInterruptionEmitsErrorEvent(t *testing.T) {
	// The upstream promises more bytes than it writes, so the relay's read
	// fails after the first event instead of reaching a clean EOF.
	r, plaintext := setup(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Content-Length", "4096")
		_, _ = io.WriteString(w, "data: {\"type\":\"text-delta\",\"data\":{\"delta\":\"hi\"}}\n")
	})

	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(`{"query":"hi"}`))
	req.Header.Set("Authorization", "Bearer "+plaintext)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	if !strings.Contains(body, "\"delta\":\"hi\"") {
		t.Fatalf("relayed prefix missing: %q", body)
	}
	if !strings.Contains(body, "\"type\":\"error\"") || !strings.Contains(body, "upstream_interrupted") {
		t.Fatalf("interruption not surfaced as error event: %q", body)
	}
}

func TestChatStreamUpstreamErrorBecomesBadGateway(t *testing.T) {
	r, plaintext := setup(t, func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})

	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(`{"query":"hi"}`))
	req.Header.Set("Authorization", "Bearer "+plaintext)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
}

func TestConversationsScopedToVirtualUser(t *testing.T) {
	var upstreamQuery string
	r, plaintext := setup(t, func(w http.ResponseWriter, req *http.Request) {
		upstreamQuery = req.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"conversations":[]}`)
	})

	req := httptest.NewRequest(http.MethodGet, "/conversations?limit=10", nil)
	req.Header.Set("Authorization", "Bearer "+plaintext)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(upstreamQuery, "externalUserId=") || !strings.Contains(upstreamQuery, "limit=10") {
		t.Fatalf("query not scoped: %q", upstreamQuery)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte("conversations")) {
		t.Fatalf("body not forwarded: %q", resp.Body.String())
	}
}
