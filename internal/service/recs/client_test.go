package recs_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/curiolabs/curio/internal/service/recs"
)

func TestStreamChatSendsAuthorizedRequest(t *testing.T) {
	var gotAuth, gotAccept string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat/stream" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("X-Conversation-Id", "c1")
		w.Header().Set("X-Message-Id", "m1")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"type\":\"done\",\"data\":{}}\n")
	}))
	defer server.Close()

	client := recs.NewClient(server.URL, recs.StaticToken("secret-token"))
	cs, err := client.StreamChat(context.Background(), recs.ChatRequest{
		Query:          "find me jazz",
		ConversationID: "c1",
		ExternalUserID: "u1",
	})
	if err != nil {
		t.Fatalf("StreamChat err: %v", err)
	}
	defer cs.Body.Close()

	if gotAuth != "Bearer secret-token" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotAccept != "text/event-stream" {
		t.Fatalf("unexpected accept header: %q", gotAccept)
	}
	if gotBody["query"] != "find me jazz" || gotBody["conversationId"] != "c1" || gotBody["externalUserId"] != "u1" {
		t.Fatalf("unexpected request body: %v", gotBody)
	}
	if cs.ConversationID != "c1" || cs.MessageID != "m1" {
		t.Fatalf("header ids not captured: %s/%s", cs.ConversationID, cs.MessageID)
	}

	data, err := io.ReadAll(cs.Body)
	if err != nil {
		t.Fatalf("read body err: %v", err)
	}
	if !strings.Contains(string(data), "\"type\":\"done\"") {
		t.Fatalf("unexpected stream payload: %q", data)
	}
}

func TestStreamChatNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"upstream unavailable"}`, http.StatusBadGateway)
	}))
	defer server.Close()

	client := recs.NewClient(server.URL, recs.StaticToken("secret"))
	if _, err := client.StreamChat(context.Background(), recs.ChatRequest{Query: "hi"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	} else if !strings.Contains(err.Error(), "upstream unavailable") {
		t.Fatalf("error should carry body snippet: %v", err)
	}
}

func TestStreamChatMissingCredentials(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := recs.NewClient(server.URL, recs.StaticToken(""))
	_, err := client.StreamChat(context.Background(), recs.ChatRequest{Query: "hi"})
	if !errors.Is(err, recs.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
	if called {
		t.Fatal("configuration error must surface before any network call")
	}
}

func TestGetConversations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conversations" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("externalUserId") != "u1" || r.URL.Query().Get("limit") != "5" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"conversations":[{"id":"c1","messageCount":4},{"id":"c2","messageCount":2}]}`)
	}))
	defer server.Close()

	client := recs.NewClient(server.URL, recs.StaticToken("secret"))
	convs, err := client.GetConversations(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("GetConversations err: %v", err)
	}
	if len(convs) != 2 || convs[0].ID != "c1" || convs[0].MessageCount != 4 {
		t.Fatalf("unexpected conversations: %+v", convs)
	}
}

func TestGetConversationDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conversations/c1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"conversation":{"id":"c1","messageCount":2},"messages":[{"id":"m1","role":"user","content":"hi"},{"id":"m2","role":"assistant","content":"hello"}]}`)
	}))
	defer server.Close()

	client := recs.NewClient(server.URL, recs.StaticToken("secret"))
	detail, err := client.GetConversation(context.Background(), "c1")
	if err != nil {
		t.Fatalf("GetConversation err: %v", err)
	}
	if detail.Conversation.ID != "c1" || len(detail.Messages) != 2 {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if detail.Messages[1].Content != "hello" {
		t.Fatalf("unexpected message: %+v", detail.Messages[1])
	}
}
