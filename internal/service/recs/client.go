package recs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/curiolabs/curio/internal/model/chat"
)

// ErrNoCredentials is returned before any network activity when the
// credential source cannot supply a token.
var ErrNoCredentials = errors.New("recs: no api credentials configured")

// CredentialSource supplies the Bearer token per call, so the credential
// layer (env var, proxy-issued virtual token, test fake) stays swappable.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a CredentialSource backed by a fixed token string.
type StaticToken string

// Token implements CredentialSource.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Client talks to the recommendation API. Construct it explicitly and pass
// it to whoever needs it; there is no package-level default.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialSource
}

// NewClient builds a client for the given base URL. The underlying HTTP
// client carries no timeout: chat streams are long-lived and callers bound
// them with a context instead.
func NewClient(baseURL string, creds CredentialSource) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		creds:      creds,
	}
}

// ChatRequest is the body of a chat-stream call.
type ChatRequest struct {
	Query          string         `json:"query"`
	ConversationID string         `json:"conversationId,omitempty"`
	ExternalUserID string         `json:"externalUserId,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ChatStream is an open chat-stream response. ConversationID and MessageID
// come from the response headers and serve as a fallback when the done
// event omits ids. The caller owns Body and must close it.
type ChatStream struct {
	Body           io.ReadCloser
	ConversationID string
	MessageID      string
}

// ConversationDetail is the full fetch of one conversation.
type ConversationDetail struct {
	Conversation chat.Conversation `json:"conversation"`
	Messages     []chat.Message    `json:"messages"`
}

// StreamChat opens an SSE stream for one user query.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (*ChatStream, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("recs: marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("recs: build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("recs: chat stream returned %s: %s", resp.Status, bodySnippet(resp.Body))
	}

	return &ChatStream{
		Body:           resp.Body,
		ConversationID: resp.Header.Get("X-Conversation-Id"),
		MessageID:      resp.Header.Get("X-Message-Id"),
	}, nil
}

// GetConversations lists conversations, newest first, optionally scoped to
// an external user.
func (c *Client) GetConversations(ctx context.Context, userID string, limit int) ([]chat.Conversation, error) {
	query := url.Values{}
	if userID != "" {
		query.Set("externalUserId", userID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	endpoint := c.baseURL + "/api/conversations"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var out struct {
		Conversations []chat.Conversation `json:"conversations"`
	}
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// GetConversation fetches one conversation with its full message history.
func (c *Client) GetConversation(ctx context.Context, id string) (*ConversationDetail, error) {
	if id == "" {
		return nil, errors.New("recs: conversation id is required")
	}

	var out ConversationDetail
	if err := c.getJSON(ctx, c.baseURL+"/api/conversations/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dst any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("recs: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("recs: %s returned %s: %s", endpoint, resp.Status, bodySnippet(resp.Body))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func (c *Client) token(ctx context.Context) (string, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(token) == "" {
		return "", ErrNoCredentials
	}
	return token, nil
}

// bodySnippet reads a short prefix of an error body for diagnostics.
func bodySnippet(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return "<no body>"
	}
	return strings.TrimSpace(string(data))
}
