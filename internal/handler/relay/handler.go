package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	tokenservice "github.com/curiolabs/curio/internal/service/token"
	"github.com/curiolabs/curio/internal/stream"
	"github.com/curiolabs/curio/pkg/utils"
)

// Handler forwards chat and conversation calls to the recommendation API,
// swapping the caller's virtual token for the real API key so the key never
// reaches the browser.
type Handler struct {
	tokens       *tokenservice.Store
	upstreamBase string
	apiKey       string
	client       *http.Client
}

// New creates a relay handler. The shared HTTP client has no timeout
// because chat streams are long-lived.
func New(tokens *tokenservice.Store, upstreamBase, apiKey string) *Handler {
	return &Handler{
		tokens:       tokens,
		upstreamBase: strings.TrimRight(upstreamBase, "/"),
		apiKey:       apiKey,
		client:       &http.Client{},
	}
}

// RegisterRoutes mounts the authenticated proxy endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/stream", h.handleChatStream)
	r.Get("/conversations", h.handleConversations)
	r.Get("/conversations/{conversationID}", h.handleConversation)
}

// authenticate resolves the caller's bearer token to a virtual user.
func (h *Handler) authenticate(r *http.Request) (tokenservice.VirtualUser, error) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return tokenservice.VirtualUser{}, tokenservice.ErrInvalidToken
	}
	return h.tokens.Verify(r.Context(), strings.TrimPrefix(auth, "Bearer "))
}

func (h *Handler) handleChatStream(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticate(r)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// The virtual user id becomes the upstream external user id, so each
	// demo token keeps its own conversation space.
	payload["externalUserId"] = user.ID
	forward, err := json.Marshal(payload)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, h.upstreamBase+"/api/chat/stream", bytes.NewReader(forward))
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to build upstream request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.client.Do(req)
	if err != nil {
		utils.RespondError(w, http.StatusBadGateway, fmt.Sprintf("upstream unreachable: %v", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		utils.RespondError(w, http.StatusBadGateway, fmt.Sprintf("upstream returned %s: %s", resp.Status, strings.TrimSpace(string(snippet))))
		return
	}

	for _, header := range []string{"X-Conversation-Id", "X-Message-Id"} {
		if v := resp.Header.Get(header); v != "" {
			w.Header().Set(header, v)
		}
	}
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if err := utils.RelaySSE(w, flusher, resp.Body); err != nil {
		// The status is already committed, so the interruption goes out as
		// an in-band error event the client folds like any server error.
		log.Printf("[proxy] relay interrupted for user=%s: %v", user.ID, err)
		utils.SendSSEChunk(w, flusher, struct {
			Type string              `json:"type"`
			Data stream.ErrorPayload `json:"data"`
		}{
			Type: stream.TypeError,
			Data: stream.ErrorPayload{Code: "upstream_interrupted", Message: "upstream stream interrupted"},
		})
	}
}

func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticate(r)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	query := url.Values{"externalUserId": {user.ID}}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		query.Set("limit", limit)
	}
	h.forwardJSON(w, r, h.upstreamBase+"/api/conversations?"+query.Encode())
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authenticate(r); err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	id := chi.URLParam(r, "conversationID")
	h.forwardJSON(w, r, h.upstreamBase+"/api/conversations/"+url.PathEscape(id))
}

// forwardJSON proxies a GET to the upstream with the real key and copies the
// response through.
func (h *Handler) forwardJSON(w http.ResponseWriter, r *http.Request, endpoint string) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, endpoint, nil)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to build upstream request")
		return
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.client.Do(req)
	if err != nil {
		utils.RespondError(w, http.StatusBadGateway, fmt.Sprintf("upstream unreachable: %v", err))
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("[proxy] failed to copy upstream response: %v", err)
	}
}
