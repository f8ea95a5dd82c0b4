// ABOUTME: HTTP API handlers for command enqueue, worker polls, settings and identity
// ABOUTME: Errors are written as {"error":{"kind","message"}} and never carry store details

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/2389/relay-gateway/internal/auth"
	"github.com/2389/relay-gateway/internal/identity"
	"github.com/2389/relay-gateway/internal/relay"
	"github.com/2389/relay-gateway/internal/store"
)

// EnqueueRequest is the JSON request body for POST /api/commands.
type EnqueueRequest struct {
	Command   string         `json:"command"`
	Args      map[string]any `json:"args"`
	Moderator string         `json:"moderator,omitempty"`
	APIKey    string         `json:"api_key,omitempty"`
}

// EnqueueResponse is the JSON response for POST /api/commands.
type EnqueueResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	CommandID  string `json:"command_id"`
	PushStatus string `json:"push_status"`
	PushError  string `json:"push_error,omitempty"`
}

// PollRequest is the optional JSON request body for POST /api/poll.
type PollRequest struct {
	InstanceID string `json:"instance_id,omitempty"`
	Load       *int64 `json:"load,omitempty"`
}

// CommandResponse is one claimed command in a poll response.
type CommandResponse struct {
	ID        string         `json:"id"`
	Command   string         `json:"command"`
	Args      map[string]any `json:"args"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// PollResponse is the JSON response for POST /api/poll.
type PollResponse struct {
	Commands []CommandResponse `json:"commands"`
}

// SettingsResponse is the JSON response for GET /api/settings.
type SettingsResponse struct {
	Flags map[string]bool `json:"flags"`
}

// MappingResponse is an identity mapping as returned by GET /api/identity.
type MappingResponse struct {
	LocalID      string `json:"local_id"`
	ChatID       string `json:"chat_id,omitempty"`
	ChatUsername string `json:"chat_username,omitempty"`
	GameID       string `json:"game_id,omitempty"`
	GameUsername string `json:"game_username,omitempty"`
}

// InstanceResponse is one live worker in the presence listing.
type InstanceResponse struct {
	InstanceID    string    `json:"instance_id"`
	Load          int64     `json:"load"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// PresenceResponse is the JSON response for GET /api/admin/tenants/{id}/presence.
type PresenceResponse struct {
	TenantID   string             `json:"tenant_id"`
	TTLSeconds int64              `json:"ttl_seconds"`
	Instances  []InstanceResponse `json:"instances"`
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    relay.Kind `json:"kind"`
	Message string     `json:"message"`
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response for kind.
func (g *Gateway) sendJSONError(w http.ResponseWriter, kind relay.Kind, message string) {
	if kind == relay.KindRateLimited {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, relay.HTTPStatus(kind), errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

// sendError writes err using its relay kind and client-safe message.
func (g *Gateway) sendError(w http.ResponseWriter, err error) {
	g.sendJSONError(w, relay.KindOf(err), relay.MessageOf(err))
}

// sendWorkerError is sendError for worker-facing endpoints, where a bad
// credential is reported as 401 like a missing one.
func (g *Gateway) sendWorkerError(w http.ResponseWriter, err error) {
	if relay.KindOf(err) == relay.KindAuthenticationInvalid {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
			Kind:    relay.KindAuthenticationInvalid,
			Message: relay.MessageOf(err),
		}})
		return
	}
	g.sendError(w, err)
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// handleEnqueue queues a command for the caller's tenant and fires the push.
func (g *Gateway) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	decodeErr := decodeBody(w, r, &req)

	apiKey := strings.TrimSpace(r.Header.Get(auth.APIKeyHeader))
	if apiKey == "" {
		apiKey = req.APIKey
	}

	// Credential problems take precedence over a malformed body
	if decodeErr != nil {
		if _, err := g.relay.Authenticate(r.Context(), apiKey); err != nil {
			g.sendError(w, err)
			return
		}
		g.sendJSONError(w, relay.KindValidationFailed, "invalid JSON body")
		return
	}

	var operatorName string
	if op := auth.FromContext(r.Context()); op != nil {
		operatorName = op.DisplayName
	}

	res, err := g.relay.Enqueue(r.Context(), relay.EnqueueRequest{
		APIKey:       apiKey,
		Command:      req.Command,
		Args:         req.Args,
		Moderator:    req.Moderator,
		OperatorName: operatorName,
	})
	if err != nil {
		g.sendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EnqueueResponse{
		Success:    true,
		Message:    res.Message(),
		CommandID:  res.Command.ID,
		PushStatus: string(res.PushStatus),
		PushError:  res.PushError,
	})
}

// handlePoll records a heartbeat and returns the tenant's pending commands.
func (g *Gateway) handlePoll(w http.ResponseWriter, r *http.Request) {
	apiKey := auth.ExtractAPIKey(r)

	var req PollRequest
	if err := decodeBody(w, r, &req); err != nil {
		if _, authErr := g.relay.Authenticate(r.Context(), apiKey); authErr != nil {
			g.sendWorkerError(w, authErr)
			return
		}
		g.sendJSONError(w, relay.KindValidationFailed, "invalid JSON body")
		return
	}

	res, err := g.relay.Poll(r.Context(), relay.PollRequest{
		APIKey:     apiKey,
		InstanceID: req.InstanceID,
		Load:       req.Load,
	})
	if err != nil {
		g.sendWorkerError(w, err)
		return
	}

	resp := PollResponse{Commands: make([]CommandResponse, 0, len(res.Commands))}
	for _, c := range res.Commands {
		resp.Commands = append(resp.Commands, CommandResponse{
			ID:        c.ID,
			Command:   c.Name,
			Args:      c.Args,
			Status:    string(c.Status),
			CreatedAt: c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSettings returns the tenant's feature flags.
func (g *Gateway) handleSettings(w http.ResponseWriter, r *http.Request) {
	flags, err := g.relay.Settings(r.Context(), auth.ExtractAPIKey(r))
	if err != nil {
		g.sendWorkerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SettingsResponse{Flags: flags.Map()})
}

// handleIdentity resolves one identifier, or reports liveness when given none.
func (g *Gateway) handleIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	q, err := identity.ParseQuery(r.URL.Query())
	if err != nil {
		g.sendJSONError(w, relay.KindValidationFailed, err.Error())
		return
	}
	if q.IsProbe() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
		return
	}

	m, err := g.resolver.Resolve(r.Context(), q)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		g.sendJSONError(w, relay.KindNotFound, "no mapping for "+string(q.Field))
		return
	case err != nil:
		g.sendJSONError(w, relay.KindStorageUnavailable, "storage unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]MappingResponse{"mapping": mappingResponse(m)})
}

func mappingResponse(m *store.IdentityMapping) MappingResponse {
	return MappingResponse{
		LocalID:      m.LocalID,
		ChatID:       m.ChatID,
		ChatUsername: m.ChatUsername,
		GameID:       m.GameID,
		GameUsername: m.GameUsername,
	}
}

// handleTenantPresence lists the tenant's live workers for operators.
func (g *Gateway) handleTenantPresence(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")

	live, err := g.relay.LivePresence(r.Context(), tenantID)
	if err != nil {
		if relay.KindOf(err) == relay.KindStorageUnavailable {
			g.logger.Error("listing presence failed", "tenant_id", tenantID, "error", err)
		}
		g.sendError(w, err)
		return
	}

	resp := PresenceResponse{
		TenantID:   tenantID,
		TTLSeconds: int64(g.relay.PresenceTTL() / time.Second),
		Instances:  make([]InstanceResponse, 0, len(live)),
	}
	for _, p := range live {
		resp.Instances = append(resp.Instances, InstanceResponse{
			InstanceID:    p.InstanceID,
			Load:          p.Load,
			LastHeartbeat: p.LastHeartbeat,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
