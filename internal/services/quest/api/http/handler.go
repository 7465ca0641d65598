package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
	"github.com/louisbranch/questworld/internal/services/quest/app"
	"github.com/louisbranch/questworld/internal/services/quest/domain/action"
	"github.com/louisbranch/questworld/internal/services/quest/domain/gamestate"
	"github.com/louisbranch/questworld/internal/services/quest/domain/quest"
	"github.com/louisbranch/questworld/internal/services/quest/domain/template"
	"github.com/louisbranch/questworld/internal/services/quest/storage"
	"github.com/louisbranch/questworld/internal/services/quest/templates"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Engine is the player-facing engine surface.
type Engine interface {
	GetState(ctx context.Context, playerID string) (gamestate.GameState, error)
	CreateState(ctx context.Context, playerID, name string) (gamestate.GameState, error)
	ApplyAction(ctx context.Context, playerID string, a action.Action) (app.Result, error)
	ListPlayers(ctx context.Context) ([]string, error)
	PlayersInLocation(ctx context.Context, location string) ([]string, error)
	MovePlayer(ctx context.Context, playerID, location string) (storage.LocationChange, bool, error)
	Leaderboard(ctx context.Context, limit int) ([]storage.LeaderboardEntry, error)
	Rank(ctx context.Context, playerID string) (storage.LeaderboardEntry, error)
}

// Templates is the authoring surface of the template repository.
type Templates interface {
	List(ctx context.Context, opts templates.ListOptions) (templates.Page, error)
	Get(ctx context.Context, templateID string) (template.Template, error)
	Create(ctx context.Context, draft templates.Draft, author string) (template.Template, error)
	Update(ctx context.Context, templateID string, patch templates.Patch) (template.Template, error)
	Delete(ctx context.Context, templateID string) (templates.DeleteResult, error)
	Publish(ctx context.Context, templateID string) (template.Template, error)
	Unpublish(ctx context.Context, templateID string) (template.Template, error)
	Duplicate(ctx context.Context, templateID, name string) (template.Template, error)
	Instantiate(ctx context.Context, ref string) (quest.Quest, error)
}

// Handler serves the JSON API.
type Handler struct {
	engine    Engine
	templates Templates
	mux       *http.ServeMux
}

// NewHandler registers every route.
func NewHandler(engine Engine, tpl Templates) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if tpl == nil {
		return nil, errors.New("template repository is required")
	}
	h := &Handler{engine: engine, templates: tpl, mux: http.NewServeMux()}
	h.routes()
	return h, nil
}

// Instrumented wraps the handler with OpenTelemetry HTTP spans.
func (h *Handler) Instrumented(service string) http.Handler {
	return otelhttp.NewHandler(h, service)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	h.mux.HandleFunc("GET /v1/players", h.handleListPlayers)
	h.mux.HandleFunc("GET /v1/players/{id}/state", h.handleGetState)
	h.mux.HandleFunc("POST /v1/players/{id}/state", h.handleCreateState)
	h.mux.HandleFunc("POST /v1/players/{id}/actions", h.handleApplyAction)
	h.mux.HandleFunc("PUT /v1/players/{id}/location", h.handleMovePlayer)
	h.mux.HandleFunc("GET /v1/players/{id}/rank", h.handleRank)
	h.mux.HandleFunc("GET /v1/locations/{name}/players", h.handlePlayersInLocation)
	h.mux.HandleFunc("GET /v1/leaderboard", h.handleLeaderboard)

	h.mux.HandleFunc("GET /v1/templates", h.handleListTemplates)
	h.mux.HandleFunc("POST /v1/templates", h.handleCreateTemplate)
	h.mux.HandleFunc("GET /v1/templates/{id}", h.handleGetTemplate)
	h.mux.HandleFunc("PATCH /v1/templates/{id}", h.handleUpdateTemplate)
	h.mux.HandleFunc("DELETE /v1/templates/{id}", h.handleDeleteTemplate)
	h.mux.HandleFunc("POST /v1/templates/{id}/publish", h.handlePublishTemplate)
	h.mux.HandleFunc("POST /v1/templates/{id}/unpublish", h.handleUnpublishTemplate)
	h.mux.HandleFunc("POST /v1/templates/{id}/duplicate", h.handleDuplicateTemplate)
	h.mux.HandleFunc("POST /v1/templates/{id}/instantiate", h.handleInstantiateTemplate)
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code       apperrors.Code        `json:"code"`
	Message    string                `json:"message"`
	Metadata   map[string]string     `json:"metadata,omitempty"`
	Violations []apperrors.Violation `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}

// writeError maps domain errors onto their HTTP status. Anything else is an
// internal error and its detail stays in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	domainErr, ok := apperrors.As(err)
	if !ok {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorDetail{
			Code:    apperrors.CodeUnknown,
			Message: "internal error",
		}})
		return
	}
	status := domainErr.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorResponse{Error: errorDetail{
		Code:       domainErr.Code,
		Message:    domainErr.Error(),
		Metadata:   domainErr.Metadata,
		Violations: domainErr.Violations,
	}})
}

// decodeBody reads a JSON body into target. An empty body leaves target
// untouched.
func decodeBody(r *http.Request, target any, code apperrors.Code) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.Wrap(code, "read request body", err)
	}
	if strings.TrimSpace(string(body)) == "" {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return apperrors.Wrap(code, fmt.Sprintf("malformed request body: %v", err), err)
	}
	return nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.Validation("invalid query parameter", []apperrors.Violation{{
			Path:    name,
			Rule:    "format",
			Message: fmt.Sprintf("%s must be a non-negative integer", name),
		}})
	}
	return n, nil
}
