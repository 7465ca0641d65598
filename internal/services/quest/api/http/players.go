package httpapi

import (
	"net/http"

	apperrors "github.com/louisbranch/questworld/internal/platform/errors"
	"github.com/louisbranch/questworld/internal/services/quest/domain/action"
	"github.com/louisbranch/questworld/internal/services/quest/storage"
)

type playersResponse struct {
	Players []string `json:"players"`
}

type createStateRequest struct {
	Name string `json:"name"`
}

type moveRequest struct {
	Location string `json:"location"`
}

type moveResponse struct {
	Moved    bool                   `json:"moved"`
	Location storage.LocationChange `json:"location"`
}

type leaderboardResponse struct {
	Entries []storage.LeaderboardEntry `json:"entries"`
}

func (h *Handler) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	ids, err := h.engine.ListPlayers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playersResponse{Players: nonNil(ids)})
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.engine.GetState(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) handleCreateState(w http.ResponseWriter, r *http.Request) {
	var req createStateRequest
	if err := decodeBody(r, &req, apperrors.CodeValidationFailed); err != nil {
		writeError(w, r, err)
		return
	}
	state, err := h.engine.CreateState(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (h *Handler) handleApplyAction(w http.ResponseWriter, r *http.Request) {
	var req action.Action
	if err := decodeBody(r, &req, apperrors.CodeInvalidAction); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.engine.ApplyAction(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleMovePlayer(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeBody(r, &req, apperrors.CodeInvalidAction); err != nil {
		writeError(w, r, err)
		return
	}
	change, moved, err := h.engine.MovePlayer(r.Context(), r.PathValue("id"), req.Location)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, moveResponse{Moved: moved, Location: change})
}

func (h *Handler) handleRank(w http.ResponseWriter, r *http.Request) {
	entry, err := h.engine.Rank(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handlePlayersInLocation(w http.ResponseWriter, r *http.Request) {
	ids, err := h.engine.PlayersInLocation(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playersResponse{Players: nonNil(ids)})
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := h.engine.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []storage.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Entries: entries})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
