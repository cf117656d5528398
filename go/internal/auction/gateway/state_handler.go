package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brackethq/calcutta/go/internal/auction/engine"
)

// StateProvider supplies auction snapshots for clients joining mid-auction.
type StateProvider interface {
	Snapshot(ctx context.Context, poolID uuid.UUID) (*engine.AuctionState, error)
}

// StateHandler serves the full auction state over HTTP so a reconnecting
// client can resync before following the event stream.
type StateHandler struct {
	provider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{provider: provider}
}

// HandleAuctionState handles GET /api/auction/state?pool_id=...
func (h *StateHandler) HandleAuctionState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	poolIDStr := r.URL.Query().Get("pool_id")
	if poolIDStr == "" {
		http.Error(w, "pool_id is required", http.StatusBadRequest)
		return
	}

	poolID, err := uuid.Parse(poolIDStr)
	if err != nil {
		http.Error(w, "invalid pool_id format", http.StatusBadRequest)
		return
	}

	state, err := h.provider.Snapshot(r.Context(), poolID)
	if err != nil {
		log.Error().
			Err(err).
			Str("pool_id", poolID.String()).
			Msg("failed to build auction state")
		http.Error(w, "failed to load auction state", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Error().Err(err).Msg("failed to encode auction state")
	}
}

// RegisterStateRoutes registers state sync routes with an HTTP mux
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auction/state", h.HandleAuctionState)
}
