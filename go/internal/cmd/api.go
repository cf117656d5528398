package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/brackethq/calcutta/go/internal/auction/engine"
	"github.com/brackethq/calcutta/go/internal/auction/item"
	"github.com/brackethq/calcutta/go/internal/auction/pool"
	"github.com/brackethq/calcutta/go/internal/market"
	"github.com/brackethq/calcutta/go/internal/models"
	"github.com/brackethq/calcutta/go/internal/payout"
	"github.com/brackethq/calcutta/go/internal/store"
)

// api exposes the command surface over HTTP. Reads go through the gateway's
// state endpoint; these routes mutate and reply with a fresh snapshot so the
// caller sees the auction as their command left it.
type api struct {
	services *Services
}

func registerAPIRoutes(mux *http.ServeMux, services *Services) {
	a := &api{services: services}

	mux.HandleFunc("POST /api/pools", a.handleCreatePool)
	mux.HandleFunc("GET /api/pools/{id}", a.handleGetPool)
	mux.HandleFunc("POST /api/pools/{id}/join", a.handleJoinPool)
	mux.HandleFunc("GET /api/pools/{id}/members", a.handleListMembers)
	mux.HandleFunc("POST /api/pools/{id}/items", a.handleSeedItems)
	mux.HandleFunc("POST /api/pools/{id}/open", a.handleOpenPool)

	mux.HandleFunc("POST /api/pools/{id}/start", a.handleStart)
	mux.HandleFunc("POST /api/pools/{id}/bid", a.handleBid)
	mux.HandleFunc("POST /api/pools/{id}/pause", a.handlePause)
	mux.HandleFunc("POST /api/pools/{id}/resume", a.handleResume)
	mux.HandleFunc("POST /api/pools/{id}/sell-now", a.handleSellNow)
	mux.HandleFunc("POST /api/pools/{id}/reorder", a.handleReorder)

	mux.HandleFunc("POST /api/pools/{id}/rules", a.handleCreateRule)
	mux.HandleFunc("GET /api/pools/{id}/rules", a.handleListRules)
	mux.HandleFunc("GET /api/pools/{id}/payouts", a.handleListPayouts)
	mux.HandleFunc("GET /api/pools/{id}/statement", a.handleStatement)

	mux.HandleFunc("POST /api/transfers", a.handleTransfer)
}

func poolIDFromPath(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue("id"))
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var (
		bidTooLow    *engine.BidTooLowError
		invalidState *engine.InvalidStateError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &bidTooLow),
		errors.Is(err, engine.ErrItemNotActive),
		errors.Is(err, engine.ErrNoActiveItem),
		errors.Is(err, engine.ErrAuctionPaused):
		status = http.StatusConflict
	case errors.As(err, &invalidState):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrInsufficientBudget),
		errors.Is(err, pool.ErrBudgetExceeded):
		status = http.StatusPaymentRequired
	case errors.Is(err, engine.ErrNotCommissioner):
		status = http.StatusForbidden
	case errors.Is(err, market.ErrInsufficientStake):
		status = http.StatusConflict
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// snapshot replies with the current auction state after a successful command.
func (a *api) snapshot(w http.ResponseWriter, r *http.Request, poolID uuid.UUID) {
	state, err := a.services.Engine.Snapshot(r.Context(), poolID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *api) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req pool.CreatePoolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	p, err := a.services.Pools.CreatePool(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *api) handleGetPool(w http.ResponseWriter, r *http.Request) {
	poolID, err := poolIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	p, err := a.services.Pools.GetPool(r.Context(), poolID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) handleJoinPool(w http.ResponseWriter, r *http.Request) {
	poolID, err := poolIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	var req pool.AddMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.PoolID = poolID
	member, err := a.services.Pools.JoinPool(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (a *api) handleListMembers(w http.ResponseWriter, r *http.Request) {
	poolID, err := poolIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	members, err := a.services.Pools.ListMembers(r.Context(), poolID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (a *api) handleSeedItems(w http.ResponseWriter, r *http.Request) {
	poolID, err := poolIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	var req struct {
		Items []item.CreateItemRequest `json:"items"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	for i := range req.Items {
		req.Items[i].PoolID = poolID
	}
	if err := a.services.Items.CreateItemsBatch(r.Context(), req.Items); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"created": len(req.Items)})
}

func (a *api) handleOpenPool(w http.ResponseWriter, r *http.Request) {
	poolID, err := poolIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	p, err := a.services.Pools.UpdatePoolStatus(r.Context(), poolID, models.PoolStatusOpen)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type actorRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Reason string    `json:"reason,omitempty"`
}

func (a *api) handleStart(w http.ResponseWriter, r *http.Request) {
	poolID, err := poolIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	var req actorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if _, err := a.services.Engine.StartAuction(r.Context(), poolID, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	a.snapshot(w, r, poolID)
}

func (a *api) handleBid(w http.ResponseWriter, r *http.Request) {
	poolID, err := poolIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	var req struct {
		UserID uuid.UUID       `json:"user_id"`
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if _, err := a.services.Engine.PlaceBid(r.Context(), poolID, req.UserID, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	a.snapshot(w, r, poolID)
}

func (a *api) handlePause(w http.ResponseWriter, r *http.Request) {
	poolID, err := poolIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	var req actorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := a.services.Engine.PauseAuction(r.Context(), poolID, req.UserID, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	a.snapshot(w, r, poolID)
}

func (a *api) handleResume(w http.ResponseWriter, r *http.Request) {
	poolID, err := poolIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	var req actorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if _, err := a.services.Engine.ResumeAuction(r.Context(), poolID, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	a.snapshot(w, r, poolID)
}

func (a *api) handleSellNow(w http.ResponseWriter, r *http.Request) {
	poolID, err := poolIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	var req actorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if _, err := a.services.Engine.SellNow(r.Context(), poolID, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	a.snapshot(w, r, poolID)
}

func (a *api) handleReorder(w http.ResponseWriter, r *http.Request) {
	poolID, err := poolIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	var req struct {
		UserID  uuid.UUID   `json:"user_id"`
		ItemIDs []uuid.UUID `json:"item_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := a.services.Engine.ReorderQueue(r.Context(), poolID, req.UserID, req.ItemIDs); err != nil {
		writeError(w, err)
		return
	}
	a.snapshot(w, r, poolID)
}

func (a *api) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	poolID, err := poolIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	var req payout.CreateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.PoolID = poolID
	rule, err := a.services.Payouts.CreateRule(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (a *api) handleListRules(w http.ResponseWriter, r *http.Request) {
	poolID, err := poolIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	rules, err := a.services.Payouts.ListRules(r.Context(), poolID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (a *api) handleListPayouts(w http.ResponseWriter, r *http.Request) {
	poolID, err := poolIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	if userIDStr := r.URL.Query().Get("user_id"); userIDStr != "" {
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
			return
		}
		payouts, err := a.services.Payouts.ListUserPayouts(r.Context(), poolID, userID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payouts)
		return
	}
	payouts, err := a.services.Payouts.ListPoolPayouts(r.Context(), poolID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payouts)
}

func (a *api) handleStatement(w http.ResponseWriter, r *http.Request) {
	poolID, err := poolIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
		return
	}
	txns, err := a.services.Ledger.GetStatement(r.Context(), poolID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txns)
}

func (a *api) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req market.TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := a.services.Market.Transfer(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}
