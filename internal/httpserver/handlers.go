package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"adpoints/internal/ledger"
	"adpoints/internal/referral"
	"adpoints/internal/reward"
	"adpoints/internal/store"
	"adpoints/internal/withdraw"
)

type registerRequest struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type addCoinsRequest struct {
	UserID string `json:"userId"`
	Amount int64  `json:"amount"`
}

type userActionRequest struct {
	UserID string `json:"userId"`
}

type referralRequest struct {
	UserID     string `json:"userId"`
	ReferrerID string `json:"referrerId"`
}

type withdrawRequest struct {
	UserID            string `json:"userId"`
	Amount            int64  `json:"amount"`
	Method            string `json:"method"`
	DestinationNumber string `json:"destinationNumber"`
}

type decideRequest struct {
	WithdrawalID string `json:"withdrawalId"`
	Action       string `json:"action"`
}

type withdrawalResponse struct {
	ID                string `json:"id"`
	UserID            string `json:"userId"`
	Amount            int64  `json:"amount"`
	Method            string `json:"method"`
	DestinationNumber string `json:"destinationNumber"`
	Status            string `json:"status"`
	CreatedAt         string `json:"createdAt"`
	DecidedAt         string `json:"decidedAt,omitempty"`
}

func toWithdrawalResponse(w store.Withdrawal) withdrawalResponse {
	resp := withdrawalResponse{
		ID:                w.ID,
		UserID:            w.UserID,
		Amount:            w.Amount,
		Method:            w.Method,
		DestinationNumber: w.DestinationNumber,
		Status:            w.Status,
		CreatedAt:         w.CreatedAt.UTC().Format(time.RFC3339),
	}
	if w.DecidedAt != nil {
		resp.DecidedAt = w.DecidedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func decodeJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dest)
}

func (s *Server) serverError(w http.ResponseWriter, what string, err error) {
	s.metrics.Errors.WithLabelValues("http").Inc()
	s.logger.Error(what, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Server error"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid request"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Missing userId"})
		return
	}
	if _, err := s.deps.Ledger.GetOrCreate(r.Context(), req.UserID, req.DisplayName); err != nil {
		s.serverError(w, "register failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeJSON(w, http.StatusOK, map[string]any{"balance": 0})
		return
	}
	balance, err := s.deps.Ledger.Balance(r.Context(), userID)
	if err != nil {
		s.serverError(w, "get balance failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (s *Server) handleAddCoins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req addCoinsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid request"})
		return
	}
	if req.UserID == "" || req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false})
		return
	}
	// Credit creates the user when absent, matching the lazy user model.
	if _, err := s.deps.Ledger.GetOrCreate(r.Context(), req.UserID, ""); err != nil {
		s.serverError(w, "add coins failed", err)
		return
	}
	if _, err := s.deps.Ledger.Credit(r.Context(), req.UserID, req.Amount); err != nil {
		s.serverError(w, "add coins failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleWatchAd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req userActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid request"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Missing userId"})
		return
	}

	res, err := s.deps.Rewards.WatchAd(r.Context(), req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUserNotFound):
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "User not found"})
		case isPrecondition(err):
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": reward.FailureMessage(err)})
		default:
			s.serverError(w, "watch ad failed", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "reward": res.Reward})
}

func (s *Server) handleDailyBonus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req userActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid request"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Missing userId"})
		return
	}

	// The daily bonus is claimable on first contact, so the user record is
	// created lazily before the claim.
	if _, err := s.deps.Ledger.GetOrCreate(r.Context(), req.UserID, ""); err != nil {
		s.serverError(w, "daily bonus failed", err)
		return
	}

	if _, err := s.deps.Rewards.ClaimDaily(r.Context(), req.UserID); err != nil {
		if isPrecondition(err) {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": reward.FailureMessage(err)})
			return
		}
		s.serverError(w, "daily bonus failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleReferral(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req referralRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" || req.ReferrerID == "" {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	err := s.deps.Referrals.Attribute(r.Context(), req.UserID, req.ReferrerID)
	if err != nil {
		// Self and repeat referrals are silent no-ops by contract.
		if errors.Is(err, referral.ErrSelfReferral) || errors.Is(err, store.ErrAlreadyReferred) {
			writeJSON(w, http.StatusOK, map[string]any{})
			return
		}
		s.serverError(w, "referral failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid request"})
		return
	}
	if req.UserID == "" || req.Amount == 0 || req.Method == "" || req.DestinationNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Missing fields"})
		return
	}

	created, err := s.deps.Withdrawals.Request(r.Context(), req.UserID, req.Amount, req.Method, req.DestinationNumber)
	if err != nil {
		if isPrecondition(err) || errors.Is(err, store.ErrUserNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": s.deps.Withdrawals.FailureMessage(err)})
			return
		}
		s.serverError(w, "withdraw request failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "withdrawalId": created.ID})
}

func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// ?id= looks up a single request, whatever its status.
	if id := r.URL.Query().Get("id"); id != "" {
		item, err := s.deps.Withdrawals.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Not found"})
				return
			}
			s.serverError(w, "get withdrawal failed", err)
			return
		}
		writeJSON(w, http.StatusOK, toWithdrawalResponse(*item))
		return
	}

	pending, err := s.deps.Withdrawals.ListPending(r.Context())
	if err != nil {
		s.serverError(w, "list withdrawals failed", err)
		return
	}
	result := make([]withdrawalResponse, 0, len(pending))
	for _, item := range pending {
		result = append(result, toWithdrawalResponse(item))
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDecideWithdrawal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req decideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid request"})
		return
	}
	if req.WithdrawalID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Missing fields"})
		return
	}

	var approve bool
	switch req.Action {
	case withdraw.ActionApprove:
		approve = true
	case withdraw.ActionReject:
		approve = false
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid action"})
		return
	}

	if _, err := s.deps.Withdrawals.Decide(r.Context(), req.WithdrawalID, approve); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Not found"})
		case errors.Is(err, store.ErrAlreadyDecided):
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Already decided"})
		default:
			s.serverError(w, "decide withdrawal failed", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// isPrecondition reports whether err is an expected business-rule rejection
// rather than a server failure.
func isPrecondition(err error) bool {
	var cooldown *ledger.CooldownActiveError
	var claimed *ledger.AlreadyClaimedError
	return errors.As(err, &cooldown) ||
		errors.As(err, &claimed) ||
		errors.Is(err, store.ErrInsufficientBalance) ||
		errors.Is(err, withdraw.ErrInvalidMethod) ||
		errors.Is(err, withdraw.ErrBelowMinimum)
}
