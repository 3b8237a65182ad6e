package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/delegate-rewards/referral-payout/internal/services"
	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/delegate-rewards/referral-payout/internal/utils"
	"github.com/shopspring/decimal"
)

type recordResponse struct {
	User       string `json:"user"`
	Address    string `json:"address"`
	Amount     string `json:"amount"`
	StartBlock uint64 `json:"start_block"`
	EndBlock   uint64 `json:"end_block"`
	PoolTotal  string `json:"pool_total"`
}

type userShareResponse struct {
	User     string `json:"user"`
	Baseline string `json:"baseline"`
	Adjusted string `json:"adjusted"`
	Amount   string `json:"amount,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
}

type previewResponse struct {
	StartBlock uint64              `json:"start_block"`
	EndBlock   uint64              `json:"end_block"`
	Snapshots  int                 `json:"snapshots"`
	ZeroWindow bool                `json:"zero_window"`
	Retry      bool                `json:"retry"`
	PoolTotal  string              `json:"pool_total"`
	Total      string              `json:"total"`
	Users      []userShareResponse `json:"users"`
}

func (s *Server) handleResumePoint(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	status, err := s.service.Status(ctx)
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, status)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	limit := defaultRecordsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(ctx, w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = v
	}

	records, err := s.service.Records(ctx, limit)
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, err)
		return
	}

	resp := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, recordResponse{
			User:       rec.User,
			Address:    rec.Address,
			Amount:     rec.Amount.String(),
			StartBlock: rec.StartBlock,
			EndBlock:   rec.EndBlock,
			PoolTotal:  rec.PoolTotal.String(),
		})
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), previewTimeout)
	defer cancel()

	pool, err := decimal.NewFromString(r.URL.Query().Get("pool"))
	if err != nil {
		writeError(ctx, w, http.StatusBadRequest, fmt.Errorf("invalid pool: %w", err))
		return
	}

	var opts services.RunOptions
	if raw := r.URL.Query().Get("end_block"); raw != "" {
		end, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(ctx, w, http.StatusBadRequest, fmt.Errorf("invalid end_block %q", raw))
			return
		}
		opts.EndBlock = &end
	}

	plan, err := s.service.Preview(ctx, pool, opts)
	switch {
	case errors.Is(err, types.ErrSourceUnavailable):
		writeError(ctx, w, http.StatusServiceUnavailable, err)
		return
	case errors.Is(err, types.ErrPendingWindowMismatch):
		writeError(ctx, w, http.StatusConflict, err)
		return
	case err != nil:
		writeError(ctx, w, http.StatusBadRequest, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, newPreviewResponse(plan))
}

func newPreviewResponse(plan *services.Plan) previewResponse {
	resp := previewResponse{
		StartBlock: plan.StartBlock,
		EndBlock:   plan.EndBlock,
		Snapshots:  plan.Snapshots,
		ZeroWindow: plan.ZeroWindow,
		Retry:      plan.Pending != nil,
		PoolTotal:  plan.Batch.PoolTotal.String(),
		Total:      plan.Batch.Total().String(),
	}

	amounts := make(map[string]string, len(plan.Batch.Records))
	for _, rec := range plan.Batch.Records {
		amounts[rec.User] = rec.Amount.String()
	}
	skipped := make(map[string]bool, len(plan.Batch.Skipped))
	for _, sk := range plan.Batch.Skipped {
		skipped[sk.User] = true
	}

	for _, user := range plan.Adjusted.Names() {
		resp.Users = append(resp.Users, userShareResponse{
			User:     user,
			Baseline: utils.DecimalFromLegacyDec(plan.Baseline.Get(user)).String(),
			Adjusted: utils.DecimalFromLegacyDec(plan.Adjusted.Get(user)).String(),
			Amount:   amounts[user],
			Skipped:  skipped[user],
		})
	}
	return resp
}
