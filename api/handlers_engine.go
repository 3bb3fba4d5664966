package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/northbeam/tickengine/models"
)

// instanceKeyFromRequest builds an InstanceKey from the symbol/strategy
// path params and exchange/frame/backtest query params shared by every
// engine route.
func instanceKeyFromRequest(r *http.Request) models.InstanceKey {
	q := r.URL.Query()
	return models.InstanceKey{
		Symbol:       chi.URLParam(r, "symbol"),
		StrategyName: chi.URLParam(r, "strategy"),
		ExchangeName: q.Get("exchange"),
		FrameName:    q.Get("frame"),
		Backtest:     q.Get("backtest") == "true",
	}
}

// RunInstanceHandler advances one instance by a single live tick.
func (h *Handler) RunInstanceHandler(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "Controller not available")
		return
	}

	key := instanceKeyFromRequest(r)
	event, err := h.controller.Run(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// StopInstanceHandler sets an instance's stop flag.
func (h *Handler) StopInstanceHandler(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "Controller not available")
		return
	}

	if err := h.controller.Stop(instanceKeyFromRequest(r)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// cancelInstanceRequest is the payload CancelInstanceHandler decodes.
type cancelInstanceRequest struct {
	CancelID string `json:"cancel_id"`
}

// CancelInstanceHandler requests cancellation of an instance's scheduled signal.
func (h *Handler) CancelInstanceHandler(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "Controller not available")
		return
	}

	var req cancelInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.controller.Cancel(instanceKeyFromRequest(r), req.CancelID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// partialRequest is the shared payload for partial-profit/loss requests.
type partialRequest struct {
	Percent float64 `json:"percent"`
	Price   float64 `json:"price"`
}

// PartialProfitHandler applies a profit-taking partial close.
func (h *Handler) PartialProfitHandler(w http.ResponseWriter, r *http.Request) {
	h.handlePartial(w, r, h.controller.PartialProfit)
}

// PartialLossHandler applies a loss-taking partial close.
func (h *Handler) PartialLossHandler(w http.ResponseWriter, r *http.Request) {
	h.handlePartial(w, r, h.controller.PartialLoss)
}

func (h *Handler) handlePartial(w http.ResponseWriter, r *http.Request, apply func(models.InstanceKey, float64, float64) (bool, error)) {
	if h.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "Controller not available")
		return
	}

	var req partialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	applied, err := apply(instanceKeyFromRequest(r), req.Percent, req.Price)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"applied": applied})
}

// trailingStopRequest is the payload TrailingStopHandler decodes.
type trailingStopRequest struct {
	PercentShift float64 `json:"percent_shift"`
}

// TrailingStopHandler recomputes an instance's trailing stop.
func (h *Handler) TrailingStopHandler(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "Controller not available")
		return
	}

	var req trailingStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	applied, err := h.controller.TrailingStop(instanceKeyFromRequest(r), req.PercentShift)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"applied": applied})
}

// breakevenRequest is the payload BreakevenHandler decodes.
type breakevenRequest struct {
	CurrentPrice float64 `json:"current_price"`
}

// BreakevenHandler moves an instance's stop loss to breakeven if eligible.
func (h *Handler) BreakevenHandler(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "Controller not available")
		return
	}

	var req breakevenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	applied, err := h.controller.Breakeven(instanceKeyFromRequest(r), req.CurrentPrice)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"applied": applied})
}

// GetInstanceDataHandler returns an instance's status and current signal.
func (h *Handler) GetInstanceDataHandler(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "Controller not available")
		return
	}

	writeJSON(w, http.StatusOK, h.controller.GetData(instanceKeyFromRequest(r)))
}

// GetInstanceReportHandler returns an instance's closed/cancelled history report.
func (h *Handler) GetInstanceReportHandler(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "Controller not available")
		return
	}

	writeJSON(w, http.StatusOK, h.controller.GetReport(instanceKeyFromRequest(r)))
}

// DumpInstanceHandler flushes an instance's recorded event history to disk.
func (h *Handler) DumpInstanceHandler(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "Controller not available")
		return
	}

	if err := h.controller.Dump(instanceKeyFromRequest(r)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "dumped"})
}

// ListInstancesHandler returns {key: status} for every known instance.
func (h *Handler) ListInstancesHandler(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "Controller not available")
		return
	}

	writeJSON(w, http.StatusOK, h.controller.List())
}
