package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/asset-allocation/internal/allocation"
	"github.com/trogers1052/asset-allocation/internal/database"
	"github.com/trogers1052/asset-allocation/internal/models"
	"github.com/trogers1052/asset-allocation/internal/report"
	"github.com/trogers1052/asset-allocation/internal/retention"
)

// Store is the read side of the ledger the API serves. *database.DB implements it.
type Store interface {
	report.SnapshotSource
	Ping(ctx context.Context) error
	GetAsset(ctx context.Context, id int) (*models.Asset, error)
	GetPositionsByDate(ctx context.Context, asOf time.Time) ([]*models.PositionDetail, error)
	GetTemplateDetails(ctx context.Context, templateID int) ([]models.TemplateDetail, error)
	ReplaceTemplateDetails(ctx context.Context, templateID int, details []models.TemplateDetail) error
	TotalsByAllocationClass(ctx context.Context, from, to time.Time) ([]models.DatedTotal, error)
	TotalsByHeldAt(ctx context.Context, from, to time.Time) ([]models.DatedTotal, error)
	CashByHeldAt(ctx context.Context, from, to time.Time) ([]models.DatedTotal, error)
	GetGainHistory(ctx context.Context, date time.Time) ([]*models.GainHistory, error)
}

// Reallocator replaces an asset's allocation on a date. *allocation.Engine implements it.
type Reallocator interface {
	Reallocate(ctx context.Context, assetID int, asOf time.Time, amount decimal.Decimal) (*models.AssetPosition, error)
}

// Deleter clears a date's ledger. *retention.Manager implements it.
type Deleter interface {
	DeleteAssetInfo(ctx context.Context, asOf time.Time) (*retention.Result, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store   Store
	engine  Reallocator
	deleter Deleter
	log     zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(store Store, engine Reallocator, deleter Deleter, log zerolog.Logger) *Handler {
	return &Handler{
		store:   store,
		engine:  engine,
		deleter: deleter,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// GetPositions handles GET /positions/{date}
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	asOf, ok := dateVar(w, r)
	if !ok {
		return
	}

	positions, err := h.store.GetPositionsByDate(r.Context(), asOf)
	if err != nil {
		h.serverError(w, err)
		return
	}
	if positions == nil {
		positions = []*models.PositionDetail{}
	}

	respondJSON(w, http.StatusOK, positions)
}

// DeletePositions handles DELETE /positions/{date}
func (h *Handler) DeletePositions(w http.ResponseWriter, r *http.Request) {
	asOf, ok := dateVar(w, r)
	if !ok {
		return
	}

	res, err := h.deleter.DeleteAssetInfo(r.Context(), asOf)
	if err != nil {
		h.serverError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// Reallocate handles POST /allocations
func (h *Handler) Reallocate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetID  int             `json:"asset_id"`
		AsOfDate string          `json:"as_of_date"`
		Amount   decimal.Decimal `json:"amount"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AssetID <= 0 {
		http.Error(w, "asset_id is required", http.StatusBadRequest)
		return
	}
	asOf, err := models.ParseDate(req.AsOfDate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetAsset(r.Context(), req.AssetID); err != nil {
		h.serverError(w, err)
		return
	}

	position, err := h.engine.Reallocate(r.Context(), req.AssetID, asOf, req.Amount)
	if err != nil {
		var cfgErr *allocation.ConfigurationError
		if errors.As(err, &cfgErr) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.serverError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, position)
}

// GetTemplate handles GET /templates/{id}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	details, err := h.store.GetTemplateDetails(r.Context(), id)
	if err != nil {
		h.serverError(w, err)
		return
	}
	if len(details) == 0 {
		http.Error(w, "template not found", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, details)
}

// ReplaceTemplate handles PUT /templates/{id}. The rules must total 100 percent.
func (h *Handler) ReplaceTemplate(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	var details []models.TemplateDetail
	if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := models.ValidateTemplate(details); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	if err := h.store.ReplaceTemplateDetails(r.Context(), id, details); err != nil {
		h.serverError(w, err)
		return
	}

	h.GetTemplate(w, r)
}

// Compare handles GET /compare?from=&to=
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	from, to, ok := dateRange(w, r)
	if !ok {
		return
	}

	c, err := report.ComparePeriods(r.Context(), h.store, from, to)
	if errors.Is(err, report.ErrNoData) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.serverError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, c)
}

// TotalsByAllocationClass handles GET /totals/allocation?from=&to=
func (h *Handler) TotalsByAllocationClass(w http.ResponseWriter, r *http.Request) {
	h.totals(w, r, h.store.TotalsByAllocationClass)
}

// TotalsByHeldAt handles GET /totals/heldat?from=&to=
func (h *Handler) TotalsByHeldAt(w http.ResponseWriter, r *http.Request) {
	h.totals(w, r, h.store.TotalsByHeldAt)
}

// CashByHeldAt handles GET /totals/cash?from=&to=
func (h *Handler) CashByHeldAt(w http.ResponseWriter, r *http.Request) {
	h.totals(w, r, h.store.CashByHeldAt)
}

func (h *Handler) totals(w http.ResponseWriter, r *http.Request, query func(ctx context.Context, from, to time.Time) ([]models.DatedTotal, error)) {
	from, to, ok := dateRange(w, r)
	if !ok {
		return
	}

	totals, err := query(r.Context(), from, to)
	if err != nil {
		h.serverError(w, err)
		return
	}
	if totals == nil {
		totals = []models.DatedTotal{}
	}

	respondJSON(w, http.StatusOK, totals)
}

// GetGains handles GET /gains/{date}
func (h *Handler) GetGains(w http.ResponseWriter, r *http.Request) {
	date, ok := dateVar(w, r)
	if !ok {
		return
	}

	gains, err := h.store.GetGainHistory(r.Context(), date)
	if err != nil {
		h.serverError(w, err)
		return
	}
	if gains == nil {
		gains = []*models.GainHistory{}
	}

	respondJSON(w, http.StatusOK, gains)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) serverError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.log.Error().Err(err).Msg("Request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func dateVar(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	d, err := models.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return time.Time{}, false
	}
	return d, true
}

func dateRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	from, err := models.ParseDate(q.Get("from"))
	if err != nil {
		http.Error(w, "from: "+err.Error(), http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	to, err := models.ParseDate(q.Get("to"))
	if err != nil {
		http.Error(w, "to: "+err.Error(), http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	if to.Before(from) {
		http.Error(w, "to must not be before from", http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
