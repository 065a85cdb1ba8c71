package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	listingapp "github.com/ardkyer/rion-reservation/internal/listing/application"
	listing "github.com/ardkyer/rion-reservation/internal/listing/domain"
	"github.com/ardkyer/rion-reservation/internal/reservation/application"
	"github.com/ardkyer/rion-reservation/internal/reservation/domain"
	"github.com/ardkyer/rion-reservation/pkg/idempotency"
)

// Handler is the thin wiring surface over the engine. The caller identity
// arrives pre-authenticated in the X-User-ID header; authentication itself
// lives upstream.
type Handler struct {
	log          *slog.Logger
	reservations *application.Service
	listings     *listingapp.Service
	idem         *idempotency.Store
	tracer       trace.Tracer
}

func NewHandler(log *slog.Logger, reservations *application.Service, listings *listingapp.Service, idem *idempotency.Store) *Handler {
	return &Handler{
		log:          log,
		reservations: reservations,
		listings:     listings,
		idem:         idem,
		tracer:       otel.Tracer("reservation-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/listings", h.createListing)
	r.Get("/listings/{id}", h.getListing)
	r.Delete("/listings/{id}", h.deleteListing)
	r.Get("/listings/{id}/units", h.listUnits)
	r.Get("/listings/{id}/reservations", h.listingReservations)
	r.Patch("/units/{id}", h.setUnitStatus)
	r.Post("/reservations", h.reserve)
	r.Post("/reservations/{id}/cancel", h.cancel)
	r.Patch("/reservations/{id}", h.updateStatus)
	r.Get("/reservations/{id}", h.getReservation)
	r.Get("/users/{id}/reservations", h.userReservations)
	return r
}

type createListingReq struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	ImageURL      string `json:"image_url"`
	TotalQuantity int    `json:"total_quantity"`
}

func (h *Handler) createListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req createListingReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	l, err := h.listings.InitListing(r.Context(), userID, req.Title, req.Description, req.ImageURL, req.TotalQuantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *Handler) getListing(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	l, err := h.listings.GetListing(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) deleteListing(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	if err := h.listings.DeleteListing(r.Context(), id, userID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUnits(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var (
		units []listing.Unit
		err   error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		units, err = h.listings.ListUnitsByStatus(r.Context(), id, listing.UnitStatus(status))
	} else {
		units, err = h.listings.ListUnits(r.Context(), id)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

type setUnitStatusReq struct {
	Status string `json:"status"`
}

func (h *Handler) setUnitStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req setUnitStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	u, err := h.listings.SetUnitStatus(r.Context(), id, listing.UnitStatus(req.Status), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type reserveReq struct {
	ListingID   uuid.UUID  `json:"listing_id"`
	Quantity    int        `json:"quantity"`
	Contact     string     `json:"contact"`
	Note        string     `json:"note"`
	RentalStart *time.Time `json:"rental_start,omitempty"`
	RentalEnd   *time.Time `json:"rental_end,omitempty"`
}

type reserveResp struct {
	Reservation    domain.Reservation `json:"reservation"`
	AvailableCount int                `json:"available_count"`
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Reserve")
	defer span.End()

	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req reserveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if key := r.Header.Get("Idempotency-Key"); key != "" && h.idem != nil {
		seen, err := h.idem.Seen(ctx, h.idem.RequestKey("reserve", key))
		if err != nil {
			h.log.Error("idempotency check failed", "err", err)
		} else if seen {
			http.Error(w, "duplicate request", http.StatusConflict)
			return
		}
	}

	res, available, err := h.reservations.Reserve(ctx, req.ListingID, userID, req.Quantity, domain.Options{
		Contact:     req.Contact,
		Note:        req.Note,
		RentalStart: req.RentalStart,
		RentalEnd:   req.RentalEnd,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reserveResp{Reservation: res, AvailableCount: available})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelReservation")
	defer span.End()

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	res, err := h.reservations.Cancel(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type updateStatusReq struct {
	Status string `json:"status"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	res, err := h.reservations.UpdateStatus(r.Context(), id, domain.Status(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) getReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	res, err := h.reservations.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) userReservations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	out, err := h.reservations.ListByUser(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listingReservations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	out, err := h.reservations.ListByListing(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		http.Error(w, "missing or invalid X-User-ID", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var insufficient *listing.InsufficientStockError
	switch {
	case errors.Is(err, listing.ErrNotFound),
		errors.Is(err, listing.ErrUnitNotFound),
		errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errBody(err))
	case errors.Is(err, listing.ErrForbidden),
		errors.Is(err, domain.ErrSelfReservation):
		writeJSON(w, http.StatusForbidden, errBody(err))
	case errors.Is(err, domain.ErrDuplicateReservation),
		errors.Is(err, listing.ErrAlreadyInitialized),
		errors.Is(err, listing.ErrActiveReservations):
		writeJSON(w, http.StatusConflict, errBody(err))
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     err.Error(),
			"available": insufficient.Available,
			"requested": insufficient.Requested,
		})
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidState):
		writeJSON(w, http.StatusUnprocessableEntity, errBody(err))
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidRentalPeriod),
		errors.Is(err, listing.ErrInvalidTotal),
		errors.Is(err, listing.ErrInvalidUnitStatus):
		writeJSON(w, http.StatusBadRequest, errBody(err))
	case errors.Is(err, listing.ErrConflict):
		writeJSON(w, http.StatusServiceUnavailable, errBody(err))
	default:
		h.log.Error("internal error", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func errBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
