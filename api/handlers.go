/*
handlers.go - HTTP API handlers for the reservation engine

PURPOSE:
  Exposes units, plan templates, reservations and payments over REST.
  Handles HTTP request/response, JSON serialization, and delegates to
  the sales services.

ENDPOINTS:
  Units:
    POST   /api/units                       Create unit
    GET    /api/units                       List units (?status=)
    GET    /api/units/{id}                  Get unit
    PUT    /api/units/{id}/status           Set available/inactive
    GET    /api/units/{id}/plans            List plan templates
    POST   /api/units/{id}/plans            Create plan template
    POST   /api/units/{id}/plans/quote      Quote installment terms

  Reservations:
    POST   /api/reservations                Create reservation
    GET    /api/reservations/{id}           Reservation + summary
    GET    /api/reservations/{id}/payments  Payment schedule
    POST   /api/reservations/{id}/convert   Convert to sale
    POST   /api/reservations/{id}/cancel    Cancel with reason

  Payments:
    POST   /api/payments/{id}/pay           Mark payment paid

  Admin:
    POST   /api/admin/sweeps/overdue        Mark overdue payments
    POST   /api/admin/sweeps/expiry         Cancel expired reservations

ACTOR:
  Mutating routes require the X-Actor-ID header (a positive user id).
  Identity is not verified here; an upstream gateway owns authentication.

ERROR HANDLING:
  Errors map from sales.Kind:
  - 400: validation, malformed input
  - 401: missing or invalid actor
  - 404: not found
  - 409: conflict, invalid transition
  - 422: guard violation
  - 500: internal errors (details are logged, not returned)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - validate.go: Request binding
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/warp/reservation-engine/money"
	"github.com/warp/reservation-engine/sales"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Reservations *sales.ReservationService
	Ledger       *sales.PaymentLedger
	Catalog      *sales.CatalogService
	Health       Pinger
	Log          logrus.FieldLogger
	Now          func() time.Time
}

// NewHandler creates a new handler over the given services.
func NewHandler(reservations *sales.ReservationService, catalog *sales.CatalogService, health Pinger, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Reservations: reservations,
		Ledger:       reservations.Ledger(),
		Catalog:      catalog,
		Health:       health,
		Log:          log.WithField("component", "api"),
		Now:          time.Now,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// UNIT ENDPOINTS
// =============================================================================

func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var req CreateUnitRequest
	if err := bindAndValidate(r, &req, false); err != nil {
		h.writeBindError(w, err)
		return
	}

	unit := &sales.Unit{
		Project:    req.Project,
		Block:      req.Block,
		Floor:      req.Floor,
		UnitNumber: req.UnitNumber,
		UnitType:   req.UnitType,
		Status:     sales.UnitStatus(req.Status),
		CashPrice:  req.CashPrice,
	}
	if req.InstallmentPrice != nil {
		unit.InstallmentPrice.Decimal = *req.InstallmentPrice
		unit.InstallmentPrice.Valid = true
	}

	created, err := h.Catalog.CreateUnit(r.Context(), unit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitDTO(created))
}

func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	status := sales.UnitStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status filter", nil)
		return
	}

	units, err := h.Catalog.ListUnits(r.Context(), status)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dtos := make([]UnitDTO, len(units))
	for i := range units {
		dtos[i] = toUnitDTO(&units[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	unit, err := h.Catalog.GetUnit(r.Context(), sales.UnitID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitDTO(unit))
}

func (h *Handler) SetUnitStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req SetUnitStatusRequest
	if err := bindAndValidate(r, &req, false); err != nil {
		h.writeBindError(w, err)
		return
	}

	unit, err := h.Catalog.SetUnitStatus(r.Context(), sales.UnitID(id), sales.UnitStatus(req.Status), actorFrom(r))
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{
		Success: true,
		Message: "Unit status set to " + string(unit.Status),
		Data:    toUnitDTO(unit),
	})
}

// =============================================================================
// PLAN TEMPLATE ENDPOINTS
// =============================================================================

func (h *Handler) ListPlanTemplates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	plans, err := h.Catalog.ListPlanTemplates(r.Context(), sales.UnitID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dtos := make([]PlanTemplateDTO, len(plans))
	for i := range plans {
		dtos[i] = toPlanTemplateDTO(&plans[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePlanTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CreatePlanTemplateRequest
	if err := bindAndValidate(r, &req, false); err != nil {
		h.writeBindError(w, err)
		return
	}

	spec := sales.PlanTemplateSpec{Name: req.Name, Type: money.PlanType(req.PlanType)}
	if spec.Type == money.PlanInstallment && req.InstallmentCount != nil {
		spec.Terms = &sales.InstallmentTerms{
			DownPaymentPercent: valueOrZero(req.DownPaymentPercent),
			InstallmentCount:   *req.InstallmentCount,
			InterestRate:       valueOrZero(req.InterestRate),
		}
	}

	tmpl, err := h.Catalog.CreatePlanTemplate(r.Context(), sales.UnitID(id), spec)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanTemplateDTO(tmpl))
}

func (h *Handler) QuotePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req QuotePlanRequest
	if err := bindAndValidate(r, &req, false); err != nil {
		h.writeBindError(w, err)
		return
	}

	quote, err := h.Catalog.QuotePlan(r.Context(), sales.UnitID(id), sales.InstallmentTerms{
		DownPaymentPercent: req.DownPaymentPercent,
		InstallmentCount:   req.InstallmentCount,
		InterestRate:       req.InterestRate,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// =============================================================================
// RESERVATION ENDPOINTS
// =============================================================================

func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if err := bindAndValidate(r, &req, false); err != nil {
		h.writeBindError(w, err)
		return
	}
	domainReq, err := req.toDomain()
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}

	res, err := h.Reservations.CreateReservation(r.Context(), domainReq, actorFrom(r))
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ActionResponse{
		Success: true,
		Message: "Reservation created",
		Data:    toReservationDTO(res),
	})
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	summary, err := h.Reservations.Summary(r.Context(), sales.ReservationID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReservationDetailDTO{
		Reservation: toReservationDTO(summary.Reservation),
		Summary:     toSummaryDTO(summary),
	})
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	payments, err := h.Ledger.ListPayments(r.Context(), sales.ReservationID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

func (h *Handler) ConvertReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.Reservations.ConvertToSale(r.Context(), sales.ReservationID(id), actorFrom(r))
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{
		Success: true,
		Message: "Reservation converted to sale",
		Data:    toReservationDTO(res),
	})
}

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CancelReservationRequest
	if err := bindAndValidate(r, &req, false); err != nil {
		h.writeBindError(w, err)
		return
	}

	res, err := h.Reservations.Cancel(r.Context(), sales.ReservationID(id), req.Reason, actorFrom(r))
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{
		Success: true,
		Message: "Reservation cancelled",
		Data:    toReservationDTO(res),
	})
}

// =============================================================================
// PAYMENT ENDPOINTS
// =============================================================================

func (h *Handler) MarkPaymentPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req MarkPaidRequest
	if err := bindAndValidate(r, &req, true); err != nil {
		h.writeBindError(w, err)
		return
	}

	p, err := h.Ledger.MarkPaid(r.Context(), sales.PaymentID(id), sales.MarkPaidInput{
		PaymentDate: req.PaymentDate,
		Method:      sales.PaymentMethod(req.PaymentMethod),
		ReceiptRef:  req.ReceiptNumber,
	}, actorFrom(r))
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{
		Success: true,
		Message: "Payment marked as paid",
		Data:    toPaymentDTO(p),
	})
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

func (h *Handler) SweepOverdue(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.sweepDate(w, r)
	if !ok {
		return
	}
	marked, err := h.Ledger.SweepOverdue(r.Context(), asOf)
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{
		Success: true,
		Message: "Overdue sweep completed",
		Data:    OverdueSweepDTO{AsOf: asOf.Format(dateLayout), Marked: marked},
	})
}

func (h *Handler) SweepExpiry(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.sweepDate(w, r)
	if !ok {
		return
	}
	result, err := h.Reservations.ExpireReservations(r.Context(), asOf, actorFrom(r))
	if err != nil {
		h.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{
		Success: true,
		Message: "Expiry sweep completed",
		Data:    ExpirySweepDTO{AsOf: asOf.Format(dateLayout), ExpiryResult: result},
	})
}

func (h *Handler) sweepDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	var req SweepRequest
	if err := bindAndValidate(r, &req, true); err != nil {
		h.writeBindError(w, err)
		return time.Time{}, false
	}
	if req.AsOf == "" {
		return sales.DateOf(h.Now()), true
	}
	// Format already checked by the datetime tag.
	asOf, _ := time.Parse(dateLayout, req.AsOf)
	return asOf, true
}

// =============================================================================
// ACTOR
// =============================================================================

// ActorHeader carries the id of the user performing a mutation.
const ActorHeader = "X-Actor-ID"

type actorKey struct{}

// RequireActor rejects requests without a valid X-Actor-ID header and
// stores the actor on the request context.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(ActorHeader)
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			writeError(w, http.StatusUnauthorized, "Missing or invalid "+ActorHeader+" header", nil)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, sales.UserID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(r *http.Request) sales.UserID {
	if id, ok := r.Context().Value(actorKey{}).(sales.UserID); ok {
		return id
	}
	return sales.SystemActor
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

// statusFor maps an engine error to its HTTP status.
func statusFor(err error) int {
	switch sales.Kind(err) {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict", "invalid_transition":
		return http.StatusConflict
	case "guard_violation":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage is the message shown to callers; internal details stay in logs.
func clientMessage(err error) string {
	var conflict *sales.ConflictError
	var guard *sales.GuardError
	switch {
	case errors.As(err, &conflict):
		return "This unit is no longer available"
	case errors.As(err, &guard):
		return "Cannot proceed: " + guard.Reason
	case sales.IsClientError(err):
		return err.Error()
	default:
		return "Internal error"
	}
}

func (h *Handler) logError(r *http.Request, err error) {
	entry := h.Log.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"path":       r.URL.Path,
		"kind":       sales.Kind(err),
	}).WithError(err)
	if sales.IsClientError(err) {
		entry.Debug("request rejected")
		return
	}
	entry.Error("request failed")
}

// writeDomainError answers read and admin endpoints with an ErrorResponse.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	h.logError(r, err)
	resp := ErrorResponse{Error: clientMessage(err), Kind: sales.Kind(err)}
	var verr *sales.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = map[string]string{verr.Field: verr.Message}
	}
	writeJSON(w, statusFor(err), resp)
}

// writeActionError answers state-changing endpoints with a failed ActionResponse.
func (h *Handler) writeActionError(w http.ResponseWriter, r *http.Request, err error) {
	h.logError(r, err)
	resp := ActionResponse{Success: false, Message: clientMessage(err), Kind: sales.Kind(err)}
	var verr *sales.ValidationError
	if errors.As(err, &verr) {
		resp.Data = map[string]string{verr.Field: verr.Message}
	}
	writeJSON(w, statusFor(err), resp)
}

func (h *Handler) writeBindError(w http.ResponseWriter, err error) {
	var berr *bindError
	if errors.As(err, &berr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  berr.msg,
			Kind:   "validation",
			Fields: berr.fields,
		})
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid request", err)
}

func valueOrZero[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
