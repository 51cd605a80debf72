/*
handlers.go - HTTP API handlers for the society dues engine

PURPOSE:
  Exposes members, the payment ledger and the dues calculator via REST
  API. Handles HTTP request/response, JSON serialization, and delegates to
  the maintenance package.

ENDPOINTS:
  Members:
    GET    /api/members                   List all members
    POST   /api/members                   Create member
    GET    /api/members/{id}              Get member details
    POST   /api/members/{id}/ban          Exclude from dues
    POST   /api/members/{id}/unban        Reinstate
    GET    /api/members/{id}/payments     Payment history + collected total
    GET    /api/members/{id}/coverage     Gaps, obligation start, covered-through

  Categories:
    GET    /api/categories                List payment categories
    POST   /api/categories                Create category

  Payments:
    POST   /api/payments                  Record a payment
    DELETE /api/payments/{id}             Remove a mistaken entry

  Dues:
    GET    /api/dashboard/dues            Paid vs overdue headline
    GET    /api/dues                      Full calculator output
    GET    /api/dues/export.csv           Members with dues as CSV

  Admin:
    GET    /api/admin/scans               Scan history
    POST   /api/admin/scans               Run a scan now

  All dues endpoints accept ?as_of=YYYY-MM-DD (default: today in the
  society timezone).

ERROR HANDLING:
  Errors are returned as JSON {"error", "details"} with:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate idempotency key)
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The portal sits behind the society's reverse proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/society/dues-engine/factory"
	"github.com/society/dues-engine/generic"
	"github.com/society/dues-engine/lib/sl"
	"github.com/society/dues-engine/maintenance"
	"github.com/society/dues-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Dashboard *maintenance.Dashboard
	Payments  *factory.PaymentFactory
	Scheduler *DueScanScheduler
	Log       *slog.Logger

	validate *validator.Validate

	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a handler over the store. The dashboard computes the
// maintenance category; callers adjust Dashboard and Scheduler as needed.
func NewHandler(store *sqlite.Store, logger *slog.Logger) *Handler {
	dash := maintenance.NewDashboard(store, logger)
	return &Handler{
		Store:     store,
		Dashboard: dash,
		Payments:  factory.NewPaymentFactory(),
		Scheduler: NewDueScanScheduler(store, dash, logger),
		Log:       logger,
		validate:  validator.New(),
	}
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns all members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	log := h.opLog(r, "api.ListMembers")

	members, err := h.Store.ListMembers(r.Context())
	if err != nil {
		h.writeServiceError(w, r, log, "Failed to list members", err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, r, http.StatusOK, dtos)
}

// CreateMember creates or updates a member.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	log := h.opLog(r, "api.CreateMember")

	var req CreateMemberRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	m := sqlite.Member{
		ID:          strings.TrimSpace(req.ID),
		Name:        req.Name,
		HouseNumber: req.HouseNumber,
		Email:       req.Email,
		Phone:       req.Phone,
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	if err := h.Store.SaveMember(r.Context(), m); err != nil {
		h.writeServiceError(w, r, log, "Failed to create member", err)
		return
	}

	saved, err := h.Store.GetMember(r.Context(), m.ID)
	if err != nil || saved == nil {
		h.writeServiceError(w, r, log, "Failed to load member", err)
		return
	}

	log.Info("member saved", slog.String("member_id", m.ID))
	writeJSON(w, r, http.StatusCreated, toMemberDTO(*saved))
}

// GetMember returns one member.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	log := h.opLog(r, "api.GetMember")

	m, ok := h.loadMember(w, r, log)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, toMemberDTO(*m))
}

// BanMember excludes a member from the due/paid split.
func (h *Handler) BanMember(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, true)
}

// UnbanMember reinstates a member.
func (h *Handler) UnbanMember(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, false)
}

func (h *Handler) setBanned(w http.ResponseWriter, r *http.Request, banned bool) {
	log := h.opLog(r, "api.setBanned")
	id := chi.URLParam(r, "id")

	if err := h.Store.SetBanned(r.Context(), id, banned); err != nil {
		h.writeServiceError(w, r, log, "Failed to update member", err)
		return
	}

	m, ok := h.loadMember(w, r, log)
	if !ok {
		return
	}
	log.Info("member ban updated", slog.String("member_id", id), slog.Bool("banned", banned))
	writeJSON(w, r, http.StatusOK, toMemberDTO(*m))
}

// GetMemberPayments returns the member's payment history with the total
// collected. ?category_id= filters; default is every category.
func (h *Handler) GetMemberPayments(w http.ResponseWriter, r *http.Request) {
	log := h.opLog(r, "api.GetMemberPayments")

	m, ok := h.loadMember(w, r, log)
	if !ok {
		return
	}

	var categoryID int64
	if s := r.URL.Query().Get("category_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "Invalid category_id", err)
			return
		}
		categoryID = id
	}

	payments, err := h.Store.ListPaymentsByMember(r.Context(), m.ID, categoryID)
	if err != nil {
		h.writeServiceError(w, r, log, "Failed to list payments", err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(h.Payments, p)
	}
	writeJSON(w, r, http.StatusOK, MemberPaymentsDTO{
		MemberID:       m.ID,
		Payments:       dtos,
		TotalCollected: maintenance.TotalCollected(payments).StringFixed(2),
	})
}

// GetMemberCoverage returns gap detail for one member.
func (h *Handler) GetMemberCoverage(w http.ResponseWriter, r *http.Request) {
	log := h.opLog(r, "api.GetMemberCoverage")

	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}

	id := maintenance.UserID(chi.URLParam(r, "id"))
	ms, err := h.Dashboard.MemberStatus(r.Context(), id, asOf)
	if err != nil {
		h.writeServiceError(w, r, log, "Failed to compute coverage", err)
		return
	}
	writeJSON(w, r, http.StatusOK, toMemberStatusDTO(ms))
}

func (h *Handler) loadMember(w http.ResponseWriter, r *http.Request, log *slog.Logger) (*sqlite.Member, bool) {
	id := chi.URLParam(r, "id")
	m, err := h.Store.GetMember(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, log, "Failed to get member", err)
		return nil, false
	}
	if m == nil {
		writeError(w, r, http.StatusNotFound, "Member not found", fmt.Errorf("%w: %s", generic.ErrMemberNotFound, id))
		return nil, false
	}
	return m, true
}

// =============================================================================
// CATEGORY HANDLERS
// =============================================================================

// ListCategories returns all payment categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	log := h.opLog(r, "api.ListCategories")

	cats, err := h.Store.ListCategories(r.Context())
	if err != nil {
		h.writeServiceError(w, r, log, "Failed to list categories", err)
		return
	}
	dtos := make([]CategoryDTO, len(cats))
	for i, c := range cats {
		dtos[i] = toCategoryDTO(c)
	}
	writeJSON(w, r, http.StatusOK, dtos)
}

// CreateCategory creates a payment category.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	log := h.opLog(r, "api.CreateCategory")

	var req CreateCategoryRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	c, err := h.Store.SaveCategory(r.Context(), maintenance.Category{Name: req.Name, Recurring: req.Recurring})
	if err != nil {
		h.writeServiceError(w, r, log, "Failed to create category", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toCategoryDTO(c))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// CreatePayment records a payment in the ledger.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	log := h.opLog(r, "api.CreatePayment")

	var req factory.PaymentJSON
	if !h.decode(w, r, log, &req) {
		return
	}

	p, err := h.Payments.Build(req)
	if err != nil {
		h.writeServiceError(w, r, log, "Invalid payment", err)
		return
	}

	if member, err := h.Store.GetMember(r.Context(), string(p.UserID)); err != nil {
		h.writeServiceError(w, r, log, "Failed to get member", err)
		return
	} else if member == nil {
		writeError(w, r, http.StatusNotFound, "Member not found", fmt.Errorf("%w: %s", generic.ErrMemberNotFound, p.UserID))
		return
	}
	if _, err := h.Store.GetCategory(r.Context(), p.CategoryID); err != nil {
		h.writeServiceError(w, r, log, "Unknown category", err)
		return
	}

	if err := h.Store.SavePayment(r.Context(), p); err != nil {
		h.writeServiceError(w, r, log, "Failed to save payment", err)
		return
	}

	saved, err := h.Store.GetPayment(r.Context(), p.ID)
	if err != nil {
		h.writeServiceError(w, r, log, "Failed to load payment", err)
		return
	}

	log.Info("payment recorded",
		slog.String("payment_id", p.ID),
		slog.String("member_id", string(p.UserID)),
		slog.String("amount", p.Amount.String()),
	)
	writeJSON(w, r, http.StatusCreated, toPaymentDTO(h.Payments, saved))
}

// DeletePayment removes a payment entered by mistake.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	log := h.opLog(r, "api.DeletePayment")
	id := chi.URLParam(r, "id")

	if err := h.Store.DeletePayment(r.Context(), id); err != nil {
		h.writeServiceError(w, r, log, "Failed to delete payment", err)
		return
	}
	log.Info("payment deleted", slog.String("payment_id", id))
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// DUES HANDLERS
// =============================================================================

// GetDashboardDues returns the paid/overdue headline. Never fails: on error
// the summary is degraded to zeros.
func (h *Handler) GetDashboardDues(w http.ResponseWriter, r *http.Request) {
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, toSummaryDTO(h.Dashboard.Summary(r.Context(), asOf)))
}

// GetDues returns the full calculator output for active members.
func (h *Handler) GetDues(w http.ResponseWriter, r *http.Request) {
	log := h.opLog(r, "api.GetDues")

	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}

	res, _, err := h.Dashboard.Dues(r.Context(), asOf)
	if err != nil {
		h.writeServiceError(w, r, log, "Failed to compute dues", err)
		return
	}
	writeJSON(w, r, http.StatusOK, toDueResultDTO(res))
}

var csvHeader = []string{"user_id", "name", "house_number", "obligation_start", "covered_through", "gap_count", "first_gap"}

// ExportDuesCSV streams members with dues as CSV for the committee.
func (h *Handler) ExportDuesCSV(w http.ResponseWriter, r *http.Request) {
	log := h.opLog(r, "api.ExportDuesCSV")

	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}

	res, _, err := h.Dashboard.Dues(r.Context(), asOf)
	if err != nil {
		h.writeServiceError(w, r, log, "Failed to compute dues", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="dues-%s.csv"`, res.ReferenceDate))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)
	for _, m := range res.UsersWithDue {
		ms, _ := res.Status(m.UserID)
		row := []string{
			string(m.UserID),
			m.UserName,
			m.HouseNumber,
			dateOrEmpty(ms.ObligationStart),
			dateOrEmpty(ms.CoveredThrough),
			strconv.Itoa(len(ms.Gaps)),
			"",
		}
		if len(ms.Gaps) > 0 {
			row[6] = ms.Gaps[0].String()
		}
		_ = cw.Write(row)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Error("failed to write csv", sl.Err(err))
	}
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ListScans returns recent scan runs. ?limit= defaults to 50.
func (h *Handler) ListScans(w http.ResponseWriter, r *http.Request) {
	log := h.opLog(r, "api.ListScans")

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListDueScanRuns(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, log, "Failed to list scans", err)
		return
	}
	dtos := make([]DueScanRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toDueScanRunDTO(run)
	}
	writeJSON(w, r, http.StatusOK, dtos)
}

// TriggerScan runs a dues scan immediately.
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	log := h.opLog(r, "api.TriggerScan")

	run, err := h.Scheduler.RunOnce(r.Context())
	if err != nil {
		h.writeServiceError(w, r, log, "Dues scan failed", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toDueScanRunDTO(run))
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	log := h.opLog(r, "api.ResetDatabase")

	if err := h.Store.Reset(r.Context()); err != nil {
		h.writeServiceError(w, r, log, "Failed to reset database", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	log.Warn("database reset")
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) logger() *slog.Logger {
	if h.Log == nil {
		return slog.Default()
	}
	return h.Log
}

func (h *Handler) opLog(r *http.Request, op string) *slog.Logger {
	return h.logger().With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		log.Warn("failed to decode request", sl.Err(err))
		writeError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeError(w, r, http.StatusBadRequest, "Validation failed", errors.New(validationMessage(verrs)))
			return false
		}
		writeError(w, r, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func validationMessage(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("field %s must be an email address", err.Field()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("field %s is too long", err.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}
	return strings.Join(msgs, ", ")
}

func parseAsOf(w http.ResponseWriter, r *http.Request) (generic.Date, bool) {
	s := r.URL.Query().Get("as_of")
	if s == "" {
		return generic.Date{}, true
	}
	d, err := generic.ParseDate(s)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid as_of", fmt.Errorf("%w: %v", generic.ErrInvalidDate, err))
		return generic.Date{}, false
	}
	return d, true
}

func dateOrEmpty(d *generic.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// writeServiceError maps domain errors to HTTP statuses and logs server
// errors.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(message, sl.Err(err))
	} else {
		log.Info(message, sl.Err(err))
	}
	writeError(w, r, status, message, err)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, r, status, resp)
}
