/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model (maintenance, store/sqlite) from the external contract
  the society portal depends on.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Members:     MemberDTO, CreateMemberRequest, MemberPaymentsDTO
  Categories:  CategoryDTO, CreateCategoryRequest
  Payments:    PaymentDTO (wraps factory.PaymentJSON)
  Dues:        SummaryDTO, DueResultDTO, MemberStatusDTO, DiagnosticsDTO
  Admin:       DueScanRunDTO
  Scenarios:   ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry go-playground/validator tags; handlers call
  validate.Struct before touching the store.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/payment.go: PaymentJSON type
*/
package api

import (
	"time"

	"github.com/society/dues-engine/factory"
	"github.com/society/dues-engine/generic"
	"github.com/society/dues-engine/maintenance"
	"github.com/society/dues-engine/store/sqlite"
)

// =============================================================================
// MEMBERS
// =============================================================================

// MemberDTO represents a member in API responses.
type MemberDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	HouseNumber string `json:"house_number"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Banned      bool   `json:"banned"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// CreateMemberRequest is the request to create a member.
type CreateMemberRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"required"`
	HouseNumber string `json:"house_number" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"omitempty,max=20"`
}

// MemberPaymentsDTO is a member's payment history.
type MemberPaymentsDTO struct {
	MemberID       string       `json:"member_id"`
	Payments       []PaymentDTO `json:"payments"`
	TotalCollected string       `json:"total_collected"`
}

// =============================================================================
// CATEGORIES
// =============================================================================

// CategoryDTO represents a payment category.
type CategoryDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// CreateCategoryRequest is the request to create a category.
type CreateCategoryRequest struct {
	Name      string `json:"name" validate:"required,max=64"`
	Recurring bool   `json:"recurring"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentDTO represents a ledger entry.
type PaymentDTO struct {
	factory.PaymentJSON
	CreatedAt string `json:"created_at,omitempty"`
}

// =============================================================================
// DUES
// =============================================================================

// MemberRefDTO identifies a member in dues listings.
type MemberRefDTO struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	HouseNumber string `json:"house_number"`
}

// DiagnosticDTO describes one record excluded from coverage.
type DiagnosticDTO struct {
	PaymentID   string        `json:"payment_id"`
	UserID      string        `json:"user_id"`
	Reason      string        `json:"reason"`
	PaymentDate generic.Date  `json:"payment_date"`
	PeriodStart *generic.Date `json:"period_start"`
	PeriodEnd   *generic.Date `json:"period_end"`
}

// DiagnosticsDTO summarizes excluded records.
type DiagnosticsDTO struct {
	MissingPeriod  int             `json:"missing_period"`
	InvertedPeriod int             `json:"inverted_period"`
	Records        []DiagnosticDTO `json:"records,omitempty"`
}

// MemberStatusDTO is the coverage detail for one member.
type MemberStatusDTO struct {
	MemberRefDTO
	Due             bool             `json:"due"`
	Gaps            []generic.Period `json:"gaps"`
	Pending         []generic.Period `json:"pending,omitempty"`
	ObligationStart *generic.Date    `json:"obligation_start"`
	CoveredThrough  *generic.Date    `json:"covered_through"`
	ValidRecords    int              `json:"valid_records"`
	Diagnostics     DiagnosticsDTO   `json:"diagnostics"`
}

// DueResultDTO is the full calculator output.
type DueResultDTO struct {
	ReferenceDate generic.Date      `json:"reference_date"`
	UsersWithDue  []MemberRefDTO    `json:"users_with_due"`
	Members       []MemberStatusDTO `json:"members"`
	Diagnostics   DiagnosticsDTO    `json:"diagnostics"`
}

// SummaryDTO is the dashboard headline.
type SummaryDTO struct {
	AsOf          generic.Date   `json:"as_of"`
	CategoryID    int64          `json:"category_id"`
	ActiveMembers int            `json:"active_members"`
	Paid          int            `json:"paid"`
	Overdue       int            `json:"overdue"`
	NeverPaid     int            `json:"never_paid"`
	UsersWithDue  []MemberRefDTO `json:"users_with_due"`
	Diagnostics   DiagnosticsDTO `json:"diagnostics"`
	Degraded      bool           `json:"degraded"`
}

// =============================================================================
// ADMIN
// =============================================================================

// DueScanRunDTO represents one scheduled dues computation.
type DueScanRunDTO struct {
	ID             string       `json:"id"`
	CategoryID     int64        `json:"category_id"`
	ReferenceDate  generic.Date `json:"reference_date"`
	Members        int          `json:"members"`
	Overdue        int          `json:"overdue"`
	MissingPeriod  int          `json:"missing_period"`
	InvertedPeriod int          `json:"inverted_period"`
	Status         string       `json:"status"`
	Error          string       `json:"error,omitempty"`
	StartedAt      string       `json:"started_at"`
	CompletedAt    string       `json:"completed_at,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AsOf        string `json:"as_of"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the error body for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toMemberDTO(m sqlite.Member) MemberDTO {
	return MemberDTO{
		ID:          m.ID,
		Name:        m.Name,
		HouseNumber: m.HouseNumber,
		Email:       m.Email,
		Phone:       m.Phone,
		Banned:      m.Banned,
		CreatedAt:   formatTime(m.CreatedAt),
	}
}

func toCategoryDTO(c maintenance.Category) CategoryDTO {
	return CategoryDTO{ID: c.ID, Name: c.Name, Recurring: c.Recurring}
}

func toPaymentDTO(f *factory.PaymentFactory, p maintenance.Payment) PaymentDTO {
	return PaymentDTO{PaymentJSON: f.ToJSON(p), CreatedAt: formatTime(p.CreatedAt)}
}

func toMemberRefs(members []maintenance.Member) []MemberRefDTO {
	out := make([]MemberRefDTO, len(members))
	for i, m := range members {
		out[i] = toMemberRef(m)
	}
	return out
}

func toMemberRef(m maintenance.Member) MemberRefDTO {
	return MemberRefDTO{UserID: string(m.UserID), UserName: m.UserName, HouseNumber: m.HouseNumber}
}

func toDiagnosticsDTO(d maintenance.Diagnostics) DiagnosticsDTO {
	dto := DiagnosticsDTO{MissingPeriod: d.MissingPeriod, InvertedPeriod: d.InvertedPeriod}
	for _, r := range d.Records {
		dto.Records = append(dto.Records, DiagnosticDTO{
			PaymentID:   r.PaymentID,
			UserID:      string(r.UserID),
			Reason:      string(r.Reason),
			PaymentDate: r.PaymentDate,
			PeriodStart: r.PeriodStart,
			PeriodEnd:   r.PeriodEnd,
		})
	}
	return dto
}

func toMemberStatusDTO(ms maintenance.MemberStatus) MemberStatusDTO {
	gaps := ms.Gaps
	if gaps == nil {
		gaps = []generic.Period{}
	}
	return MemberStatusDTO{
		MemberRefDTO:    toMemberRef(ms.Member),
		Due:             ms.Due,
		Gaps:            gaps,
		Pending:         ms.Pending,
		ObligationStart: ms.ObligationStart,
		CoveredThrough:  ms.CoveredThrough,
		ValidRecords:    ms.ValidRecords,
		Diagnostics:     toDiagnosticsDTO(ms.Diagnostics),
	}
}

func toDueResultDTO(res *maintenance.DueResult) DueResultDTO {
	members := make([]MemberStatusDTO, len(res.Members))
	for i, ms := range res.Members {
		members[i] = toMemberStatusDTO(ms)
	}
	return DueResultDTO{
		ReferenceDate: res.ReferenceDate,
		UsersWithDue:  toMemberRefs(res.UsersWithDue),
		Members:       members,
		Diagnostics:   toDiagnosticsDTO(res.Diagnostics),
	}
}

func toSummaryDTO(s maintenance.Summary) SummaryDTO {
	return SummaryDTO{
		AsOf:          s.AsOf,
		CategoryID:    s.CategoryID,
		ActiveMembers: s.ActiveMembers,
		Paid:          s.Paid,
		Overdue:       s.Overdue,
		NeverPaid:     s.NeverPaid,
		UsersWithDue:  toMemberRefs(s.UsersWithDue),
		Diagnostics:   toDiagnosticsDTO(s.Diagnostics),
		Degraded:      s.Degraded,
	}
}

func toDueScanRunDTO(r sqlite.DueScanRun) DueScanRunDTO {
	dto := DueScanRunDTO{
		ID:             r.ID,
		CategoryID:     r.CategoryID,
		ReferenceDate:  r.ReferenceDate,
		Members:        r.Members,
		Overdue:        r.Overdue,
		MissingPeriod:  r.MissingPeriod,
		InvertedPeriod: r.InvertedPeriod,
		Status:         r.Status,
		Error:          r.Error,
		StartedAt:      formatTime(r.StartedAt),
	}
	if r.CompletedAt != nil {
		dto.CompletedAt = formatTime(*r.CompletedAt)
	}
	return dto
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
