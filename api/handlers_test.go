/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Member CRUD and ban/unban
- Payment recording (derived period end, validation, conflicts)
- Dues endpoints (dashboard, full result, coverage, CSV export)
- Scan trigger and history
- Metrics endpoint wiring
*/
package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/society/dues-engine/metrics"
	"github.com/society/dues-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.Payments.Now = func() time.Time { return time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC) }
	return h
}

func setupRouter(t *testing.T) (*Handler, http.Handler) {
	h := setupTestHandler(t)
	return h, NewRouter(h, RouterOptions{})
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createMember(t *testing.T, router http.Handler, id, house string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/members",
		`{"id":"`+id+`","name":"Member `+id+`","house_number":"`+house+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// MEMBERS
// =============================================================================

func TestMembers_CreateGetList(t *testing.T) {
	// GIVEN: A member created through the API
	_, router := setupRouter(t)
	createMember(t, router, "A-101", "A-101")

	// WHEN: Fetching it and listing
	got := do(t, router, http.MethodGet, "/api/members/A-101", "")
	list := do(t, router, http.MethodGet, "/api/members", "")

	// THEN
	require.Equal(t, http.StatusOK, got.Code)
	member := decodeBody[MemberDTO](t, got)
	assert.Equal(t, "Member A-101", member.Name)
	assert.False(t, member.Banned)

	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decodeBody[[]MemberDTO](t, list), 1)
}

func TestMembers_GeneratedID(t *testing.T) {
	_, router := setupRouter(t)

	rec := do(t, router, http.MethodPost, "/api/members", `{"name":"No ID","house_number":"C-3"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, decodeBody[MemberDTO](t, rec).ID)
}

func TestMembers_ValidationAndNotFound(t *testing.T) {
	_, router := setupRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing house number", http.MethodPost, "/api/members", `{"name":"X"}`, http.StatusBadRequest},
		{"bad email", http.MethodPost, "/api/members", `{"name":"X","house_number":"A","email":"nope"}`, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/members", `{"name":`, http.StatusBadRequest},
		{"unknown member", http.MethodGet, "/api/members/ghost", "", http.StatusNotFound},
		{"ban unknown member", http.MethodPost, "/api/members/ghost/ban", "", http.StatusNotFound},
		{"coverage unknown member", http.MethodGet, "/api/members/ghost/coverage", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeBody[ErrorResponse](t, rec).Error)
		})
	}
}

func TestMembers_BanExcludesFromDashboard(t *testing.T) {
	// GIVEN: The basic society, where Y is overdue
	h, router := setupRouter(t)
	require.NoError(t, h.loadScenario(context.Background(), "society-basic"))

	// WHEN: Banning Y
	rec := do(t, router, http.MethodPost, "/api/members/Y/ban", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[MemberDTO](t, rec).Banned)

	// THEN: Nobody is overdue and Y is not counted
	summary := decodeBody[SummaryDTO](t, do(t, router, http.MethodGet, "/api/dashboard/dues?as_of=2025-01-15", ""))
	assert.Equal(t, 2, summary.ActiveMembers)
	assert.Equal(t, 0, summary.Overdue)

	// AND: Unbanning brings Y back
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/members/Y/unban", "").Code)
	summary = decodeBody[SummaryDTO](t, do(t, router, http.MethodGet, "/api/dashboard/dues?as_of=2025-01-15", ""))
	assert.Equal(t, 1, summary.Overdue)
}

func TestMembers_RepostKeepsBan(t *testing.T) {
	// GIVEN: The basic society with Y banned
	h, router := setupRouter(t)
	require.NoError(t, h.loadScenario(context.Background(), "society-basic"))
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/members/Y/ban", "").Code)

	// WHEN: Re-posting Y to update the phone number
	rec := do(t, router, http.MethodPost, "/api/members",
		`{"id":"Y","name":"Yamini","house_number":"A-102","phone":"+91 98200 00000"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: Y is still banned and still outside the dashboard split
	member := decodeBody[MemberDTO](t, do(t, router, http.MethodGet, "/api/members/Y", ""))
	assert.True(t, member.Banned)
	assert.Equal(t, "+91 98200 00000", member.Phone)

	summary := decodeBody[SummaryDTO](t, do(t, router, http.MethodGet, "/api/dashboard/dues?as_of=2025-01-15", ""))
	assert.Equal(t, 2, summary.ActiveMembers)
	assert.Equal(t, 0, summary.Overdue)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestCreatePayment_DerivesPeriodEnd(t *testing.T) {
	// GIVEN: A member
	_, router := setupRouter(t)
	createMember(t, router, "m1", "A-101")

	// WHEN: Recording a quarterly payment with only a start date
	rec := do(t, router, http.MethodPost, "/api/payments",
		`{"user_id":"m1","amount":"4500","interval_type":"quarterly","period_start":"2024-01-01","method":"upi_qr"}`)

	// THEN: The end is derived and defaults are filled in
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeBody[PaymentDTO](t, rec)
	assert.Equal(t, "2024-03-31", p.PeriodEnd)
	assert.Equal(t, "4500.00", p.Amount)
	assert.Equal(t, "2025-01-15", p.PaymentDate)
	assert.Equal(t, int64(1), p.CategoryID)
	assert.NotEmpty(t, p.ID)
	assert.NotEmpty(t, p.CreatedAt)
}

func TestCreatePayment_Rejections(t *testing.T) {
	_, router := setupRouter(t)
	createMember(t, router, "m1", "A-101")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing user", `{"amount":"100"}`, http.StatusBadRequest},
		{"missing amount", `{"user_id":"m1"}`, http.StatusBadRequest},
		{"negative amount", `{"user_id":"m1","amount":"-5"}`, http.StatusBadRequest},
		{"inverted period", `{"user_id":"m1","amount":"100","period_start":"2024-06-30","period_end":"2024-01-01"}`, http.StatusBadRequest},
		{"end without start", `{"user_id":"m1","amount":"100","period_end":"2024-01-31"}`, http.StatusBadRequest},
		{"unknown method", `{"user_id":"m1","amount":"100","method":"barter"}`, http.StatusBadRequest},
		{"unknown member", `{"user_id":"ghost","amount":"100"}`, http.StatusNotFound},
		{"unknown category", `{"user_id":"m1","amount":"100","category_id":42}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/payments", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCreatePayment_DuplicateIdempotencyKey(t *testing.T) {
	// GIVEN: A payment submitted with an idempotency key
	_, router := setupRouter(t)
	createMember(t, router, "m1", "A-101")
	body := `{"user_id":"m1","amount":"1500","interval_type":"monthly","period_start":"2024-01-01","idempotency_key":"desk-17"}`
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/payments", body).Code)

	// WHEN: The desk resubmits it
	rec := do(t, router, http.MethodPost, "/api/payments", body)

	// THEN: Conflict, and only one payment exists
	assert.Equal(t, http.StatusConflict, rec.Code)
	history := decodeBody[MemberPaymentsDTO](t, do(t, router, http.MethodGet, "/api/members/m1/payments", ""))
	assert.Len(t, history.Payments, 1)
}

func TestMemberPayments_TotalAndDelete(t *testing.T) {
	// GIVEN: Two payments for one member
	_, router := setupRouter(t)
	createMember(t, router, "m1", "A-101")
	first := decodeBody[PaymentDTO](t, do(t, router, http.MethodPost, "/api/payments",
		`{"user_id":"m1","amount":"4500","interval_type":"quarterly","period_start":"2024-01-01"}`))
	do(t, router, http.MethodPost, "/api/payments", `{"user_id":"m1","amount":"250.50"}`)

	// WHEN: Reading history
	history := decodeBody[MemberPaymentsDTO](t, do(t, router, http.MethodGet, "/api/members/m1/payments", ""))

	// THEN: The total includes untagged payments
	assert.Len(t, history.Payments, 2)
	assert.Equal(t, "4750.50", history.TotalCollected)

	// AND: Deleting one leaves the other
	require.Equal(t, http.StatusOK, do(t, router, http.MethodDelete, "/api/payments/"+first.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodDelete, "/api/payments/"+first.ID, "").Code)
	history = decodeBody[MemberPaymentsDTO](t, do(t, router, http.MethodGet, "/api/members/m1/payments", ""))
	assert.Len(t, history.Payments, 1)
	assert.Equal(t, "250.50", history.TotalCollected)
}

// =============================================================================
// CATEGORIES
// =============================================================================

func TestCategories_CreateAndList(t *testing.T) {
	_, router := setupRouter(t)

	rec := do(t, router, http.MethodPost, "/api/categories", `{"name":"Parking","recurring":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	cats := decodeBody[[]CategoryDTO](t, do(t, router, http.MethodGet, "/api/categories", ""))
	require.Len(t, cats, 2)
	assert.Equal(t, "Maintenance", cats[0].Name)
	assert.Equal(t, "Parking", cats[1].Name)
}

func TestCategories_DuplicateNameConflicts(t *testing.T) {
	_, router := setupRouter(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/categories", `{"name":"Parking"}`).Code)

	rec := do(t, router, http.MethodPost, "/api/categories", `{"name":"Parking"}`)

	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody[[]CategoryDTO](t, do(t, router, http.MethodGet, "/api/categories", "")), 2)
}

// =============================================================================
// DUES
// =============================================================================

func TestDues_SocietyBasic(t *testing.T) {
	// GIVEN: X paid 2024, Y paid Jan-Jun 2024, Z never tagged a period
	h, router := setupRouter(t)
	require.NoError(t, h.loadScenario(context.Background(), "society-basic"))

	// WHEN: Computing dues on 2025-01-15
	rec := do(t, router, http.MethodGet, "/api/dues?as_of=2025-01-15", "")

	// THEN: Only Y owes, from July to the reference date
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[DueResultDTO](t, rec)
	assert.Equal(t, "2025-01-15", res.ReferenceDate.String())
	require.Len(t, res.UsersWithDue, 1)
	assert.Equal(t, "Y", res.UsersWithDue[0].UserID)
	assert.Equal(t, 1, res.Diagnostics.MissingPeriod)
	assert.Len(t, res.Members, 3)
}

func TestDashboardDues_Headcounts(t *testing.T) {
	h, router := setupRouter(t)
	require.NoError(t, h.loadScenario(context.Background(), "society-basic"))

	rec := do(t, router, http.MethodGet, "/api/dashboard/dues?as_of=2025-01-15", "")

	require.Equal(t, http.StatusOK, rec.Code)
	s := decodeBody[SummaryDTO](t, rec)
	assert.Equal(t, 3, s.ActiveMembers)
	assert.Equal(t, 1, s.Overdue)
	assert.Equal(t, 2, s.Paid)
	assert.Equal(t, 1, s.NeverPaid)
	assert.False(t, s.Degraded)
}

func TestDashboardDues_DegradesWhenStoreFails(t *testing.T) {
	// GIVEN: A closed database
	h, router := setupRouter(t)
	require.NoError(t, h.Store.Close())

	// WHEN: Opening the dashboard
	rec := do(t, router, http.MethodGet, "/api/dashboard/dues?as_of=2025-01-15", "")

	// THEN: Zeros instead of an error
	require.Equal(t, http.StatusOK, rec.Code)
	s := decodeBody[SummaryDTO](t, rec)
	assert.True(t, s.Degraded)
	assert.Equal(t, 0, s.Overdue)
	assert.Empty(t, s.UsersWithDue)
}

func TestDues_InvalidAsOf(t *testing.T) {
	_, router := setupRouter(t)

	for _, path := range []string{"/api/dues?as_of=15-01-2025", "/api/dashboard/dues?as_of=tomorrow"} {
		assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, path, "").Code, path)
	}
}

func TestMemberCoverage(t *testing.T) {
	// GIVEN: The basic society
	h, router := setupRouter(t)
	require.NoError(t, h.loadScenario(context.Background(), "society-basic"))

	// WHEN: Looking at Y and X on 2025-01-15
	y := decodeBody[MemberStatusDTO](t, do(t, router, http.MethodGet, "/api/members/Y/coverage?as_of=2025-01-15", ""))
	x := decodeBody[MemberStatusDTO](t, do(t, router, http.MethodGet, "/api/members/X/coverage?as_of=2025-01-15", ""))

	// THEN: Y has one gap; X only has January pending
	assert.True(t, y.Due)
	require.Len(t, y.Gaps, 1)
	assert.Equal(t, "2024-07-01", y.Gaps[0].Start.String())
	assert.Equal(t, "2025-01-15", y.Gaps[0].End.String())
	require.NotNil(t, y.CoveredThrough)
	assert.Equal(t, "2024-06-30", y.CoveredThrough.String())

	assert.False(t, x.Due)
	assert.Empty(t, x.Gaps)
	require.Len(t, x.Pending, 1)
	assert.Equal(t, "2025-01-01", x.Pending[0].Start.String())
}

func TestExportDuesCSV(t *testing.T) {
	// GIVEN: The basic society
	h, router := setupRouter(t)
	require.NoError(t, h.loadScenario(context.Background(), "society-basic"))

	// WHEN: Exporting
	rec := do(t, router, http.MethodGet, "/api/dues/export.csv?as_of=2025-01-15", "")

	// THEN: A header row plus Y
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "dues-2025-01-15.csv")

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"Y", "Yamini Rao", "A-102", "2024-01-01", "2024-06-30", "1", "[2024-07-01, 2025-01-15]"}, rows[1])
}

// =============================================================================
// ADMIN
// =============================================================================

func TestScans_TriggerAndList(t *testing.T) {
	// GIVEN: The basic society and a metrics observer
	h, router := setupRouter(t)
	require.NoError(t, h.loadScenario(context.Background(), "society-basic"))

	// WHEN: Triggering a scan
	rec := do(t, router, http.MethodPost, "/api/admin/scans", "")

	// THEN: The run is recorded as completed
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	run := decodeBody[DueScanRunDTO](t, rec)
	assert.Equal(t, ScanCompleted, run.Status)
	assert.Equal(t, 3, run.Members)
	assert.Equal(t, 1, run.MissingPeriod)
	assert.NotEmpty(t, run.CompletedAt)

	runs := decodeBody[[]DueScanRunDTO](t, do(t, router, http.MethodGet, "/api/admin/scans?limit=5", ""))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/admin/scans?limit=-1", "").Code)
}

func TestScans_RateLimited(t *testing.T) {
	// GIVEN: A limiter that allows a single manual scan
	h := setupTestHandler(t)
	router := NewRouter(h, RouterOptions{ScanLimiter: rate.NewLimiter(0, 1)})

	// WHEN: Triggering twice
	first := do(t, router, http.MethodPost, "/api/admin/scans", "")
	second := do(t, router, http.MethodPost, "/api/admin/scans", "")

	// THEN: The second is rejected, history is still readable
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/admin/scans", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	// GIVEN: A router with metrics mounted and recording the dashboard
	h := setupTestHandler(t)
	h.Dashboard.Calculator.Now = h.Payments.Now
	m := metrics.New()
	h.Dashboard.Recorder = m
	h.Scheduler.Observer = m
	router := NewRouter(h, RouterOptions{Metrics: m.Handler()})
	require.NoError(t, h.loadScenario(context.Background(), "society-basic"))

	// WHEN: Computing dues for today, then for a past date, then scraping
	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/dues", "").Code)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/dues?as_of=2019-01-01", "").Code)
	rec := do(t, router, http.MethodGet, "/metrics", "")

	// THEN: The gauges hold today's snapshot
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dues_members_overdue 1")
	assert.Contains(t, rec.Body.String(), "dues_members_total 3")
}

func TestRouter_NoMetricsByDefault(t *testing.T) {
	_, router := setupRouter(t)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/", "").Code)
}

func TestResetDatabase(t *testing.T) {
	h, router := setupRouter(t)
	require.NoError(t, h.loadScenario(context.Background(), "society-basic"))

	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/scenarios/reset", "").Code)

	assert.Empty(t, decodeBody[[]MemberDTO](t, do(t, router, http.MethodGet, "/api/members", "")))
	assert.Equal(t, "null", strings.TrimSpace(do(t, router, http.MethodGet, "/api/scenarios/current", "").Body.String()))
}
