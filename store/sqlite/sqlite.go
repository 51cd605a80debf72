/*
Package sqlite provides a SQLite-backed implementation of the payment ledger.

PURPOSE:
  Persists members, payment categories, payments and due-scan runs, and
  serves the joined "payment periods" query the dues calculator consumes.
  Implements maintenance.Source.

KEY TABLES:
  members:            Society members (banned = excluded from dues)
  payment_categories: Maintenance, parking, ... (category 1 is seeded)
  payments:           Append-mostly payment ledger with optional periods
  due_scan_runs:      Audit trail of scheduled dues computations

PERIOD COLUMNS:
  period_start/period_end are nullable TEXT (YYYY-MM-DD). The store never
  validates their order: legacy rows with inverted periods are returned as
  is so the calculator can report them. New payments are validated by the
  API before they get here.

INDEXES:
  - idx_payments_category_date: ListPaymentPeriods (hot path)
  - idx_payments_member: per-member payment history
  - idempotency_key UNIQUE: retried submissions

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, as SQLite allows one writer.

USAGE:
  store, err := sqlite.New("./society.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  dash := maintenance.NewDashboard(store, logger)
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/society/dues-engine/generic"
	"github.com/society/dues-engine/maintenance"
)

// timestampLayout is fixed-width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements persistence using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Compile-time check that Store can feed the dashboard.
var _ maintenance.Source = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each :memory: connection is its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		house_number TEXT NOT NULL DEFAULT '',
		email TEXT,
		phone TEXT,
		banned BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_banned
		ON members(banned);

	CREATE TABLE IF NOT EXISTS payment_categories (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		recurring BOOLEAN NOT NULL DEFAULT FALSE
	);

	INSERT OR IGNORE INTO payment_categories (id, name, recurring)
		VALUES (1, 'Maintenance', TRUE);

	-- Payments (periods are nullable for ad hoc payments)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		category_id INTEGER NOT NULL REFERENCES payment_categories(id),
		amount TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		interval_type TEXT NOT NULL DEFAULT '',
		period_start TEXT,
		period_end TEXT,
		payment_date TEXT NOT NULL,
		reference TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_category_date
		ON payments(category_id, payment_date);
	CREATE INDEX IF NOT EXISTS idx_payments_member
		ON payments(member_id, payment_date);

	-- Due scan runs (scheduled dues computations)
	CREATE TABLE IF NOT EXISTS due_scan_runs (
		id TEXT PRIMARY KEY,
		category_id INTEGER NOT NULL,
		reference_date TEXT NOT NULL,
		members INTEGER NOT NULL DEFAULT 0,
		overdue INTEGER NOT NULL DEFAULT 0,
		missing_period INTEGER NOT NULL DEFAULT 0,
		inverted_period INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_due_scan_runs_started
		ON due_scan_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// MEMBERS
// =============================================================================

// Member is a society member row.
type Member struct {
	ID          string
	Name        string
	HouseNumber string
	Email       string
	Phone       string
	Banned      bool
	CreatedAt   time.Time
}

// ToDomain returns the identity the calculator carries.
func (m Member) ToDomain() maintenance.Member {
	return maintenance.Member{
		UserID:      maintenance.UserID(m.ID),
		UserName:    m.Name,
		HouseNumber: m.HouseNumber,
	}
}

// SaveMember inserts or updates a member. Banned is only applied on
// insert; use SetBanned to change it afterwards.
func (s *Store) SaveMember(ctx context.Context, m Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, name, house_number, email, phone, banned, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			house_number = excluded.house_number,
			email = excluded.email,
			phone = excluded.phone
	`, m.ID, m.Name, m.HouseNumber, nullString(m.Email), nullString(m.Phone), m.Banned,
		m.CreatedAt.Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("failed to save member: %w", err)
	}
	return nil
}

// GetMember returns a member or nil if not found.
func (s *Store) GetMember(ctx context.Context, id string) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, err := s.queryMembers(ctx, memberSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	return &members[0], nil
}

// ListMembers returns every member ordered by house number.
func (s *Store) ListMembers(ctx context.Context) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMembers(ctx, memberSelect+` ORDER BY house_number, name`)
}

// ListActiveMembers returns non-banned members (maintenance.Source).
func (s *Store) ListActiveMembers(ctx context.Context) ([]maintenance.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.queryMembers(ctx, memberSelect+` WHERE banned = FALSE ORDER BY house_number, name`)
	if err != nil {
		return nil, err
	}
	out := make([]maintenance.Member, len(rows))
	for i, m := range rows {
		out[i] = m.ToDomain()
	}
	return out, nil
}

// SetBanned bans or reinstates a member.
func (s *Store) SetBanned(ctx context.Context, id string, banned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE members SET banned = ? WHERE id = ?`, banned, id)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return requireAffected(res, generic.ErrMemberNotFound, id)
}

// DeleteMember removes a member and, by cascade, their payments.
func (s *Store) DeleteMember(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return requireAffected(res, generic.ErrMemberNotFound, id)
}

const memberSelect = `SELECT id, name, house_number, email, phone, banned, created_at FROM members`

func (s *Store) queryMembers(ctx context.Context, query string, args ...any) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		var email, phone sql.NullString
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Name, &m.HouseNumber, &email, &phone, &m.Banned, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Email = email.String
		m.Phone = phone.String
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		members = append(members, m)
	}
	return members, rows.Err()
}

// =============================================================================
// CATEGORIES
// =============================================================================

// SaveCategory inserts or renames a category. ID 0 allocates a new one.
func (s *Store) SaveCategory(ctx context.Context, c maintenance.Category) (maintenance.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO payment_categories (name, recurring) VALUES (?, ?)`, c.Name, c.Recurring)
		if err != nil {
			return c, categoryError(c, err)
		}
		c.ID, err = res.LastInsertId()
		return c, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_categories (id, name, recurring) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, recurring = excluded.recurring
	`, c.ID, c.Name, c.Recurring)
	if err != nil {
		return c, categoryError(c, err)
	}
	return c, nil
}

func categoryError(c maintenance.Category, err error) error {
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s", generic.ErrDuplicateCategory, c.Name)
	}
	return fmt.Errorf("failed to save category: %w", err)
}

// GetCategory returns a category or ErrCategoryNotFound.
func (s *Store) GetCategory(ctx context.Context, id int64) (maintenance.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c maintenance.Category
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, recurring FROM payment_categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Recurring)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("%w: %d", generic.ErrCategoryNotFound, id)
	}
	if err != nil {
		return c, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

// ListCategories returns all categories by ID.
func (s *Store) ListCategories(ctx context.Context) ([]maintenance.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, recurring FROM payment_categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var out []maintenance.Category
	for rows.Next() {
		var c maintenance.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Recurring); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// PAYMENTS
// =============================================================================

// SavePayment appends a payment to the ledger.
func (s *Store) SavePayment(ctx context.Context, p maintenance.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	var start, end sql.NullString
	if p.Period != nil {
		start = nullString(p.Period.Start.String())
		end = nullString(p.Period.End.String())
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments
		(id, member_id, category_id, amount, method, interval_type,
		 period_start, period_end, payment_date, reference, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		string(p.UserID),
		p.CategoryID,
		p.Amount.String(),
		string(p.Method),
		string(p.IntervalType),
		start,
		end,
		p.PaymentDate.String(),
		nullString(p.Reference),
		nullString(p.IdempotencyKey),
		p.CreatedAt.Format(timestampLayout),
	)
	if err != nil {
		switch {
		case isUniqueConstraintError(err):
			return generic.ErrDuplicateIdempotencyKey
		case isForeignKeyError(err):
			return fmt.Errorf("%w or %w", generic.ErrMemberNotFound, generic.ErrCategoryNotFound)
		}
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

// GetPayment returns a payment or ErrPaymentNotFound.
func (s *Store) GetPayment(ctx context.Context, id string) (maintenance.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments, err := s.queryPayments(ctx, paymentSelect+` WHERE id = ?`, id)
	if err != nil {
		return maintenance.Payment{}, err
	}
	if len(payments) == 0 {
		return maintenance.Payment{}, fmt.Errorf("%w: %s", generic.ErrPaymentNotFound, id)
	}
	return payments[0], nil
}

// ListPaymentsByMember returns a member's payments, oldest first. A zero
// categoryID returns every category.
func (s *Store) ListPaymentsByMember(ctx context.Context, memberID string, categoryID int64) ([]maintenance.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if categoryID == 0 {
		return s.queryPayments(ctx, paymentSelect+`
			WHERE member_id = ? ORDER BY payment_date, created_at`, memberID)
	}
	return s.queryPayments(ctx, paymentSelect+`
		WHERE member_id = ? AND category_id = ? ORDER BY payment_date, created_at`, memberID, categoryID)
}

// DeletePayment removes a mistaken entry.
func (s *Store) DeletePayment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return requireAffected(res, generic.ErrPaymentNotFound, id)
}

// ListPaymentPeriods returns every payment in the category joined with the
// payer's identity, in payment order (maintenance.Source). Banned members
// are included; filtering is the caller's decision.
func (s *Store) ListPaymentPeriods(ctx context.Context, categoryID int64) ([]maintenance.PaymentPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.member_id, m.name, m.house_number,
		       p.period_start, p.period_end, p.payment_date, p.category_id, p.interval_type
		FROM payments p
		JOIN members m ON m.id = p.member_id
		WHERE p.category_id = ?
		ORDER BY p.payment_date ASC, p.created_at ASC, p.id ASC
	`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment periods: %w", err)
	}
	defer rows.Close()

	var out []maintenance.PaymentPeriod
	for rows.Next() {
		var pp maintenance.PaymentPeriod
		var userID, intervalType, paymentDate string
		var start, end sql.NullString
		if err := rows.Scan(&pp.PaymentID, &userID, &pp.UserName, &pp.HouseNumber,
			&start, &end, &paymentDate, &pp.CategoryID, &intervalType); err != nil {
			return nil, fmt.Errorf("failed to scan payment period: %w", err)
		}
		pp.UserID = maintenance.UserID(userID)
		pp.IntervalType = generic.IntervalType(intervalType)
		pp.PaymentDate = parseDate(paymentDate)
		pp.PeriodStart = parseNullDate(start)
		pp.PeriodEnd = parseNullDate(end)
		out = append(out, pp)
	}
	return out, rows.Err()
}

const paymentSelect = `
	SELECT id, member_id, category_id, amount, method, interval_type,
	       period_start, period_end, payment_date, reference, idempotency_key, created_at
	FROM payments`

func (s *Store) queryPayments(ctx context.Context, query string, args ...any) ([]maintenance.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []maintenance.Payment
	for rows.Next() {
		var p maintenance.Payment
		var userID, amount, method, intervalType, paymentDate, createdAt string
		var start, end, reference, idemKey sql.NullString
		if err := rows.Scan(&p.ID, &userID, &p.CategoryID, &amount, &method, &intervalType,
			&start, &end, &paymentDate, &reference, &idemKey, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}

		p.UserID = maintenance.UserID(userID)
		p.Amount, _ = decimal.NewFromString(amount)
		p.Method = maintenance.Method(method)
		p.IntervalType = generic.IntervalType(intervalType)
		p.PaymentDate = parseDate(paymentDate)
		p.Reference = reference.String
		p.IdempotencyKey = idemKey.String
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

		if s, e := parseNullDate(start), parseNullDate(end); s != nil && e != nil {
			p.Period = &generic.Period{Start: *s, End: *e}
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// DUE SCAN RUNS
// =============================================================================

// DueScanRun records one scheduled dues computation.
type DueScanRun struct {
	ID             string
	CategoryID     int64
	ReferenceDate  generic.Date
	Members        int
	Overdue        int
	MissingPeriod  int
	InvertedPeriod int
	Status         string // running, completed, failed
	Error          string
	StartedAt      time.Time
	CompletedAt    *time.Time
}

// SaveDueScanRun inserts or updates a run.
func (s *Store) SaveDueScanRun(ctx context.Context, r DueScanRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completedAt sql.NullString
	if r.CompletedAt != nil {
		completedAt = nullString(r.CompletedAt.Format(timestampLayout))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO due_scan_runs
		(id, category_id, reference_date, members, overdue, missing_period, inverted_period,
		 status, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			members = excluded.members,
			overdue = excluded.overdue,
			missing_period = excluded.missing_period,
			inverted_period = excluded.inverted_period,
			status = excluded.status,
			error = excluded.error,
			completed_at = excluded.completed_at
	`, r.ID, r.CategoryID, r.ReferenceDate.String(), r.Members, r.Overdue, r.MissingPeriod,
		r.InvertedPeriod, r.Status, nullString(r.Error), r.StartedAt.Format(timestampLayout), completedAt)
	if err != nil {
		return fmt.Errorf("failed to save due scan run: %w", err)
	}
	return nil
}

// ListDueScanRuns returns the most recent runs first.
func (s *Store) ListDueScanRuns(ctx context.Context, limit int) ([]DueScanRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category_id, reference_date, members, overdue, missing_period, inverted_period,
		       status, error, started_at, completed_at
		FROM due_scan_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due scan runs: %w", err)
	}
	defer rows.Close()

	var runs []DueScanRun
	for rows.Next() {
		var r DueScanRun
		var refDate, startedAt string
		var errText, completedAt sql.NullString
		if err := rows.Scan(&r.ID, &r.CategoryID, &refDate, &r.Members, &r.Overdue,
			&r.MissingPeriod, &r.InvertedPeriod, &r.Status, &errText, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan due scan run: %w", err)
		}
		r.ReferenceDate = parseDate(refDate)
		r.Error = errText.String
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data and re-seeds the maintenance category.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"payments", "due_scan_runs", "members", "payment_categories"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return s.migrate()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// parseDate tolerates legacy rows; a bad value becomes the zero date.
func parseDate(s string) generic.Date {
	d, err := generic.ParseDate(s)
	if err != nil {
		return generic.Date{}
	}
	return d
}

func parseNullDate(ns sql.NullString) *generic.Date {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	d, err := generic.ParseDate(ns.String)
	if err != nil {
		return nil
	}
	return &d
}

func requireAffected(res sql.Result, notFound error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
