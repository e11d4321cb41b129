/*
Package sqlite provides a SQLite-backed implementation of core.TxStore.

PURPOSE:
  Single-file persistence for one front desk. The same contracts are
  implemented for PostgreSQL in store/postgres when several desks share a
  database.

APPEND-ONLY ENFORCEMENT:
  attendance, payments and expenses only ever see INSERT. Member and
  subscription fields are caches derived from them.

MONEY:
  Stored as INTEGER cents so counter updates are plain integer arithmetic
  inside one UPDATE statement. Callers reject sub-cent amounts before they
  reach the store.

ATOMIC COUNTERS:
  visits_available, products.stock, expected_cents and withdrawals_cents
  are changed with
  conditional UPDATE ... SET x = x + ? WHERE ... statements, never by
  writing back a value read earlier.

CONCURRENCY:
  SQLite allows one writer. The pool is limited to a single connection, so
  statements are serialized by database/sql and a transaction holds the
  connection until it commits.

WAL MODE:
  Opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  st, err := sqlite.New(ctx, "./data/frontdesk.db")
  if err != nil {
      return err
  }
  defer st.Close()

MIGRATION:
  Versioned goose migrations are embedded from migrations/ and applied by
  New and by the migrate command.

SEE ALSO:
  - core/store.go: interface definitions
  - core/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/warp/frontdesk/core"
)

//go:embed migrations/*.sql
var migrations embed.FS

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements core.TxStore using SQLite.
type Store struct {
	db   *sql.DB
	q    querier
	inTx bool
}

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db, q: db}, nil
}

// Migrate applies the embedded migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// TRANSACTIONS (core.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction. Nested calls join the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(core.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit()
}

// atomically runs fn in the current transaction, or in a new one.
func (s *Store) atomically(ctx context.Context, fn func(q querier) error) error {
	if s.inTx {
		return fn(s.q)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// MEMBERS
// =============================================================================

const memberColumns = `id, first_name, last_name, phone, photo_url, birth_date, status,
	registered_at, registered_by, visits_available, last_visit_at`

func (s *Store) CreateMember(ctx context.Context, m core.Member) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO members (id, first_name, last_name, first_name_fold, last_name_fold, phone, photo_url,
			birth_date, status, registered_at, registered_by, visits_available, last_visit_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.FirstName, m.LastName, fold(m.FirstName), fold(m.LastName), m.Phone, m.PhotoURL,
		nullDate(m.BirthDate), string(m.Status), formatTime(m.RegisteredAt), m.RegisteredBy,
		m.VisitsAvailable, nullTime(m.LastVisitAt),
	)
	if isConstraint(err, sqlite3.ErrConstraintPrimaryKey) {
		return core.Invalid("id", "member already exists")
	}
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, id core.MemberID) (*core.Member, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &m, nil
}

func (s *Store) FindMembers(ctx context.Context, query string, limit int) ([]core.Member, error) {
	q := fold(strings.TrimSpace(query))
	pattern := "%" + escapeLike(q) + "%"

	stmt := `SELECT ` + memberColumns + ` FROM members
		WHERE ? = '' OR first_name_fold LIKE ? ESCAPE '\' OR last_name_fold LIKE ? ESCAPE '\'
		ORDER BY last_name, first_name, id`
	args := []any{q, pattern, pattern}
	if limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search members: %w", err)
	}
	defer rows.Close()

	var result []core.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) AddVisits(ctx context.Context, id core.MemberID, qty int) (int, error) {
	var balance int
	err := s.q.QueryRowContext(ctx,
		`UPDATE members SET visits_available = visits_available + ? WHERE id = ? RETURNING visits_available`,
		qty, id,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("member %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to add visits: %w", err)
	}
	return balance, nil
}

func (s *Store) ConsumeVisit(ctx context.Context, id core.MemberID, at time.Time) (int, error) {
	var balance int
	err := s.q.QueryRowContext(ctx, `
		UPDATE members SET visits_available = visits_available - 1, last_visit_at = ?
		WHERE id = ? AND visits_available > 0
		RETURNING visits_available`,
		formatTime(at), id,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		err = s.q.QueryRowContext(ctx, `SELECT visits_available FROM members WHERE id = ?`, id).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("member %s: %w", id, core.ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read visits: %w", err)
		}
		return balance, core.ErrNoCredit
	}
	if err != nil {
		return 0, fmt.Errorf("failed to consume visit: %w", err)
	}
	return balance, nil
}

func (s *Store) TouchLastVisit(ctx context.Context, id core.MemberID, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `UPDATE members SET last_visit_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to update last visit: %w", err)
	}
	return expectRow(res, "member", id)
}

// UpdateMember rewrites the profile fields of m. Visit balance and
// registration data are left alone.
func (s *Store) UpdateMember(ctx context.Context, m core.Member) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE members SET first_name = ?, last_name = ?, first_name_fold = ?, last_name_fold = ?,
			phone = ?, photo_url = ?, birth_date = ?, status = ?
		WHERE id = ?`,
		m.FirstName, m.LastName, fold(m.FirstName), fold(m.LastName),
		m.Phone, m.PhotoURL, nullDate(m.BirthDate), string(m.Status), m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return expectRow(res, "member", m.ID)
}

func (s *Store) DeleteMember(ctx context.Context, id core.MemberID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
	if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
		return fmt.Errorf("member %s: %w", id, core.ErrHasHistory)
	}
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return expectRow(res, "member", id)
}

// =============================================================================
// PLANS
// =============================================================================

const planColumns = `id, name, price_cents, duration_days, category, credits_granted, active`

// CreatePlan inserts p, or replaces the plan with the same id.
func (s *Store) CreatePlan(ctx context.Context, p core.Plan) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, price_cents = excluded.price_cents,
			duration_days = excluded.duration_days, category = excluded.category,
			credits_granted = excluded.credits_granted, active = excluded.active`,
		p.ID, p.Name, toCents(p.Price), p.DurationDays, string(p.Category), p.CreditsGranted, p.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, id core.PlanID) (*core.Plan, error) {
	p, err := scanPlan(s.q.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &p, nil
}

func (s *Store) ListPlans(ctx context.Context, activeOnly bool) ([]core.Plan, error) {
	stmt := `SELECT ` + planColumns + ` FROM plans`
	if activeOnly {
		stmt += ` WHERE active`
	}
	rows, err := s.q.QueryContext(ctx, stmt+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var result []core.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) SetPlanActive(ctx context.Context, id core.PlanID, active bool) error {
	res, err := s.q.ExecContext(ctx, `UPDATE plans SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	return expectRow(res, "plan", id)
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

const subscriptionColumns = `id, member_id, plan_id, start_date, expiration_date, status, created_at, updated_at`

func (s *Store) CreateSubscription(ctx context.Context, sub core.Subscription) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.MemberID, sub.PlanID, sub.StartDate.String(), sub.ExpirationDate.String(),
		string(sub.Status), formatTime(sub.CreatedAt), formatTime(sub.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, memberID core.MemberID) ([]core.Subscription, error) {
	return s.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE member_id = ? ORDER BY expiration_date DESC, created_at DESC`, memberID)
}

func (s *Store) ExtendSubscription(ctx context.Context, id core.SubscriptionID, planID core.PlanID, expiration core.Date, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE subscriptions SET plan_id = ?, expiration_date = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		planID, expiration.String(), string(core.SubscriptionActive), formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to extend subscription: %w", err)
	}
	return expectRow(res, "subscription", id)
}

func (s *Store) SetSubscriptionExpiration(ctx context.Context, id core.SubscriptionID, expiration core.Date, status core.SubscriptionStatus, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE subscriptions SET expiration_date = ?, status = ?, updated_at = ? WHERE id = ?`,
		expiration.String(), string(status), formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set expiration: %w", err)
	}
	return expectRow(res, "subscription", id)
}

func (s *Store) ListExpiring(ctx context.Context, from, to core.Date) ([]core.Subscription, error) {
	return s.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = ? AND expiration_date >= ? AND expiration_date <= ?
		ORDER BY expiration_date ASC, id`,
		string(core.SubscriptionActive), from.String(), to.String())
}

func (s *Store) ExpireOverdue(ctx context.Context, today core.Date, at time.Time) (int, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE subscriptions SET status = ?, updated_at = ?
		WHERE status = ? AND expiration_date < ?`,
		string(core.SubscriptionExpired), formatTime(at), string(core.SubscriptionActive), today.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) querySubscriptions(ctx context.Context, query string, args ...any) ([]core.Subscription, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var result []core.Subscription
	for rows.Next() {
		var (
			sub                  core.Subscription
			start, exp, status   string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&sub.ID, &sub.MemberID, &sub.PlanID, &start, &exp, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		if sub.StartDate, err = core.ParseDate(start); err != nil {
			return nil, err
		}
		if sub.ExpirationDate, err = core.ParseDate(exp); err != nil {
			return nil, err
		}
		sub.Status = core.SubscriptionStatus(status)
		if sub.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if sub.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

// =============================================================================
// LOGS - append-only
// =============================================================================

func (s *Store) AppendAttendance(ctx context.Context, a core.Attendance) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO attendance (id, member_id, at, permitted, reason, staff_id, shift_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.MemberID, formatTime(a.At), a.Permitted, a.Reason, a.StaffID, a.ShiftID,
	)
	if err != nil {
		return fmt.Errorf("failed to append attendance: %w", err)
	}
	return nil
}

func (s *Store) ListAttendance(ctx context.Context, f core.AttendanceFilter) ([]core.Attendance, error) {
	var w where
	if f.MemberID != "" {
		w.add("member_id = ?", f.MemberID)
	}
	if f.PermittedOnly {
		w.add("permitted")
	}
	w.timeRange("at", f.From, f.To)

	stmt := `SELECT id, member_id, at, permitted, reason, staff_id, shift_id FROM attendance` + w.String() + ` ORDER BY at DESC`
	if f.Limit > 0 {
		stmt += ` LIMIT ?`
		w.args = append(w.args, f.Limit)
	}

	rows, err := s.q.QueryContext(ctx, stmt, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var result []core.Attendance
	for rows.Next() {
		var (
			a  core.Attendance
			at string
		)
		if err := rows.Scan(&a.ID, &a.MemberID, &at, &a.Permitted, &a.Reason, &a.StaffID, &a.ShiftID); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		if a.At, err = parseTime(at); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) AppendPayment(ctx context.Context, p core.Payment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payments (id, member_id, plan_id, product_id, quantity, amount_cents, method,
			paid_at, staff_id, shift_id, concept)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MemberID, p.PlanID, p.ProductID, p.Quantity, toCents(p.Amount), string(p.Method),
		formatTime(p.PaidAt), p.StaffID, p.ShiftID, p.Concept,
	)
	if err != nil {
		return fmt.Errorf("failed to append payment: %w", err)
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, f core.PaymentFilter) ([]core.Payment, error) {
	var w where
	if f.MemberID != "" {
		w.add("member_id = ?", f.MemberID)
	}
	if f.ShiftID != "" {
		w.add("shift_id = ?", f.ShiftID)
	}
	if f.Method != "" {
		w.add("method = ?", string(f.Method))
	}
	w.timeRange("paid_at", f.From, f.To)

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, member_id, plan_id, product_id, quantity, amount_cents, method, paid_at,
			staff_id, shift_id, concept
		FROM payments`+w.String()+` ORDER BY paid_at DESC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var result []core.Payment
	for rows.Next() {
		var (
			p      core.Payment
			cents  int64
			method string
			paidAt string
		)
		if err := rows.Scan(&p.ID, &p.MemberID, &p.PlanID, &p.ProductID, &p.Quantity, &cents, &method, &paidAt, &p.StaffID, &p.ShiftID, &p.Concept); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Amount = fromCents(cents)
		p.Method = core.PaymentMethod(method)
		if p.PaidAt, err = parseTime(paidAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// =============================================================================
// SHIFTS
// =============================================================================

const shiftColumns = `id, staff_id, slot, opened_at, closed_at, opening_cents, withdrawals_cents,
	expected_cents, declared_cents, difference_cents, breakdown_json, status`

func (s *Store) CreateShift(ctx context.Context, sh core.Shift) error {
	breakdown, err := encodeBreakdown(sh.Breakdown)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `INSERT INTO shifts (`+shiftColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sh.ID, sh.StaffID, string(sh.Slot), formatTime(sh.OpenedAt), nullTime(sh.ClosedAt),
		toCents(sh.OpeningCash), toCents(sh.CashWithdrawals), toCents(sh.ExpectedCash),
		nullCents(sh.DeclaredCash), nullCents(sh.Difference), breakdown, string(sh.Status),
	)
	switch {
	case isConstraint(err, sqlite3.ErrConstraintUnique):
		return core.ErrShiftAlreadyOpen
	case isConstraint(err, sqlite3.ErrConstraintPrimaryKey):
		return core.Invalid("id", "shift already exists")
	case err != nil:
		return fmt.Errorf("failed to insert shift: %w", err)
	}
	return nil
}

func (s *Store) GetShift(ctx context.Context, id core.ShiftID) (*core.Shift, error) {
	sh, err := scanShift(s.q.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("shift %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}
	return &sh, nil
}

func (s *Store) OpenShiftFor(ctx context.Context, staffID core.StaffID) (*core.Shift, error) {
	sh, err := scanShift(s.q.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE staff_id = ? AND status = ?`, staffID, string(core.ShiftOpen)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("open shift for staff %s: %w", staffID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open shift: %w", err)
	}
	return &sh, nil
}

func (s *Store) ListShifts(ctx context.Context, f core.ShiftFilter) ([]core.Shift, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.StaffID != "" {
		w.add("staff_id = ?", f.StaffID)
	}
	w.timeRange("opened_at", f.From, f.To)

	stmt := `SELECT ` + shiftColumns + ` FROM shifts` + w.String() + ` ORDER BY opened_at DESC`
	if f.Limit > 0 {
		stmt += ` LIMIT ?`
		w.args = append(w.args, f.Limit)
	}

	rows, err := s.q.QueryContext(ctx, stmt, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	var result []core.Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		result = append(result, sh)
	}
	return result, rows.Err()
}

func (s *Store) AddShiftCash(ctx context.Context, id core.ShiftID, delta decimal.Decimal) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE shifts SET expected_cents = expected_cents + ? WHERE id = ? AND status = ?`,
		toCents(delta), id, string(core.ShiftOpen))
	if err != nil {
		return fmt.Errorf("failed to add shift cash: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shiftStateError(ctx, s.q, id)
	}
	return nil
}

func (s *Store) RecordExpense(ctx context.Context, e core.Expense) error {
	return s.atomically(ctx, func(q querier) error {
		cents := toCents(e.Amount)
		res, err := q.ExecContext(ctx, `
			UPDATE shifts SET withdrawals_cents = withdrawals_cents + ?, expected_cents = expected_cents - ?
			WHERE id = ? AND status = ?`,
			cents, cents, e.ShiftID, string(core.ShiftOpen))
		if err != nil {
			return fmt.Errorf("failed to update shift: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return shiftStateError(ctx, q, e.ShiftID)
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO expenses (id, shift_id, amount_cents, concept, at, staff_id)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, e.ShiftID, cents, e.Concept, formatTime(e.At), e.StaffID)
		if err != nil {
			return fmt.Errorf("failed to insert expense: %w", err)
		}
		return nil
	})
}

func (s *Store) ListExpenses(ctx context.Context, shiftID core.ShiftID) ([]core.Expense, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, shift_id, amount_cents, concept, at, staff_id
		FROM expenses WHERE shift_id = ? ORDER BY at, id`, shiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var result []core.Expense
	for rows.Next() {
		var (
			e     core.Expense
			cents int64
			at    string
		)
		if err := rows.Scan(&e.ID, &e.ShiftID, &cents, &e.Concept, &at, &e.StaffID); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		e.Amount = fromCents(cents)
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) CloseShift(ctx context.Context, id core.ShiftID, declared decimal.Decimal, breakdown map[string]int, at time.Time) (*core.Shift, error) {
	encoded, err := encodeBreakdown(breakdown)
	if err != nil {
		return nil, err
	}
	cents := toCents(declared)
	sh, err := scanShift(s.q.QueryRowContext(ctx, `
		UPDATE shifts SET status = ?, closed_at = ?, declared_cents = ?,
			difference_cents = ? - expected_cents, breakdown_json = ?
		WHERE id = ? AND status = ?
		RETURNING `+shiftColumns,
		string(core.ShiftClosed), formatTime(at), cents, cents, encoded, id, string(core.ShiftOpen)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shiftStateError(ctx, s.q, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to close shift: %w", err)
	}
	return &sh, nil
}

// shiftStateError explains why a conditional shift update touched no row.
func shiftStateError(ctx context.Context, q querier, id core.ShiftID) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM shifts WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("shift %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read shift: %w", err)
	}
	return core.ErrShiftNotOpen
}

// =============================================================================
// PRODUCTS
// =============================================================================

const productColumns = `id, name, price_cents, stock, min_stock, category, emoji, active`

// SaveProduct inserts p, or updates the catalog fields of an existing
// product. Stock only changes through DeductStock and RestockProduct.
func (s *Store) SaveProduct(ctx context.Context, p core.Product) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, price_cents = excluded.price_cents, min_stock = excluded.min_stock,
			category = excluded.category, emoji = excluded.emoji, active = excluded.active`,
		p.ID, p.Name, toCents(p.Price), p.Stock, p.MinStock, p.Category, p.Emoji, p.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id core.ProductID) (*core.Product, error) {
	p, err := scanProduct(s.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]core.Product, error) {
	stmt := `SELECT ` + productColumns + ` FROM products`
	if activeOnly {
		stmt += ` WHERE active`
	}
	rows, err := s.q.QueryContext(ctx, stmt+` ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var result []core.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) DeductStock(ctx context.Context, id core.ProductID, qty int) (int, error) {
	var stock int
	err := s.q.QueryRowContext(ctx,
		`UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ? RETURNING stock`,
		qty, id, qty,
	).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		err = s.q.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, id).Scan(&stock)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("product %s: %w", id, core.ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read stock: %w", err)
		}
		return stock, &core.StockError{ProductID: id, Requested: qty, Available: stock}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to deduct stock: %w", err)
	}
	return stock, nil
}

func (s *Store) RestockProduct(ctx context.Context, id core.ProductID, qty int) (int, error) {
	var stock int
	err := s.q.QueryRowContext(ctx,
		`UPDATE products SET stock = stock + ? WHERE id = ? RETURNING stock`, qty, id,
	).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("product %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to restock product: %w", err)
	}
	return stock, nil
}

var _ core.TxStore = (*Store)(nil)

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(sc scanner) (core.Member, error) {
	var (
		m            core.Member
		birth, last  sql.NullString
		status       string
		registeredAt string
	)
	if err := sc.Scan(&m.ID, &m.FirstName, &m.LastName, &m.Phone, &m.PhotoURL, &birth, &status,
		&registeredAt, &m.RegisteredBy, &m.VisitsAvailable, &last); err != nil {
		return core.Member{}, err
	}
	m.Status = core.MemberStatus(status)
	var err error
	if m.RegisteredAt, err = parseTime(registeredAt); err != nil {
		return core.Member{}, err
	}
	if birth.Valid {
		d, err := core.ParseDate(birth.String)
		if err != nil {
			return core.Member{}, err
		}
		m.BirthDate = &d
	}
	if m.LastVisitAt, err = parseNullTime(last); err != nil {
		return core.Member{}, err
	}
	return m, nil
}

func scanPlan(sc scanner) (core.Plan, error) {
	var (
		p        core.Plan
		cents    int64
		category string
	)
	if err := sc.Scan(&p.ID, &p.Name, &cents, &p.DurationDays, &category, &p.CreditsGranted, &p.Active); err != nil {
		return core.Plan{}, err
	}
	p.Price = fromCents(cents)
	p.Category = core.PlanCategory(category)
	return p, nil
}

func scanProduct(sc scanner) (core.Product, error) {
	var (
		p     core.Product
		cents int64
	)
	if err := sc.Scan(&p.ID, &p.Name, &cents, &p.Stock, &p.MinStock, &p.Category, &p.Emoji, &p.Active); err != nil {
		return core.Product{}, err
	}
	p.Price = fromCents(cents)
	return p, nil
}

func scanShift(sc scanner) (core.Shift, error) {
	var (
		sh                             core.Shift
		slot, openedAt, status         string
		closedAt, breakdown            sql.NullString
		opening, withdrawals, expected int64
		declared, difference           sql.NullInt64
	)
	if err := sc.Scan(&sh.ID, &sh.StaffID, &slot, &openedAt, &closedAt, &opening, &withdrawals,
		&expected, &declared, &difference, &breakdown, &status); err != nil {
		return core.Shift{}, err
	}
	sh.Slot = core.ShiftSlot(slot)
	sh.Status = core.ShiftStatus(status)
	sh.OpeningCash = fromCents(opening)
	sh.CashWithdrawals = fromCents(withdrawals)
	sh.ExpectedCash = fromCents(expected)
	if declared.Valid {
		d := fromCents(declared.Int64)
		sh.DeclaredCash = &d
	}
	if difference.Valid {
		d := fromCents(difference.Int64)
		sh.Difference = &d
	}
	var err error
	if sh.OpenedAt, err = parseTime(openedAt); err != nil {
		return core.Shift{}, err
	}
	if sh.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return core.Shift{}, err
	}
	if breakdown.Valid && breakdown.String != "" {
		if err := json.Unmarshal([]byte(breakdown.String), &sh.Breakdown); err != nil {
			return core.Shift{}, fmt.Errorf("invalid breakdown: %w", err)
		}
	}
	return sh, nil
}

// =============================================================================
// HELPERS
// =============================================================================

type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) timeRange(column string, from, to *time.Time) {
	if from != nil {
		w.add(column+" >= ?", formatTime(*from))
	}
	if to != nil {
		w.add(column+" <= ?", formatTime(*to))
	}
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

func nullCents(d *decimal.Decimal) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toCents(*d), Valid: true}
}

// formatTime renders t in UTC with fixed-width nanoseconds so stored
// timestamps sort lexically.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullDate(d *core.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func encodeBreakdown(b map[string]int) (sql.NullString, error) {
	if len(b) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("invalid breakdown: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func fold(s string) string {
	return strings.ToLower(s)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func expectRow(res sql.Result, kind string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", kind, id, core.ErrNotFound)
	}
	return nil
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == code
}
