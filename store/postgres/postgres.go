/*
Package postgres provides a PostgreSQL implementation of core.TxStore using
pgx.

PURPOSE:
  Shared persistence when several front-desk terminals use one database.
  Behaves exactly like store/sqlite; the conformance suite in
  core/store/storetest runs against both.

MONEY:
  BIGINT cents, as in the SQLite store, so counters are updated with
  single conditional UPDATE statements.

CONCURRENCY:
  Conditional updates (WHERE visits_available > 0, WHERE status = 'open')
  settle races between terminals in the database. The partial unique index
  idx_shifts_one_open enforces one open drawer per staff member.

USAGE:
  if err := postgres.Migrate(ctx, dsn); err != nil { ... }
  pool, err := pgxpool.New(ctx, dsn)
  st := postgres.NewStore(pool)

SEE ALSO:
  - core/store.go: interface definitions
  - store/sqlite: single-file variant
*/
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/warp/frontdesk/core"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	oneOpenShiftIdx     = "idx_shifts_one_open"
)

// Migrate applies the embedded migrations to the database at dsn.
func Migrate(ctx context.Context, dsn string) error {
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// Connect opens a pool and checks the connection.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
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
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{pool: s.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) atomically(ctx context.Context, fn func(q querier) error) error {
	if s.inTx {
		return fn(s.q)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// =============================================================================
// MEMBERS
// =============================================================================

const memberColumns = `id, first_name, last_name, phone, photo_url, birth_date, status,
	registered_at, registered_by, visits_available, last_visit_at`

func (s *Store) CreateMember(ctx context.Context, m core.Member) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO members (id, first_name, last_name, first_name_fold, last_name_fold, phone, photo_url,
			birth_date, status, registered_at, registered_by, visits_available, last_visit_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		string(m.ID), m.FirstName, m.LastName, strings.ToLower(m.FirstName), strings.ToLower(m.LastName),
		m.Phone, m.PhotoURL, datePtr(m.BirthDate), string(m.Status), m.RegisteredAt,
		string(m.RegisteredBy), m.VisitsAvailable, m.LastVisitAt,
	)
	if isUnique(err, "") {
		return core.Invalid("id", "member already exists")
	}
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, id core.MemberID) (*core.Member, error) {
	m, err := scanMember(s.q.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("member %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &m, nil
}

func (s *Store) FindMembers(ctx context.Context, query string, limit int) ([]core.Member, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	pattern := "%" + escapeLike(q) + "%"

	stmt := `SELECT ` + memberColumns + ` FROM members
		WHERE $1 = '' OR first_name_fold LIKE $2 ESCAPE '\' OR last_name_fold LIKE $2 ESCAPE '\'
		ORDER BY last_name, first_name, id`
	args := []any{q, pattern}
	if limit > 0 {
		stmt += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.q.Query(ctx, stmt, args...)
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
	err := s.q.QueryRow(ctx,
		`UPDATE members SET visits_available = visits_available + $1 WHERE id = $2 RETURNING visits_available`,
		qty, string(id),
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("member %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to add visits: %w", err)
	}
	return balance, nil
}

func (s *Store) ConsumeVisit(ctx context.Context, id core.MemberID, at time.Time) (int, error) {
	var balance int
	err := s.q.QueryRow(ctx, `
		UPDATE members SET visits_available = visits_available - 1, last_visit_at = $1
		WHERE id = $2 AND visits_available > 0
		RETURNING visits_available`,
		at, string(id),
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		err = s.q.QueryRow(ctx, `SELECT visits_available FROM members WHERE id = $1`, string(id)).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
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
	tag, err := s.q.Exec(ctx, `UPDATE members SET last_visit_at = $1 WHERE id = $2`, at, string(id))
	if err != nil {
		return fmt.Errorf("failed to update last visit: %w", err)
	}
	return expectRow(tag, "member", id)
}

// UpdateMember rewrites the profile fields of m. Visit balance and
// registration data are left alone.
func (s *Store) UpdateMember(ctx context.Context, m core.Member) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE members SET first_name = $1, last_name = $2, first_name_fold = $3, last_name_fold = $4,
			phone = $5, photo_url = $6, birth_date = $7, status = $8
		WHERE id = $9`,
		m.FirstName, m.LastName, strings.ToLower(m.FirstName), strings.ToLower(m.LastName),
		m.Phone, m.PhotoURL, datePtr(m.BirthDate), string(m.Status), string(m.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return expectRow(tag, "member", m.ID)
}

func (s *Store) DeleteMember(ctx context.Context, id core.MemberID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM members WHERE id = $1`, string(id))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("member %s: %w", id, core.ErrHasHistory)
	}
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return expectRow(tag, "member", id)
}

// =============================================================================
// PLANS
// =============================================================================

const planColumns = `id, name, price_cents, duration_days, category, credits_granted, active`

// CreatePlan inserts p, or replaces the plan with the same id.
func (s *Store) CreatePlan(ctx context.Context, p core.Plan) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO plans (`+planColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price_cents = EXCLUDED.price_cents,
			duration_days = EXCLUDED.duration_days, category = EXCLUDED.category,
			credits_granted = EXCLUDED.credits_granted, active = EXCLUDED.active`,
		string(p.ID), p.Name, toCents(p.Price), p.DurationDays, string(p.Category), p.CreditsGranted, p.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, id core.PlanID) (*core.Plan, error) {
	p, err := scanPlan(s.q.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &p, nil
}

func (s *Store) ListPlans(ctx context.Context, activeOnly bool) ([]core.Plan, error) {
	rows, err := s.q.Query(ctx, `SELECT `+planColumns+` FROM plans WHERE active OR NOT $1 ORDER BY name`, activeOnly)
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
	tag, err := s.q.Exec(ctx, `UPDATE plans SET active = $1 WHERE id = $2`, active, string(id))
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	return expectRow(tag, "plan", id)
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

const subscriptionColumns = `id, member_id, plan_id, start_date, expiration_date, status, created_at, updated_at`

func (s *Store) CreateSubscription(ctx context.Context, sub core.Subscription) error {
	_, err := s.q.Exec(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(sub.ID), string(sub.MemberID), string(sub.PlanID), sub.StartDate.In(time.UTC),
		sub.ExpirationDate.In(time.UTC), string(sub.Status), sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, memberID core.MemberID) ([]core.Subscription, error) {
	return s.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE member_id = $1 ORDER BY expiration_date DESC, created_at DESC`, string(memberID))
}

func (s *Store) ExtendSubscription(ctx context.Context, id core.SubscriptionID, planID core.PlanID, expiration core.Date, at time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE subscriptions SET plan_id = $1, expiration_date = $2, status = $3, updated_at = $4
		WHERE id = $5`,
		string(planID), expiration.In(time.UTC), string(core.SubscriptionActive), at, string(id),
	)
	if err != nil {
		return fmt.Errorf("failed to extend subscription: %w", err)
	}
	return expectRow(tag, "subscription", id)
}

func (s *Store) SetSubscriptionExpiration(ctx context.Context, id core.SubscriptionID, expiration core.Date, status core.SubscriptionStatus, at time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE subscriptions SET expiration_date = $1, status = $2, updated_at = $3 WHERE id = $4`,
		expiration.In(time.UTC), string(status), at, string(id),
	)
	if err != nil {
		return fmt.Errorf("failed to set expiration: %w", err)
	}
	return expectRow(tag, "subscription", id)
}

func (s *Store) ListExpiring(ctx context.Context, from, to core.Date) ([]core.Subscription, error) {
	return s.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = $1 AND expiration_date BETWEEN $2 AND $3
		ORDER BY expiration_date ASC, id`,
		string(core.SubscriptionActive), from.In(time.UTC), to.In(time.UTC))
}

func (s *Store) ExpireOverdue(ctx context.Context, today core.Date, at time.Time) (int, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE subscriptions SET status = $1, updated_at = $2
		WHERE status = $3 AND expiration_date < $4`,
		string(core.SubscriptionExpired), at, string(core.SubscriptionActive), today.In(time.UTC),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) querySubscriptions(ctx context.Context, query string, args ...any) ([]core.Subscription, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var result []core.Subscription
	for rows.Next() {
		var (
			sub                  core.Subscription
			id, memberID, planID string
			start, exp           time.Time
			status               string
		)
		if err := rows.Scan(&id, &memberID, &planID, &start, &exp, &status, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		sub.ID = core.SubscriptionID(id)
		sub.MemberID = core.MemberID(memberID)
		sub.PlanID = core.PlanID(planID)
		sub.StartDate = core.DateOf(start)
		sub.ExpirationDate = core.DateOf(exp)
		sub.Status = core.SubscriptionStatus(status)
		result = append(result, sub)
	}
	return result, rows.Err()
}

// =============================================================================
// LOGS - append-only
// =============================================================================

func (s *Store) AppendAttendance(ctx context.Context, a core.Attendance) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO attendance (id, member_id, at, permitted, reason, staff_id, shift_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, string(a.MemberID), a.At, a.Permitted, a.Reason, string(a.StaffID), string(a.ShiftID),
	)
	if err != nil {
		return fmt.Errorf("failed to append attendance: %w", err)
	}
	return nil
}

func (s *Store) ListAttendance(ctx context.Context, f core.AttendanceFilter) ([]core.Attendance, error) {
	var w where
	if f.MemberID != "" {
		w.add("member_id = ?", string(f.MemberID))
	}
	if f.PermittedOnly {
		w.add("permitted")
	}
	w.timeRange("at", f.From, f.To)

	stmt := `SELECT id, member_id, at, permitted, reason, staff_id, shift_id FROM attendance` + w.String() + ` ORDER BY at DESC`
	if f.Limit > 0 {
		stmt += " LIMIT " + w.next(f.Limit)
	}

	rows, err := s.q.Query(ctx, stmt, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var result []core.Attendance
	for rows.Next() {
		var (
			a                          core.Attendance
			memberID, staffID, shiftID string
		)
		if err := rows.Scan(&a.ID, &memberID, &a.At, &a.Permitted, &a.Reason, &staffID, &shiftID); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		a.MemberID = core.MemberID(memberID)
		a.StaffID = core.StaffID(staffID)
		a.ShiftID = core.ShiftID(shiftID)
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) AppendPayment(ctx context.Context, p core.Payment) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO payments (id, member_id, plan_id, product_id, quantity, amount_cents, method,
			paid_at, staff_id, shift_id, concept)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, string(p.MemberID), string(p.PlanID), string(p.ProductID), p.Quantity, toCents(p.Amount),
		string(p.Method), p.PaidAt, string(p.StaffID), string(p.ShiftID), p.Concept,
	)
	if err != nil {
		return fmt.Errorf("failed to append payment: %w", err)
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, f core.PaymentFilter) ([]core.Payment, error) {
	var w where
	if f.MemberID != "" {
		w.add("member_id = ?", string(f.MemberID))
	}
	if f.ShiftID != "" {
		w.add("shift_id = ?", string(f.ShiftID))
	}
	if f.Method != "" {
		w.add("method = ?", string(f.Method))
	}
	w.timeRange("paid_at", f.From, f.To)

	rows, err := s.q.Query(ctx, `
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
			p                                                     core.Payment
			memberID, planID, productID, method, staffID, shiftID string
			cents                                                 int64
		)
		if err := rows.Scan(&p.ID, &memberID, &planID, &productID, &p.Quantity, &cents, &method,
			&p.PaidAt, &staffID, &shiftID, &p.Concept); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.MemberID = core.MemberID(memberID)
		p.PlanID = core.PlanID(planID)
		p.ProductID = core.ProductID(productID)
		p.Amount = fromCents(cents)
		p.Method = core.PaymentMethod(method)
		p.StaffID = core.StaffID(staffID)
		p.ShiftID = core.ShiftID(shiftID)
		result = append(result, p)
	}
	return result, rows.Err()
}

// =============================================================================
// SHIFTS
// =============================================================================

const shiftColumns = `id, staff_id, slot, opened_at, closed_at, opening_cents, withdrawals_cents,
	expected_cents, declared_cents, difference_cents, breakdown, status`

func (s *Store) CreateShift(ctx context.Context, sh core.Shift) error {
	breakdown, err := encodeBreakdown(sh.Breakdown)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, `INSERT INTO shifts (`+shiftColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(sh.ID), string(sh.StaffID), string(sh.Slot), sh.OpenedAt, sh.ClosedAt,
		toCents(sh.OpeningCash), toCents(sh.CashWithdrawals), toCents(sh.ExpectedCash),
		centsPtr(sh.DeclaredCash), centsPtr(sh.Difference), breakdown, string(sh.Status),
	)
	switch {
	case isUnique(err, oneOpenShiftIdx):
		return core.ErrShiftAlreadyOpen
	case isUnique(err, ""):
		return core.Invalid("id", "shift already exists")
	case err != nil:
		return fmt.Errorf("failed to insert shift: %w", err)
	}
	return nil
}

func (s *Store) GetShift(ctx context.Context, id core.ShiftID) (*core.Shift, error) {
	sh, err := scanShift(s.q.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("shift %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}
	return &sh, nil
}

func (s *Store) OpenShiftFor(ctx context.Context, staffID core.StaffID) (*core.Shift, error) {
	sh, err := scanShift(s.q.QueryRow(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE staff_id = $1 AND status = $2`,
		string(staffID), string(core.ShiftOpen)))
	if errors.Is(err, pgx.ErrNoRows) {
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
		w.add("staff_id = ?", string(f.StaffID))
	}
	w.timeRange("opened_at", f.From, f.To)

	stmt := `SELECT ` + shiftColumns + ` FROM shifts` + w.String() + ` ORDER BY opened_at DESC`
	if f.Limit > 0 {
		stmt += " LIMIT " + w.next(f.Limit)
	}

	rows, err := s.q.Query(ctx, stmt, w.args...)
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
	tag, err := s.q.Exec(ctx,
		`UPDATE shifts SET expected_cents = expected_cents + $1 WHERE id = $2 AND status = $3`,
		toCents(delta), string(id), string(core.ShiftOpen))
	if err != nil {
		return fmt.Errorf("failed to add shift cash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shiftStateError(ctx, s.q, id)
	}
	return nil
}

func (s *Store) RecordExpense(ctx context.Context, e core.Expense) error {
	return s.atomically(ctx, func(q querier) error {
		cents := toCents(e.Amount)
		tag, err := q.Exec(ctx, `
			UPDATE shifts SET withdrawals_cents = withdrawals_cents + $1, expected_cents = expected_cents - $1
			WHERE id = $2 AND status = $3`,
			cents, string(e.ShiftID), string(core.ShiftOpen))
		if err != nil {
			return fmt.Errorf("failed to update shift: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shiftStateError(ctx, q, e.ShiftID)
		}
		_, err = q.Exec(ctx, `
			INSERT INTO expenses (id, shift_id, amount_cents, concept, at, staff_id)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, string(e.ShiftID), cents, e.Concept, e.At, string(e.StaffID))
		if err != nil {
			return fmt.Errorf("failed to insert expense: %w", err)
		}
		return nil
	})
}

func (s *Store) ListExpenses(ctx context.Context, shiftID core.ShiftID) ([]core.Expense, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, shift_id, amount_cents, concept, at, staff_id
		FROM expenses WHERE shift_id = $1 ORDER BY at, id`, string(shiftID))
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var result []core.Expense
	for rows.Next() {
		var (
			e            core.Expense
			shift, staff string
			cents        int64
		)
		if err := rows.Scan(&e.ID, &shift, &cents, &e.Concept, &e.At, &staff); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		e.ShiftID = core.ShiftID(shift)
		e.StaffID = core.StaffID(staff)
		e.Amount = fromCents(cents)
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) CloseShift(ctx context.Context, id core.ShiftID, declared decimal.Decimal, breakdown map[string]int, at time.Time) (*core.Shift, error) {
	encoded, err := encodeBreakdown(breakdown)
	if err != nil {
		return nil, err
	}
	sh, err := scanShift(s.q.QueryRow(ctx, `
		UPDATE shifts SET status = $1, closed_at = $2, declared_cents = $3,
			difference_cents = $3 - expected_cents, breakdown = $4
		WHERE id = $5 AND status = $6
		RETURNING `+shiftColumns,
		string(core.ShiftClosed), at, toCents(declared), encoded, string(id), string(core.ShiftOpen)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shiftStateError(ctx, s.q, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to close shift: %w", err)
	}
	return &sh, nil
}

func shiftStateError(ctx context.Context, q querier, id core.ShiftID) error {
	var status string
	err := q.QueryRow(ctx, `SELECT status FROM shifts WHERE id = $1`, string(id)).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
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
	_, err := s.q.Exec(ctx, `
		INSERT INTO products (`+productColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price_cents = EXCLUDED.price_cents, min_stock = EXCLUDED.min_stock,
			category = EXCLUDED.category, emoji = EXCLUDED.emoji, active = EXCLUDED.active`,
		string(p.ID), p.Name, toCents(p.Price), p.Stock, p.MinStock, p.Category, p.Emoji, p.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id core.ProductID) (*core.Product, error) {
	p, err := scanProduct(s.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]core.Product, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE active OR NOT $1 ORDER BY name, id`, activeOnly)
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
	err := s.q.QueryRow(ctx,
		`UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1 RETURNING stock`,
		qty, string(id),
	).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		err = s.q.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, string(id)).Scan(&stock)
		if errors.Is(err, pgx.ErrNoRows) {
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
	err := s.q.QueryRow(ctx,
		`UPDATE products SET stock = stock + $1 WHERE id = $2 RETURNING stock`, qty, string(id),
	).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
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

func scanMember(row pgx.Row) (core.Member, error) {
	var (
		m                      core.Member
		id, status, registered string
		birth                  *time.Time
	)
	if err := row.Scan(&id, &m.FirstName, &m.LastName, &m.Phone, &m.PhotoURL, &birth, &status,
		&m.RegisteredAt, &registered, &m.VisitsAvailable, &m.LastVisitAt); err != nil {
		return core.Member{}, err
	}
	m.ID = core.MemberID(id)
	m.Status = core.MemberStatus(status)
	m.RegisteredBy = core.StaffID(registered)
	if birth != nil {
		d := core.DateOf(*birth)
		m.BirthDate = &d
	}
	return m, nil
}

func scanPlan(row pgx.Row) (core.Plan, error) {
	var (
		p            core.Plan
		id, category string
		cents        int64
	)
	if err := row.Scan(&id, &p.Name, &cents, &p.DurationDays, &category, &p.CreditsGranted, &p.Active); err != nil {
		return core.Plan{}, err
	}
	p.ID = core.PlanID(id)
	p.Price = fromCents(cents)
	p.Category = core.PlanCategory(category)
	return p, nil
}

func scanProduct(row pgx.Row) (core.Product, error) {
	var (
		p     core.Product
		id    string
		cents int64
	)
	if err := row.Scan(&id, &p.Name, &cents, &p.Stock, &p.MinStock, &p.Category, &p.Emoji, &p.Active); err != nil {
		return core.Product{}, err
	}
	p.ID = core.ProductID(id)
	p.Price = fromCents(cents)
	return p, nil
}

func scanShift(row pgx.Row) (core.Shift, error) {
	var (
		sh                             core.Shift
		id, staff, slot, status        string
		opening, withdrawals, expected int64
		declared, difference           *int64
		breakdown                      []byte
	)
	if err := row.Scan(&id, &staff, &slot, &sh.OpenedAt, &sh.ClosedAt, &opening, &withdrawals,
		&expected, &declared, &difference, &breakdown, &status); err != nil {
		return core.Shift{}, err
	}
	sh.ID = core.ShiftID(id)
	sh.StaffID = core.StaffID(staff)
	sh.Slot = core.ShiftSlot(slot)
	sh.Status = core.ShiftStatus(status)
	sh.OpeningCash = fromCents(opening)
	sh.CashWithdrawals = fromCents(withdrawals)
	sh.ExpectedCash = fromCents(expected)
	if declared != nil {
		d := fromCents(*declared)
		sh.DeclaredCash = &d
	}
	if difference != nil {
		d := fromCents(*difference)
		sh.Difference = &d
	}
	if len(breakdown) > 0 && string(breakdown) != "null" {
		if err := json.Unmarshal(breakdown, &sh.Breakdown); err != nil {
			return core.Shift{}, fmt.Errorf("invalid breakdown: %w", err)
		}
	}
	return sh, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// where builds a conjunction with numbered placeholders. Conditions are
// written with "?" and renumbered as they are added.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	for _, a := range args {
		cond = strings.Replace(cond, "?", w.next(a), 1)
	}
	w.conds = append(w.conds, cond)
}

// next appends arg and returns its placeholder.
func (w *where) next(arg any) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *where) timeRange(column string, from, to *time.Time) {
	if from != nil {
		w.add(column+" >= ?", *from)
	}
	if to != nil {
		w.add(column+" <= ?", *to)
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

func centsPtr(d *decimal.Decimal) *int64 {
	if d == nil {
		return nil
	}
	c := toCents(*d)
	return &c
}

func datePtr(d *core.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.In(time.UTC)
	return &t
}

func encodeBreakdown(b map[string]int) (any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("invalid breakdown: %w", err)
	}
	return string(data), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func expectRow(tag pgconn.CommandTag, kind string, id any) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %v: %w", kind, id, core.ErrNotFound)
	}
	return nil
}

// isUnique reports a unique violation, optionally on a named constraint.
func isUnique(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
