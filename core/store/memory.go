// Package store provides the in-memory core.Store implementation.
package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/frontdesk/core"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data state

	// faults makes the named method fail once with the given error.
	faults map[string]error
}

type state struct {
	members       map[core.MemberID]core.Member
	plans         map[core.PlanID]core.Plan
	subscriptions map[core.SubscriptionID]core.Subscription
	attendance    []core.Attendance
	payments      []core.Payment
	shifts        map[core.ShiftID]core.Shift
	expenses      []core.Expense
	products      map[core.ProductID]core.Product
}

func NewMemory() *Memory {
	return &Memory{
		data: state{
			members:       make(map[core.MemberID]core.Member),
			plans:         make(map[core.PlanID]core.Plan),
			subscriptions: make(map[core.SubscriptionID]core.Subscription),
			shifts:        make(map[core.ShiftID]core.Shift),
			products:      make(map[core.ProductID]core.Product),
		},
		faults: make(map[string]error),
	}
}

// FailNext makes the next call of method return err.
func (m *Memory) FailNext(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[method] = err
}

func (m *Memory) fault(method string) error {
	err, ok := m.faults[method]
	if ok {
		delete(m.faults, method)
	}
	return err
}

func (s state) clone() state {
	c := state{
		members:       make(map[core.MemberID]core.Member, len(s.members)),
		plans:         maps.Clone(s.plans),
		subscriptions: maps.Clone(s.subscriptions),
		attendance:    append([]core.Attendance(nil), s.attendance...),
		payments:      append([]core.Payment(nil), s.payments...),
		shifts:        make(map[core.ShiftID]core.Shift, len(s.shifts)),
		expenses:      append([]core.Expense(nil), s.expenses...),
		products:      maps.Clone(s.products),
	}
	for id, mem := range s.members {
		c.members[id] = cloneMember(mem)
	}
	for id, sh := range s.shifts {
		c.shifts[id] = cloneShift(sh)
	}
	return c
}

func cloneMember(m core.Member) core.Member {
	if m.LastVisitAt != nil {
		t := *m.LastVisitAt
		m.LastVisitAt = &t
	}
	if m.BirthDate != nil {
		d := *m.BirthDate
		m.BirthDate = &d
	}
	return m
}

func cloneShift(s core.Shift) core.Shift {
	s.Breakdown = maps.Clone(s.Breakdown)
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		s.ClosedAt = &t
	}
	if s.DeclaredCash != nil {
		d := *s.DeclaredCash
		s.DeclaredCash = &d
	}
	if s.Difference != nil {
		d := *s.Difference
		s.Difference = &d
	}
	return s
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, core.ErrNotFound)
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

// =============================================================================
// MEMBERS
// =============================================================================

func (m *Memory) CreateMember(_ context.Context, mem core.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("CreateMember"); err != nil {
		return err
	}
	if _, ok := m.data.members[mem.ID]; ok {
		return core.Invalid("id", "member already exists")
	}
	m.data.members[mem.ID] = cloneMember(mem)
	return nil
}

func (m *Memory) GetMember(_ context.Context, id core.MemberID) (*core.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("GetMember"); err != nil {
		return nil, err
	}
	mem, ok := m.data.members[id]
	if !ok {
		return nil, notFound("member", id)
	}
	c := cloneMember(mem)
	return &c, nil
}

func (m *Memory) FindMembers(_ context.Context, query string, limit int) ([]core.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("FindMembers"); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	var result []core.Member
	for _, mem := range m.data.members {
		if q == "" ||
			strings.Contains(strings.ToLower(mem.FirstName), q) ||
			strings.Contains(strings.ToLower(mem.LastName), q) {
			result = append(result, cloneMember(mem))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].LastName != result[j].LastName {
			return result[i].LastName < result[j].LastName
		}
		if result[i].FirstName != result[j].FirstName {
			return result[i].FirstName < result[j].FirstName
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Memory) AddVisits(_ context.Context, id core.MemberID, qty int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("AddVisits"); err != nil {
		return 0, err
	}
	mem, ok := m.data.members[id]
	if !ok {
		return 0, notFound("member", id)
	}
	mem.VisitsAvailable += qty
	m.data.members[id] = mem
	return mem.VisitsAvailable, nil
}

func (m *Memory) ConsumeVisit(_ context.Context, id core.MemberID, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ConsumeVisit"); err != nil {
		return 0, err
	}
	mem, ok := m.data.members[id]
	if !ok {
		return 0, notFound("member", id)
	}
	if mem.VisitsAvailable <= 0 {
		return mem.VisitsAvailable, core.ErrNoCredit
	}
	mem.VisitsAvailable--
	mem.LastVisitAt = &at
	m.data.members[id] = mem
	return mem.VisitsAvailable, nil
}

func (m *Memory) TouchLastVisit(_ context.Context, id core.MemberID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("TouchLastVisit"); err != nil {
		return err
	}
	mem, ok := m.data.members[id]
	if !ok {
		return notFound("member", id)
	}
	mem.LastVisitAt = &at
	m.data.members[id] = mem
	return nil
}

func (m *Memory) UpdateMember(_ context.Context, mem core.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("UpdateMember"); err != nil {
		return err
	}
	cur, ok := m.data.members[mem.ID]
	if !ok {
		return notFound("member", mem.ID)
	}
	cur.FirstName = mem.FirstName
	cur.LastName = mem.LastName
	cur.Phone = mem.Phone
	cur.PhotoURL = mem.PhotoURL
	cur.BirthDate = mem.BirthDate
	cur.Status = mem.Status
	m.data.members[mem.ID] = cloneMember(cur)
	return nil
}

func (m *Memory) DeleteMember(_ context.Context, id core.MemberID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("DeleteMember"); err != nil {
		return err
	}
	if _, ok := m.data.members[id]; !ok {
		return notFound("member", id)
	}
	delete(m.data.members, id)
	return nil
}

// =============================================================================
// PLANS
// =============================================================================

func (m *Memory) CreatePlan(_ context.Context, p core.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("CreatePlan"); err != nil {
		return err
	}
	m.data.plans[p.ID] = p
	return nil
}

func (m *Memory) GetPlan(_ context.Context, id core.PlanID) (*core.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("GetPlan"); err != nil {
		return nil, err
	}
	p, ok := m.data.plans[id]
	if !ok {
		return nil, notFound("plan", id)
	}
	return &p, nil
}

func (m *Memory) ListPlans(_ context.Context, activeOnly bool) ([]core.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListPlans"); err != nil {
		return nil, err
	}
	var result []core.Plan
	for _, p := range m.data.plans {
		if activeOnly && !p.Active {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) SetPlanActive(_ context.Context, id core.PlanID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("SetPlanActive"); err != nil {
		return err
	}
	p, ok := m.data.plans[id]
	if !ok {
		return notFound("plan", id)
	}
	p.Active = active
	m.data.plans[id] = p
	return nil
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

func (m *Memory) CreateSubscription(_ context.Context, s core.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("CreateSubscription"); err != nil {
		return err
	}
	m.data.subscriptions[s.ID] = s
	return nil
}

func (m *Memory) ListSubscriptions(_ context.Context, memberID core.MemberID) ([]core.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListSubscriptions"); err != nil {
		return nil, err
	}
	var result []core.Subscription
	for _, s := range m.data.subscriptions {
		if s.MemberID == memberID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ExpirationDate.Equal(result[j].ExpirationDate) {
			return result[i].ExpirationDate.After(result[j].ExpirationDate)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) ExtendSubscription(_ context.Context, id core.SubscriptionID, planID core.PlanID, expiration core.Date, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ExtendSubscription"); err != nil {
		return err
	}
	s, ok := m.data.subscriptions[id]
	if !ok {
		return notFound("subscription", id)
	}
	s.PlanID = planID
	s.ExpirationDate = expiration
	s.Status = core.SubscriptionActive
	s.UpdatedAt = at
	m.data.subscriptions[id] = s
	return nil
}

func (m *Memory) SetSubscriptionExpiration(_ context.Context, id core.SubscriptionID, expiration core.Date, status core.SubscriptionStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("SetSubscriptionExpiration"); err != nil {
		return err
	}
	s, ok := m.data.subscriptions[id]
	if !ok {
		return notFound("subscription", id)
	}
	s.ExpirationDate = expiration
	s.Status = status
	s.UpdatedAt = at
	m.data.subscriptions[id] = s
	return nil
}

func (m *Memory) ListExpiring(_ context.Context, from, to core.Date) ([]core.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListExpiring"); err != nil {
		return nil, err
	}
	var result []core.Subscription
	for _, s := range m.data.subscriptions {
		if s.Status == core.SubscriptionActive &&
			s.ExpirationDate.AfterOrEqual(from) && s.ExpirationDate.BeforeOrEqual(to) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpirationDate.Before(result[j].ExpirationDate)
	})
	return result, nil
}

func (m *Memory) ExpireOverdue(_ context.Context, today core.Date, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ExpireOverdue"); err != nil {
		return 0, err
	}
	n := 0
	for id, s := range m.data.subscriptions {
		if s.Status == core.SubscriptionActive && s.ExpirationDate.Before(today) {
			s.Status = core.SubscriptionExpired
			s.UpdatedAt = at
			m.data.subscriptions[id] = s
			n++
		}
	}
	return n, nil
}

// =============================================================================
// LOGS - append-only
// =============================================================================

func (m *Memory) AppendAttendance(_ context.Context, a core.Attendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("AppendAttendance"); err != nil {
		return err
	}
	m.data.attendance = append(m.data.attendance, a)
	return nil
}

func (m *Memory) ListAttendance(_ context.Context, f core.AttendanceFilter) ([]core.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListAttendance"); err != nil {
		return nil, err
	}
	var result []core.Attendance
	for i := len(m.data.attendance) - 1; i >= 0; i-- {
		a := m.data.attendance[i]
		if f.MemberID != "" && a.MemberID != f.MemberID {
			continue
		}
		if f.PermittedOnly && !a.Permitted {
			continue
		}
		if !inRange(a.At, f.From, f.To) {
			continue
		}
		result = append(result, a)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].At.After(result[j].At) })
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (m *Memory) AppendPayment(_ context.Context, p core.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("AppendPayment"); err != nil {
		return err
	}
	m.data.payments = append(m.data.payments, p)
	return nil
}

func (m *Memory) ListPayments(_ context.Context, f core.PaymentFilter) ([]core.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListPayments"); err != nil {
		return nil, err
	}
	var result []core.Payment
	for i := len(m.data.payments) - 1; i >= 0; i-- {
		p := m.data.payments[i]
		if f.MemberID != "" && p.MemberID != f.MemberID {
			continue
		}
		if f.ShiftID != "" && p.ShiftID != f.ShiftID {
			continue
		}
		if f.Method != "" && p.Method != f.Method {
			continue
		}
		if !inRange(p.PaidAt, f.From, f.To) {
			continue
		}
		result = append(result, p)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].PaidAt.After(result[j].PaidAt) })
	return result, nil
}

// =============================================================================
// SHIFTS
// =============================================================================

func (m *Memory) CreateShift(_ context.Context, s core.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("CreateShift"); err != nil {
		return err
	}
	for _, existing := range m.data.shifts {
		if existing.StaffID == s.StaffID && existing.Status == core.ShiftOpen {
			return core.ErrShiftAlreadyOpen
		}
	}
	m.data.shifts[s.ID] = cloneShift(s)
	return nil
}

func (m *Memory) GetShift(_ context.Context, id core.ShiftID) (*core.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("GetShift"); err != nil {
		return nil, err
	}
	s, ok := m.data.shifts[id]
	if !ok {
		return nil, notFound("shift", id)
	}
	c := cloneShift(s)
	return &c, nil
}

func (m *Memory) OpenShiftFor(_ context.Context, staffID core.StaffID) (*core.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("OpenShiftFor"); err != nil {
		return nil, err
	}
	for _, s := range m.data.shifts {
		if s.StaffID == staffID && s.Status == core.ShiftOpen {
			c := cloneShift(s)
			return &c, nil
		}
	}
	return nil, notFound("open shift for staff", staffID)
}

func (m *Memory) ListShifts(_ context.Context, f core.ShiftFilter) ([]core.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListShifts"); err != nil {
		return nil, err
	}
	var result []core.Shift
	for _, s := range m.data.shifts {
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.StaffID != "" && s.StaffID != f.StaffID {
			continue
		}
		if !inRange(s.OpenedAt, f.From, f.To) {
			continue
		}
		result = append(result, cloneShift(s))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OpenedAt.After(result[j].OpenedAt) })
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (m *Memory) openShiftLocked(id core.ShiftID) (core.Shift, error) {
	s, ok := m.data.shifts[id]
	if !ok {
		return core.Shift{}, notFound("shift", id)
	}
	if s.Status != core.ShiftOpen {
		return core.Shift{}, core.ErrShiftNotOpen
	}
	return s, nil
}

func (m *Memory) AddShiftCash(_ context.Context, id core.ShiftID, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("AddShiftCash"); err != nil {
		return err
	}
	s, err := m.openShiftLocked(id)
	if err != nil {
		return err
	}
	s.ExpectedCash = s.ExpectedCash.Add(delta)
	m.data.shifts[id] = s
	return nil
}

func (m *Memory) RecordExpense(_ context.Context, e core.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("RecordExpense"); err != nil {
		return err
	}
	s, err := m.openShiftLocked(e.ShiftID)
	if err != nil {
		return err
	}
	s.CashWithdrawals = s.CashWithdrawals.Add(e.Amount)
	s.ExpectedCash = s.ExpectedCash.Sub(e.Amount)
	m.data.shifts[e.ShiftID] = s
	m.data.expenses = append(m.data.expenses, e)
	return nil
}

func (m *Memory) ListExpenses(_ context.Context, shiftID core.ShiftID) ([]core.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListExpenses"); err != nil {
		return nil, err
	}
	var result []core.Expense
	for _, e := range m.data.expenses {
		if e.ShiftID == shiftID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) CloseShift(_ context.Context, id core.ShiftID, declared decimal.Decimal, breakdown map[string]int, at time.Time) (*core.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("CloseShift"); err != nil {
		return nil, err
	}
	s, err := m.openShiftLocked(id)
	if err != nil {
		return nil, err
	}
	diff := declared.Sub(s.ExpectedCash)
	s.ClosedAt = &at
	s.DeclaredCash = &declared
	s.Difference = &diff
	s.Breakdown = maps.Clone(breakdown)
	s.Status = core.ShiftClosed
	m.data.shifts[id] = s
	c := cloneShift(s)
	return &c, nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (m *Memory) SaveProduct(_ context.Context, p core.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("SaveProduct"); err != nil {
		return err
	}
	if cur, ok := m.data.products[p.ID]; ok {
		p.Stock = cur.Stock
	}
	m.data.products[p.ID] = p
	return nil
}

func (m *Memory) GetProduct(_ context.Context, id core.ProductID) (*core.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("GetProduct"); err != nil {
		return nil, err
	}
	p, ok := m.data.products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	return &p, nil
}

func (m *Memory) ListProducts(_ context.Context, activeOnly bool) ([]core.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListProducts"); err != nil {
		return nil, err
	}
	var result []core.Product
	for _, p := range m.data.products {
		if activeOnly && !p.Active {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) DeductStock(_ context.Context, id core.ProductID, qty int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("DeductStock"); err != nil {
		return 0, err
	}
	p, ok := m.data.products[id]
	if !ok {
		return 0, notFound("product", id)
	}
	if p.Stock < qty {
		return p.Stock, &core.StockError{ProductID: id, Requested: qty, Available: p.Stock}
	}
	p.Stock -= qty
	m.data.products[id] = p
	return p.Stock, nil
}

func (m *Memory) RestockProduct(_ context.Context, id core.ProductID, qty int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("RestockProduct"); err != nil {
		return 0, err
	}
	p, ok := m.data.products[id]
	if !ok {
		return 0, notFound("product", id)
	}
	p.Stock += qty
	m.data.products[id] = p
	return p.Stock, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx snapshots the whole store, runs fn and restores the snapshot if
// fn fails. Transactions are serialized with each other.
func (m *Memory) WithTx(_ context.Context, fn func(core.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.data.clone()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.data = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

var _ core.TxStore = (*Memory)(nil)
