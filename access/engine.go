/*
Package access decides whether a person at the front desk may enter.

PURPOSE:
  One check-in request in, one Granted or Denied decision out, with an
  auditable attendance row for every decision about a known member.

DECISION TABLE:
  time-based plan, status active  -> Granted, LastVisitAt refreshed
  otherwise                       -> try to spend a prepaid visit
      spent                       -> Granted ("prepaid visit, N left")
      same-day re-entry           -> Granted, nothing spent
      no credit                   -> Denied, reason from effective status

OUTCOMES ARE NOT ERRORS:
  Denied and "member not found" are results. CheckIn returns an error only
  when the store failed, so a failed write can never read as Granted.

SEE ALSO:
  - membership/status.go: effective status
  - membership/visits.go: visit-pack ledger
*/
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/membership"
	"github.com/warp/frontdesk/metrics"
	"github.com/warp/frontdesk/telemetry"
)

// =============================================================================
// REQUEST / RESULT
// =============================================================================

type CheckInRequest struct {
	// Query is a member id or part of a first or last name.
	Query   string
	StaffID core.StaffID
	ShiftID core.ShiftID
}

// ReasonCode is the machine-readable side of a decision.
type ReasonCode string

const (
	CodeActive         ReasonCode = "active"
	CodePrepaidVisit   ReasonCode = "prepaid_visit"
	CodeReentry        ReasonCode = "reentry"
	CodeExpired        ReasonCode = "expired"
	CodeNoSubscription ReasonCode = "no_subscription"
	CodeCancelled      ReasonCode = "cancelled"
	CodeNoCredit       ReasonCode = "no_credit"
	CodeNotFound       ReasonCode = "not_found"
)

// MemberCard is what the front desk shows next to the decision.
type MemberCard struct {
	ID       core.MemberID
	Name     string
	PhotoURL string
}

type CheckInResult struct {
	Granted      bool
	Code         ReasonCode
	Reason       string
	Member       *MemberCard
	Status       membership.EffectiveStatus
	VisitsLeft   int
	AttendanceID string
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store    core.Store
	resolver *membership.Resolver
	clock    core.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

func NewEngine(store core.Store, resolver *membership.Resolver, clock core.Clock, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		resolver: resolver,
		clock:    clock,
		logger:   logger,
		metrics:  m,
		tracer:   telemetry.Tracer(),
	}
}

// CheckIn resolves the member, decides, and records the attempt.
func (e *Engine) CheckIn(ctx context.Context, req CheckInRequest) (CheckInResult, error) {
	ctx, span := e.tracer.Start(ctx, "access.CheckIn")
	defer span.End()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return CheckInResult{}, core.Invalid("query", "member id or name is required")
	}

	member, err := e.lookup(ctx, query)
	if errors.Is(err, core.ErrNotFound) {
		e.metrics.CheckIn("denied", string(CodeNotFound))
		span.SetAttributes(attribute.String("checkin.code", string(CodeNotFound)))
		return CheckInResult{Code: CodeNotFound, Reason: "Member not found"}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "member lookup failed")
		return CheckInResult{}, err
	}

	var result CheckInResult
	err = core.RunInTx(ctx, e.store, func(s core.Store) error {
		var txErr error
		result, txErr = e.decide(ctx, s, member.ID, req)
		return txErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "check-in not recorded")
		e.logger.Error("check-in failed", "member_id", member.ID, "error", err)
		return CheckInResult{}, fmt.Errorf("check-in for %s: %w", member.ID, err)
	}

	outcome := "denied"
	if result.Granted {
		outcome = "granted"
	}
	e.metrics.CheckIn(outcome, string(result.Code))
	span.SetAttributes(
		attribute.String("member.id", string(member.ID)),
		attribute.Bool("checkin.granted", result.Granted),
		attribute.String("checkin.code", string(result.Code)),
	)
	e.logger.Debug("check-in decided",
		"member_id", member.ID,
		"granted", result.Granted,
		"code", result.Code,
		"visits_left", result.VisitsLeft,
	)
	return result, nil
}

// lookup tries an exact id, then the first case-insensitive name match.
func (e *Engine) lookup(ctx context.Context, query string) (*core.Member, error) {
	m, err := e.store.GetMember(ctx, core.MemberID(query))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	matches, err := e.store.FindMembers(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("member %q: %w", query, core.ErrNotFound)
	}
	return &matches[0], nil
}

func (e *Engine) decide(ctx context.Context, s core.Store, id core.MemberID, req CheckInRequest) (CheckInResult, error) {
	now := e.clock.Now()

	m, err := s.GetMember(ctx, id)
	if err != nil {
		return CheckInResult{}, err
	}
	res, err := e.resolver.Resolve(ctx, s, id, now)
	if err != nil {
		return CheckInResult{}, err
	}

	name := m.FullName()
	result := CheckInResult{
		Member:     &MemberCard{ID: m.ID, Name: name, PhotoURL: m.PhotoURL},
		Status:     res.Status,
		VisitsLeft: m.VisitsAvailable,
	}

	if !membership.IsPackPlan(res.Plan) && res.Status == membership.StatusActive {
		if err := s.TouchLastVisit(ctx, m.ID, now); err != nil {
			return CheckInResult{}, err
		}
		result.Granted = true
		result.Code = CodeActive
		result.Reason = fmt.Sprintf("Welcome, %s!", name)
	} else {
		out, err := membership.NewVisitLedger(s).TryConsume(ctx, *m, now)
		switch {
		case err == nil && out.Reentry:
			result.Granted = true
			result.Code = CodeReentry
			result.VisitsLeft = out.Balance
			result.Reason = fmt.Sprintf("Welcome back, %s! (re-entry today, %d left)", name, out.Balance)
		case err == nil:
			result.Granted = true
			result.Code = CodePrepaidVisit
			result.VisitsLeft = out.Balance
			result.Reason = fmt.Sprintf("Welcome, %s! (prepaid visit, %d left)", name, out.Balance)
		case errors.Is(err, core.ErrNoCredit):
			result.VisitsLeft = out.Balance
			result.Code, result.Reason = denial(res.Status, out.Balance)
		default:
			return CheckInResult{}, err
		}
	}

	a := core.Attendance{
		ID:        core.NewID(),
		MemberID:  m.ID,
		At:        now,
		Permitted: result.Granted,
		Reason:    result.Reason,
		StaffID:   req.StaffID,
		ShiftID:   req.ShiftID,
	}
	if err := s.AppendAttendance(ctx, a); err != nil {
		return CheckInResult{}, err
	}
	result.AttendanceID = a.ID
	return result, nil
}

// denial explains a Denied decision from the effective status.
func denial(status membership.EffectiveStatus, balance int) (ReasonCode, string) {
	var code ReasonCode
	var reason string
	switch status {
	case membership.StatusExpired:
		code, reason = CodeExpired, "Membership expired"
	case membership.StatusNoSubscription:
		code, reason = CodeNoSubscription, "No active membership"
	case membership.StatusCancelled:
		code, reason = CodeCancelled, "Membership cancelled"
	default:
		code, reason = CodeNoCredit, "Access denied"
	}
	if balance <= 0 {
		reason += " (no visits available)"
	}
	return code, reason
}
