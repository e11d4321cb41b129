package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/frontdesk/core"
)

const (
	ShiftsSheet   = "Shifts"
	PaymentsSheet = "Payments"
	ExpensesSheet = "Expenses"

	timestampLayout = "2006-01-02 15:04"
)

var (
	shiftHeader = []interface{}{
		"shift_id", "staff_id", "slot", "status", "opened_at", "closed_at",
		"opening_cash", "withdrawals", "expected_cash", "declared_cash", "difference",
	}
	paymentHeader = []interface{}{
		"payment_id", "paid_at", "member_id", "plan_id", "method", "amount", "shift_id", "staff_id", "concept",
	}
	expenseHeader = []interface{}{
		"expense_id", "shift_id", "at", "amount", "concept", "staff_id",
	}
)

// WriteShiftWorkbook writes an xlsx workbook with the shifts opened in
// [from, to], their expenses and the payments of the same period.
func (s *Service) WriteShiftWorkbook(ctx context.Context, w io.Writer, from, to time.Time) error {
	if to.Before(from) {
		return core.Invalid("to", "must not be before from")
	}

	shifts, err := s.store.ListShifts(ctx, core.ShiftFilter{From: &from, To: &to})
	if err != nil {
		return err
	}
	payments, err := s.store.ListPayments(ctx, core.PaymentFilter{From: &from, To: &to})
	if err != nil {
		return err
	}
	var expenses []core.Expense
	for _, sh := range shifts {
		rows, err := s.store.ListExpenses(ctx, sh.ID)
		if err != nil {
			return err
		}
		expenses = append(expenses, rows...)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), ShiftsSheet); err != nil {
		return fmt.Errorf("workbook: %w", err)
	}
	for _, name := range []string{PaymentsSheet, ExpensesSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("workbook: %w", err)
		}
	}

	shiftRows := make([][]interface{}, 0, len(shifts))
	for _, sh := range shifts {
		shiftRows = append(shiftRows, []interface{}{
			string(sh.ID), string(sh.StaffID), string(sh.Slot), string(sh.Status),
			sh.OpenedAt.Format(timestampLayout), formatTimePtr(sh.ClosedAt),
			sh.OpeningCash.StringFixed(2), sh.CashWithdrawals.StringFixed(2), sh.ExpectedCash.StringFixed(2),
			formatMoneyPtr(sh.DeclaredCash), formatMoneyPtr(sh.Difference),
		})
	}
	if err := writeSheet(f, ShiftsSheet, shiftHeader, shiftRows); err != nil {
		return err
	}

	paymentRows := make([][]interface{}, 0, len(payments))
	for _, p := range payments {
		paymentRows = append(paymentRows, []interface{}{
			p.ID, p.PaidAt.Format(timestampLayout), string(p.MemberID), string(p.PlanID),
			string(p.Method), p.Amount.StringFixed(2), string(p.ShiftID), string(p.StaffID), p.Concept,
		})
	}
	if err := writeSheet(f, PaymentsSheet, paymentHeader, paymentRows); err != nil {
		return err
	}

	expenseRows := make([][]interface{}, 0, len(expenses))
	for _, e := range expenses {
		expenseRows = append(expenseRows, []interface{}{
			e.ID, string(e.ShiftID), e.At.Format(timestampLayout), e.Amount.StringFixed(2), e.Concept, string(e.StaffID),
		})
	}
	if err := writeSheet(f, ExpensesSheet, expenseHeader, expenseRows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("workbook %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("workbook %s: %w", sheet, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("workbook %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timestampLayout)
}

func formatMoneyPtr(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}
