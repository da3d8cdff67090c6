/*
ledger.go - Balance ledger

PURPOSE:
  Owns every mutation rule of a balance row. All callers (state machine,
  accrual, carry-forward, manual adjustment) go through these operations,
  always with a Store bound to their own transaction.

OPERATIONS:
  Credit:       allocated += amount (row created lazily)
  DebitUsed:    used += amount
  RestoreUsed:  used -= amount, floored at 0 with a warning
  ManualAdjust: allocated +/- amount, writes one Adjustment row
  Accrue:       Credit once per (row, month)
  CarryForward: close year N, move min(remaining, cap) into year N+1

INVARIANTS:
  - used >= 0
  - remaining == allocated - used (derived, never stored)
  - allocated never driven negative by a manual adjustment
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
)

// InsufficientBalanceWarning reports a restore that hit the zero floor. It is
// a data-inconsistency signal, not a failure.
type InsufficientBalanceWarning struct {
	Key       BalanceKey
	Used      generic.Amount // used days before the restore
	Requested generic.Amount
	Shortfall generic.Amount
}

func (w *InsufficientBalanceWarning) String() string {
	return fmt.Sprintf("restore of %v on %s exceeded used days %v by %v; floored at zero",
		w.Requested.Value, w.Key, w.Used.Value, w.Shortfall.Value)
}

// Ledger applies mutations to balance rows.
type Ledger struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewLedger(store Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, logger: logger, now: time.Now}
}

// Load returns the row for key, or an unsaved zero row.
func (l *Ledger) Load(ctx context.Context, key BalanceKey) (*Balance, error) {
	b, err := l.store.GetBalance(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load balance %s: %w", key, err)
	}
	if b == nil {
		b = NewBalance(key)
	}
	return b, nil
}

func (l *Ledger) save(ctx context.Context, b *Balance) error {
	now := l.now().UTC()
	if b.IsNew() {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	if err := l.store.SaveBalance(ctx, b); err != nil {
		return fmt.Errorf("save balance %s: %w", b.BalanceKey, err)
	}
	return nil
}

func checkAmount(field string, amount generic.Amount) error {
	if amount.IsNegative() {
		return generic.Invalid(field, "must not be negative, got %v", amount.Value)
	}
	return nil
}

// Credit increases allocated days.
func (l *Ledger) Credit(ctx context.Context, key BalanceKey, amount generic.Amount, reason string) (*Balance, error) {
	if err := checkAmount("amount", amount); err != nil {
		return nil, err
	}
	b, err := l.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	b.Allocated = b.Allocated.Add(amount)
	if err := l.save(ctx, b); err != nil {
		return nil, err
	}
	l.logger.Debug("balance credited",
		zap.Stringer("balance", key),
		zap.String("amount", amount.Value.String()),
		zap.String("reason", reason),
	)
	return b, nil
}

// DebitUsed increases used days.
func (l *Ledger) DebitUsed(ctx context.Context, key BalanceKey, amount generic.Amount) (*Balance, error) {
	if err := checkAmount("amount", amount); err != nil {
		return nil, err
	}
	b, err := l.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	b.Used = b.Used.Add(amount).ClampZero()
	if err := l.save(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// RestoreUsed decreases used days, flooring at zero. Hitting the floor is
// logged and returned as a warning; the operation still succeeds.
func (l *Ledger) RestoreUsed(ctx context.Context, key BalanceKey, amount generic.Amount) (*Balance, *InsufficientBalanceWarning, error) {
	if err := checkAmount("amount", amount); err != nil {
		return nil, nil, err
	}
	b, err := l.Load(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	var warning *InsufficientBalanceWarning
	next := b.Used.Sub(amount)
	if next.IsNegative() {
		warning = &InsufficientBalanceWarning{
			Key:       key,
			Used:      b.Used,
			Requested: amount,
			Shortfall: next.Neg(),
		}
		l.logger.Warn("restore exceeded used days, flooring at zero",
			zap.Stringer("balance", key),
			zap.String("used", b.Used.Value.String()),
			zap.String("requested", amount.Value.String()),
		)
		next = next.Zero()
	}
	b.Used = next
	if err := l.save(ctx, b); err != nil {
		return nil, nil, err
	}
	return b, warning, nil
}

// ManualAdjustment is an HR-initiated change to allocated days.
type ManualAdjustment struct {
	Key    BalanceKey
	Type   AdjustmentType
	Amount generic.Amount
	Reason string
	Actor  string
}

// ManualAdjust mutates allocated days and writes the audit row.
func (l *Ledger) ManualAdjust(ctx context.Context, in ManualAdjustment) (*Balance, *Adjustment, error) {
	if !in.Amount.IsPositive() {
		return nil, nil, generic.Invalid("amount", "must be positive, got %v", in.Amount.Value)
	}
	b, err := l.Load(ctx, in.Key)
	if err != nil {
		return nil, nil, err
	}

	previous := b.Allocated
	var next generic.Amount
	switch in.Type {
	case AdjustmentAdd:
		next = previous.Add(in.Amount)
	case AdjustmentSubtract:
		next = previous.Sub(in.Amount)
		if next.IsNegative() {
			return nil, nil, &generic.AdjustmentError{Allocated: previous, Requested: in.Amount}
		}
	default:
		return nil, nil, generic.Invalid("type", "unknown adjustment type %q", in.Type)
	}

	b.Allocated = next
	if err := l.save(ctx, b); err != nil {
		return nil, nil, err
	}

	adj := Adjustment{
		ID:                generic.AdjustmentID(uuid.NewString()),
		BalanceID:         b.ID,
		EmployeeID:        in.Key.EmployeeID,
		LeaveTypeID:       in.Key.LeaveTypeID,
		Year:              in.Key.Year,
		Type:              in.Type,
		Amount:            in.Amount,
		Reason:            in.Reason,
		PreviousAllocated: previous,
		NewAllocated:      next,
		AdjustedBy:        in.Actor,
		CreatedAt:         l.now().UTC(),
	}
	if err := l.store.AppendAdjustment(ctx, adj); err != nil {
		return nil, nil, fmt.Errorf("append adjustment: %w", err)
	}
	return b, &adj, nil
}

// Accrue credits rate for month unless the row was already credited for it
// or a later month. The boolean reports whether a credit happened.
func (l *Ledger) Accrue(ctx context.Context, key BalanceKey, rate generic.Amount, month generic.Month) (*Balance, bool, error) {
	if err := checkAmount("rate", rate); err != nil {
		return nil, false, err
	}
	b, err := l.Load(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !b.LastAccruedMonth.IsZero() && !b.LastAccruedMonth.Before(month) {
		return b, false, nil
	}

	b.Allocated = b.Allocated.Add(rate)
	b.MonthlyRate = rate
	b.LastAccruedMonth = month
	if err := l.save(ctx, b); err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// CarryForwardResult describes one anniversary rollover.
type CarryForwardResult struct {
	From    *Balance
	To      *Balance
	Carried generic.Amount
	Skipped bool // source missing or already rolled over
}

// CarryForward closes the from-year row and, when eligible, moves
// min(remaining, cap) into the next year's row. Idempotent through the
// RolledOver marker on the source row.
func (l *Ledger) CarryForward(ctx context.Context, from BalanceKey, limit generic.Amount, eligible bool) (CarryForwardResult, error) {
	src, err := l.store.GetBalance(ctx, from)
	if err != nil {
		return CarryForwardResult{}, fmt.Errorf("load balance %s: %w", from, err)
	}
	if src == nil || src.RolledOver {
		return CarryForwardResult{From: src, Carried: generic.ZeroDays(), Skipped: true}, nil
	}

	carried := generic.ZeroDays()
	if eligible {
		carried = src.Remaining().ClampZero().Min(limit.ClampZero())
	}

	src.RolledOver = true
	if err := l.save(ctx, src); err != nil {
		return CarryForwardResult{}, err
	}

	toKey := BalanceKey{EmployeeID: from.EmployeeID, LeaveTypeID: from.LeaveTypeID, Year: from.Year + 1}
	dst, err := l.Load(ctx, toKey)
	if err != nil {
		return CarryForwardResult{}, err
	}
	if carried.IsPositive() {
		dst.CarryForward = dst.CarryForward.Add(carried)
		dst.Allocated = dst.Allocated.Add(carried)
		if err := l.save(ctx, dst); err != nil {
			return CarryForwardResult{}, err
		}
	}
	return CarryForwardResult{From: src, To: dst, Carried: carried}, nil
}
