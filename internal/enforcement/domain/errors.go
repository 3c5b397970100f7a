package domain

import (
	"errors"
	"fmt"
	"time"
)

// BillingCode distinguishes the generic-denial variants.
type BillingCode string

const (
	CodeInsufficientBalance       BillingCode = "insufficient_balance"
	CodeInsufficientBalanceUpdate BillingCode = "insufficient_balance_update"
	CodeBudgetExceeded            BillingCode = "budget_exceeded"
	CodeIdentityUnresolved        BillingCode = "identity_unresolved"
	CodeLedgerInconsistent        BillingCode = "ledger_inconsistent"
)

// Budget scopes reported by budget denials.
const (
	BudgetScopeProject = "project"
	BudgetScopeUser    = "user"
)

// BillingError is a generic billing denial carrying structured numbers;
// Error renders them to two decimals.
type BillingError struct {
	Code      BillingCode
	Amount    float64
	Remaining float64
	Scope     string
	Detail    string
}

func (e *BillingError) Error() string {
	switch e.Code {
	case CodeInsufficientBalance:
		return fmt.Sprintf("this lease would spend %.2f SUs, only %.2f left in the allocation", e.Amount, e.Remaining)
	case CodeInsufficientBalanceUpdate:
		return fmt.Sprintf("this update would spend %.2f more SUs, only %.2f left in the allocation", e.Amount, e.Remaining)
	case CodeBudgetExceeded:
		return fmt.Sprintf("this lease would spend %.2f SUs, only %.2f left in the %s budget", e.Amount, e.Remaining, e.Scope)
	case CodeIdentityUnresolved:
		return fmt.Sprintf("could not resolve billing identity: %s", e.Detail)
	case CodeLedgerInconsistent:
		return fmt.Sprintf("charge ledger inconsistency: %s", e.Detail)
	default:
		return string(e.Code)
	}
}

func NewInsufficientBalance(amount, remaining float64) *BillingError {
	return &BillingError{Code: CodeInsufficientBalance, Amount: amount, Remaining: remaining}
}

func NewInsufficientBalanceUpdate(change, remaining float64) *BillingError {
	return &BillingError{Code: CodeInsufficientBalanceUpdate, Amount: change, Remaining: remaining}
}

func NewBudgetExceeded(scope string, amount, remaining float64) *BillingError {
	return &BillingError{Code: CodeBudgetExceeded, Amount: amount, Remaining: remaining, Scope: scope}
}

func NewIdentityUnresolved(detail string) *BillingError {
	return &BillingError{Code: CodeIdentityUnresolved, Detail: detail}
}

func NewLedgerInconsistent(detail string) *BillingError {
	return &BillingError{Code: CodeLedgerInconsistent, Detail: detail}
}

// IsBillingError reports whether err is any billing denial.
func IsBillingError(err error) bool {
	var be *BillingError
	return errors.As(err, &be)
}

// LeasePastExpirationError: the lease outlives the absorbing allocation.
type LeasePastExpirationError struct {
	LeaseEnd   time.Time
	Expiration time.Time
}

func (e *LeasePastExpirationError) Error() string {
	return fmt.Sprintf("lease ends %s, after the allocation expires %s",
		e.LeaseEnd.Format(time.RFC3339), e.Expiration.Format(time.RFC3339))
}

// MaxLeaseDurationError: requested duration exceeds the resolved limit.
type MaxLeaseDurationError struct {
	RequestedHours float64
	LimitHours     float64
}

func (e *MaxLeaseDurationError) Error() string {
	return fmt.Sprintf("lease duration of %.2f hours exceeds the maximum of %.2f hours", e.RequestedHours, e.LimitHours)
}

// MaxLeaseUpdateWindowError: an extension arrived before the trailing
// update window opens.
type MaxLeaseUpdateWindowError struct {
	WindowHours float64
	OriginalEnd time.Time
}

func (e *MaxLeaseUpdateWindowError) Error() string {
	return fmt.Sprintf("lease extensions are only allowed within %.2f hours of the current end time %s",
		e.WindowHours, e.OriginalEnd.Format(time.RFC3339))
}
