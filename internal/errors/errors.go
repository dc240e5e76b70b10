package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	AccountNotFound     ErrorCode = "account_not_found"
	CustomerNotFound    ErrorCode = "customer_not_found"
	UserNotFound        ErrorCode = "user_not_found"
	ZoneNotFound        ErrorCode = "zone_not_found"
	LoanNotFound        ErrorCode = "loan_not_found"
	SourceNotFound      ErrorCode = "source_not_found"
	TransactionNotFound ErrorCode = "transaction_not_found"

	InvalidInput         ErrorCode = "invalid_input"
	InvalidAmount        ErrorCode = "invalid_amount"
	AmountOutOfRange     ErrorCode = "amount_out_of_range"
	InvalidInterestRate  ErrorCode = "invalid_interest_rate"
	AmountExceedsBalance ErrorCode = "amount_exceeds_balance"
	InvalidPeriod        ErrorCode = "invalid_period"

	AccountClosed            ErrorCode = "account_closed"
	WrongAccountType         ErrorCode = "wrong_account_type"
	InactiveUser             ErrorCode = "inactive_user"
	WrongRole                ErrorCode = "wrong_role"
	CustomerInactive         ErrorCode = "customer_inactive"
	OwnershipMismatch        ErrorCode = "ownership_mismatch"
	LoanAlreadyPaid          ErrorCode = "loan_already_paid"
	SourceAccountProtected   ErrorCode = "source_account_protected"
	TransactionNotReversible ErrorCode = "transaction_not_reversible"

	InsufficientFunds ErrorCode = "insufficient_funds"

	IllegalStateTransition     ErrorCode = "illegal_state_transition"
	LoanNotRecovered           ErrorCode = "loan_not_recovered"
	TransactionAlreadyReversed ErrorCode = "transaction_already_reversed"

	DuplicateSourceForZoneAndDate ErrorCode = "duplicate_source_for_zone_and_date"
	DuplicateCustomer             ErrorCode = "duplicate_customer"
	DuplicateUser                 ErrorCode = "duplicate_user"
	DuplicateZone                 ErrorCode = "duplicate_zone"
	DuplicateAccount              ErrorCode = "duplicate_account"
	TariffAlreadyCharged          ErrorCode = "tariff_already_charged"
	TariffRunAlreadyCompleted     ErrorCode = "tariff_run_already_completed"

	Unauthenticated ErrorCode = "unauthenticated"

	InternalError ErrorCode = "internal_error"
)

// Kind groups error codes into the categories callers branch on.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindInvalidInput           Kind = "invalid_input"
	KindPreconditionFailed     Kind = "precondition_failed"
	KindInsufficientFunds      Kind = "insufficient_funds"
	KindIllegalStateTransition Kind = "illegal_state_transition"
	KindConflict               Kind = "conflict"
	KindUnauthenticated        Kind = "unauthenticated"
	KindInternal               Kind = "internal"
)

var kinds = map[ErrorCode]Kind{
	AccountNotFound:     KindNotFound,
	CustomerNotFound:    KindNotFound,
	UserNotFound:        KindNotFound,
	ZoneNotFound:        KindNotFound,
	LoanNotFound:        KindNotFound,
	SourceNotFound:      KindNotFound,
	TransactionNotFound: KindNotFound,

	InvalidInput:         KindInvalidInput,
	InvalidAmount:        KindInvalidInput,
	AmountOutOfRange:     KindInvalidInput,
	InvalidInterestRate:  KindInvalidInput,
	AmountExceedsBalance: KindInvalidInput,
	InvalidPeriod:        KindInvalidInput,

	AccountClosed:            KindPreconditionFailed,
	WrongAccountType:         KindPreconditionFailed,
	InactiveUser:             KindPreconditionFailed,
	WrongRole:                KindPreconditionFailed,
	CustomerInactive:         KindPreconditionFailed,
	OwnershipMismatch:        KindPreconditionFailed,
	LoanAlreadyPaid:          KindPreconditionFailed,
	SourceAccountProtected:   KindPreconditionFailed,
	TransactionNotReversible: KindPreconditionFailed,

	InsufficientFunds: KindInsufficientFunds,

	IllegalStateTransition:     KindIllegalStateTransition,
	LoanNotRecovered:           KindIllegalStateTransition,
	TransactionAlreadyReversed: KindIllegalStateTransition,

	DuplicateSourceForZoneAndDate: KindConflict,
	DuplicateCustomer:             KindConflict,
	DuplicateUser:                 KindConflict,
	DuplicateZone:                 KindConflict,
	DuplicateAccount:              KindConflict,
	TariffAlreadyCharged:          KindConflict,
	TariffRunAlreadyCompleted:     KindConflict,

	Unauthenticated: KindUnauthenticated,

	InternalError: KindInternal,
}

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target carries the same code, so a sentinel matches any
// copy produced by WithDetails.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !stderrors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Kind returns the category of the error code. Unknown codes are internal.
func (e *AppError) Kind() Kind {
	if k, ok := kinds[e.Code]; ok {
		return k
	}
	return KindInternal
}

func (e *AppError) HTTPStatus() int {
	switch e.Kind() {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput, KindPreconditionFailed, KindInsufficientFunds:
		return http.StatusBadRequest
	case KindConflict, KindIllegalStateTransition:
		return http.StatusConflict
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy of the error carrying details. The receiver is
// left untouched so package sentinels stay shared safely.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithDetailsf is WithDetails with formatting.
func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *AppError {
	appErr := NewAppError(InternalError, message)
	if err != nil {
		appErr.Details = err.Error()
	}
	return appErr
}

// From extracts an AppError from err. Anything else becomes an internal error.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Internal("an unexpected error occurred", err)
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind()
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Predefined errors for common cases
var (
	ErrAccountNotFound     = NewAppError(AccountNotFound, "account not found")
	ErrCustomerNotFound    = NewAppError(CustomerNotFound, "customer not found")
	ErrUserNotFound        = NewAppError(UserNotFound, "user not found")
	ErrZoneNotFound        = NewAppError(ZoneNotFound, "zone not found")
	ErrLoanNotFound        = NewAppError(LoanNotFound, "loan not found")
	ErrSourceNotFound      = NewAppError(SourceNotFound, "source not found")
	ErrTransactionNotFound = NewAppError(TransactionNotFound, "transaction not found")

	ErrInvalidInput         = NewAppError(InvalidInput, "invalid input")
	ErrInvalidAmount        = NewAppError(InvalidAmount, "invalid amount")
	ErrAmountOutOfRange     = NewAppError(AmountOutOfRange, "amount out of allowed range")
	ErrInvalidInterestRate  = NewAppError(InvalidInterestRate, "interest rate out of allowed range")
	ErrAmountExceedsBalance = NewAppError(AmountExceedsBalance, "amount exceeds remaining loan balance")
	ErrInvalidPeriod        = NewAppError(InvalidPeriod, "period must have the form YYYY-MM")

	ErrAccountClosed            = NewAppError(AccountClosed, "account is closed")
	ErrWrongAccountType         = NewAppError(WrongAccountType, "account type does not allow this operation")
	ErrInactiveUser             = NewAppError(InactiveUser, "user is not active")
	ErrWrongRole                = NewAppError(WrongRole, "user does not have the required role")
	ErrCustomerInactive         = NewAppError(CustomerInactive, "customer is not active")
	ErrOwnershipMismatch        = NewAppError(OwnershipMismatch, "account does not belong to the loan customer")
	ErrLoanAlreadyPaid          = NewAppError(LoanAlreadyPaid, "loan is already paid")
	ErrSourceAccountProtected   = NewAppError(SourceAccountProtected, "the source account cannot be closed")
	ErrTransactionNotReversible = NewAppError(TransactionNotReversible, "transaction type cannot be reversed")

	ErrInsufficientFunds = NewAppError(InsufficientFunds, "insufficient funds")

	ErrIllegalStateTransition     = NewAppError(IllegalStateTransition, "operation not allowed in the current state")
	ErrLoanNotRecovered           = NewAppError(LoanNotRecovered, "loan has not been fully recovered")
	ErrTransactionAlreadyReversed = NewAppError(TransactionAlreadyReversed, "transaction already reversed")

	ErrDuplicateSourceForZoneAndDate = NewAppError(DuplicateSourceForZoneAndDate, "a source already exists for this zone today")
	ErrDuplicateCustomer             = NewAppError(DuplicateCustomer, "customer with this identity number or contact already exists")
	ErrDuplicateUser                 = NewAppError(DuplicateUser, "user with this email already exists")
	ErrDuplicateZone                 = NewAppError(DuplicateZone, "zone with this name already exists")
	ErrDuplicateAccount              = NewAppError(DuplicateAccount, "account already exists")
	ErrTariffAlreadyCharged          = NewAppError(TariffAlreadyCharged, "monthly tariff already charged for this period")
	ErrTariffRunAlreadyCompleted     = NewAppError(TariffRunAlreadyCompleted, "tariff run already completed for this period")

	ErrUnauthenticated = NewAppError(Unauthenticated, "acting user could not be identified")
)
