package models

import (
	"errors"
	"fmt"
)

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound       = errors.New("resource not found") // General not found
	ErrStoryNotFound  = errors.New("story not found")
	ErrPageNotFound   = errors.New("page not found")
	ErrChoiceNotFound = errors.New("choice not found")

	// Graph integrity errors. Малформированный граф - это баг данных,
	// наружу уходит как generic failure, никогда не рендерится частично.
	ErrInvariantViolation = errors.New("story graph invariant violation")

	// User & Authentication Errors
	ErrUnauthorized  = errors.New("unauthorized")            // Authentication required or failed
	ErrAuthRequired  = errors.New("authentication required") // Premium traversal without identity
	ErrForbidden     = errors.New("forbidden")               // Authenticated, but lacks permission
	ErrStalePosition = errors.New("choice is not reachable from the current position")

	// Token Errors
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrInvalidInput   = errors.New("invalid input data")
)

// InsufficientBalanceError возвращается, когда на счету не хватает валюты
// для премиум-выбора. Несет обе суммы, чтобы клиент мог предложить пополнение.
type InsufficientBalanceError struct {
	Required  int
	Available int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %d, available %d", e.Required, e.Available)
}

// ErrInsufficientBalance - маркер для errors.Is; типизированное значение
// достается через errors.As.
var ErrInsufficientBalance = &InsufficientBalanceError{}

// Is позволяет errors.Is сравнивать любой InsufficientBalanceError с маркером.
func (e *InsufficientBalanceError) Is(target error) bool {
	_, ok := target.(*InsufficientBalanceError)
	return ok
}
