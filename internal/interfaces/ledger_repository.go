package interfaces

import (
	"context"

	"story-engine/internal/models"

	"github.com/google/uuid"
)

// LedgerRepository guards the two ledger invariants: balance never goes
// negative, and a premium choice is purchased at most once per user.
// Methods taking a querier participate in the purchase transaction.
//
//go:generate mockery --name LedgerRepository --output ./mocks --outpkg mocks --case=underscore
type LedgerRepository interface {
	// GetBalance returns the current balance, zero for users without a row.
	GetBalance(ctx context.Context, userID uuid.UUID) (int, error)

	// Credit adds amount to the balance, creating the row if needed.
	// Called only on behalf of the external payment subsystem.
	Credit(ctx context.Context, userID uuid.UUID, amount int) (int, error)

	// TryDebit выполняет условный UPDATE ... WHERE balance >= amount.
	// Возвращает false без мутации, если средств не хватает.
	TryDebit(ctx context.Context, querier DBTX, userID uuid.UUID, amount int) (bool, error)

	// RecordPurchase inserts the ownership row. Returns false when the
	// unique (user, choice) constraint absorbed the insert, meaning a
	// concurrent request already purchased it.
	RecordPurchase(ctx context.Context, querier DBTX, purchase *models.PurchasedPath) (bool, error)

	// HasPurchase reports whether the ownership row exists.
	HasPurchase(ctx context.Context, userID, choiceID uuid.UUID) (bool, error)
}

// TxManager runs a function inside a single database transaction.
//
//go:generate mockery --name TxManager --output ./mocks --outpkg mocks --case=underscore
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
}
