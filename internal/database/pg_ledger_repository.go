package database

import (
	"context"
	"errors"

	"story-engine/internal/interfaces"
	"story-engine/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ interfaces.LedgerRepository = (*pgLedgerRepository)(nil)

type pgLedgerRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgLedgerRepository creates the repository guarding balances and
// purchase records.
func NewPgLedgerRepository(pool *pgxpool.Pool, logger *zap.Logger) interfaces.LedgerRepository {
	return &pgLedgerRepository{
		pool:   pool,
		logger: logger.Named("PgLedgerRepo"),
	}
}

const getBalanceQuery = `
SELECT balance FROM user_balances WHERE user_id = $1`

const creditBalanceQuery = `
INSERT INTO user_balances (user_id, balance, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE SET
    balance = user_balances.balance + EXCLUDED.balance,
    updated_at = now()
RETURNING balance`

// Условный UPDATE закрывает гонку read-then-write: списание либо проходит
// целиком, либо не трогает строку вовсе.
const tryDebitQuery = `
UPDATE user_balances SET balance = balance - $2, updated_at = now()
WHERE user_id = $1 AND balance >= $2`

const recordPurchaseQuery = `
INSERT INTO purchased_paths (user_id, choice_id, story_id, price_paid)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, choice_id) DO NOTHING`

const hasPurchaseQuery = `
SELECT 1 FROM purchased_paths WHERE user_id = $1 AND choice_id = $2`

func (r *pgLedgerRepository) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	var balance int
	err := r.pool.QueryRow(ctx, getBalanceQuery, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Пользователь без строки баланса еще ничего не пополнял
			return 0, nil
		}
		r.logger.Error("Failed to get balance", zap.Stringer("userID", userID), zap.Error(err))
		return 0, err
	}
	return balance, nil
}

func (r *pgLedgerRepository) Credit(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	if amount <= 0 {
		return 0, models.ErrInvalidInput
	}
	var balance int
	err := r.pool.QueryRow(ctx, creditBalanceQuery, userID, amount).Scan(&balance)
	if err != nil {
		r.logger.Error("Failed to credit balance",
			zap.Stringer("userID", userID), zap.Int("amount", amount), zap.Error(err))
		return 0, err
	}
	r.logger.Info("Balance credited",
		zap.Stringer("userID", userID), zap.Int("amount", amount), zap.Int("balance", balance))
	return balance, nil
}

func (r *pgLedgerRepository) TryDebit(ctx context.Context, querier interfaces.DBTX, userID uuid.UUID, amount int) (bool, error) {
	cmdTag, err := querier.Exec(ctx, tryDebitQuery, userID, amount)
	if err != nil {
		r.logger.Error("Failed to debit balance",
			zap.Stringer("userID", userID), zap.Int("amount", amount), zap.Error(err))
		return false, err
	}
	return cmdTag.RowsAffected() == 1, nil
}

func (r *pgLedgerRepository) RecordPurchase(ctx context.Context, querier interfaces.DBTX, purchase *models.PurchasedPath) (bool, error) {
	cmdTag, err := querier.Exec(ctx, recordPurchaseQuery,
		purchase.UserID, purchase.ChoiceID, purchase.StoryID, purchase.PricePaid)
	if err != nil {
		r.logger.Error("Failed to record purchase",
			zap.Stringer("userID", purchase.UserID),
			zap.Stringer("choiceID", purchase.ChoiceID),
			zap.Error(err))
		return false, err
	}
	// 0 affected rows: уникальный ключ поглотил вставку, путь уже куплен
	return cmdTag.RowsAffected() == 1, nil
}

func (r *pgLedgerRepository) HasPurchase(ctx context.Context, userID, choiceID uuid.UUID) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx, hasPurchaseQuery, userID, choiceID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		r.logger.Error("Failed to check purchase",
			zap.Stringer("userID", userID), zap.Stringer("choiceID", choiceID), zap.Error(err))
		return false, err
	}
	return true, nil
}
