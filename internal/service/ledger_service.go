package service

import (
	"context"

	"story-engine/internal/interfaces"
	"story-engine/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LedgerService - операции над балансом, не связанные с покупкой:
// пополнение от платежной подсистемы и чтение для клиента. Само списание
// живет внутри EngineService и больше нигде.
type LedgerService interface {
	// Credit adds amount after the external payment subsystem confirmed a
	// top-up. The engine never initiates a charge.
	Credit(ctx context.Context, userID uuid.UUID, amount int) (int, error)

	// GetBalance returns the current spendable balance.
	GetBalance(ctx context.Context, userID uuid.UUID) (int, error)
}

type ledgerService struct {
	repo   interfaces.LedgerRepository
	logger *zap.Logger
}

// NewLedgerService creates the ledger service.
func NewLedgerService(repo interfaces.LedgerRepository, logger *zap.Logger) LedgerService {
	return &ledgerService{
		repo:   repo,
		logger: logger.Named("LedgerService"),
	}
}

func (s *ledgerService) Credit(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	if amount <= 0 {
		return 0, models.ErrInvalidInput
	}
	return s.repo.Credit(ctx, userID, amount)
}

func (s *ledgerService) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.GetBalance(ctx, userID)
}
