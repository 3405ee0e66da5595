package service

import (
	"context"

	"github.com/shinyyama/safedeal/internal/model"
	"github.com/shinyyama/safedeal/internal/repository"
)

type BalanceService interface {
	List(ctx context.Context, uid string) ([]model.UserBalance, error)
}

type balanceService struct {
	repo repository.BalanceRepository
}

func NewBalanceService(repo repository.BalanceRepository) BalanceService {
	return &balanceService{repo: repo}
}

func (s *balanceService) List(ctx context.Context, uid string) ([]model.UserBalance, error) {
	if uid == "" {
		return nil, ErrUnauthorized
	}
	return s.repo.ListByUser(ctx, uid)
}
