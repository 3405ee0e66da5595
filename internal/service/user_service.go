package service

import (
	"context"

	"github.com/shinyyama/safedeal/internal/model"
	"github.com/shinyyama/safedeal/internal/repository"
)

type UserService interface {
	GetPublic(ctx context.Context, uid string) (*model.User, error)
}

type userService struct {
	repo repository.UserRepository
}

func NewUserService(repo repository.UserRepository) UserService {
	return &userService{repo: repo}
}

func (s *userService) GetPublic(ctx context.Context, uid string) (*model.User, error) {
	if uid == "" {
		return nil, ErrNotFound
	}
	u, err := s.repo.FindByID(ctx, uid)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}
