package service

import (
	"errors"
	"fmt"

	"github.com/shinyyama/safedeal/internal/model"
	"gorm.io/gorm"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrIllegalTransition   = errors.New("illegal transition")
	ErrExpired             = errors.New("deal expired")
	ErrInvalidParticipants = errors.New("invalid participants")
	ErrInvalidContent      = errors.New("invalid content")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrDuplicateActiveDeal = errors.New("duplicate active deal")
	ErrInternal            = errors.New("internal error")
)

// TransitionError names the current and requested status of a rejected
// deal transition. It matches ErrIllegalTransition.
type TransitionError struct {
	From model.DealStatus
	To   model.DealStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: cannot move deal from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// isDomainError reports whether err belongs to the caller-facing taxonomy.
func isDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrUnauthorized, ErrIllegalTransition, ErrExpired,
		ErrInvalidParticipants, ErrInvalidContent, ErrInvalidArgument, ErrDuplicateActiveDeal,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}
