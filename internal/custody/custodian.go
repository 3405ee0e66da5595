// Package custody moves escrowed funds once a deal completes.
package custody

import (
	"context"
	"errors"

	"github.com/shinyyama/safedeal/internal/model"
)

// ErrPermanent marks a release failure that retrying cannot fix.
var ErrPermanent = errors.New("custody: permanent failure")

// Custodian releases the funds held for a completed deal to its seller.
// Implementations must be idempotent per deal id.
type Custodian interface {
	Release(ctx context.Context, deal model.SafeDeal) error
}
