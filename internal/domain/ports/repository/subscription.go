package repository

import (
	"context"
	"time"

	"wallet-settlement/internal/domain/model"
)

type PlanRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Plan) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Plan, error)
	ListActive(ctx context.Context, tx Tx) ([]*model.Plan, error)
}

type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.UserSubscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.UserSubscription, error)
	// Activate flips a pending subscription to active and sets period bounds.
	Activate(ctx context.Context, tx Tx, id string, periodStart, periodEnd time.Time) error
}
