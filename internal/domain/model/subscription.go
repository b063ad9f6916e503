package model

import "time"

type PlanInterval string

const (
	IntervalMonthly PlanInterval = "monthly"
	IntervalYearly  PlanInterval = "yearly"
)

// Plan describes a recurring purchase: the coins granted per billing cycle
// and the cycle length.
type Plan struct {
	ID         string // UUID
	Name       string
	Coins      int64 // coins granted per billing cycle
	Interval   PlanInterval
	PriceMinor int64 // integer minor units
	Currency   string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PeriodEnd returns the end of a billing period starting at from.
func (p *Plan) PeriodEnd(from time.Time) time.Time {
	if p.Interval == IntervalYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending" // created alongside the payment
	SubscriptionStatusActive    SubscriptionStatus = "active"  // payment succeeded; period bounds set
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// UserSubscription tracks the lifecycle of a purchased plan. It is flipped to
// active with period bounds only after the linked payment reaches success.
type UserSubscription struct {
	ID                 string // UUID
	UserID             string
	PlanID             string
	Status             SubscriptionStatus
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
