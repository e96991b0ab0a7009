package models

import "time"

const (
	PlanTypeCreditPack   = "credit_pack"
	PlanTypeSubscription = "subscription"
	PlanTypeLifetime     = "lifetime"
)

const (
	PlanCodeCreditPackStarter = "credit_pack_starter"
	PlanCodeMonthlyProAuto    = "monthly_pro_auto"
	PlanCodeMonthlyProOnce    = "monthly_pro_once"
	PlanCodeLifetimePro       = "lifetime_pro"
)

// BillingPlan maps a sellable plan and its provider variant to the credit or
// tier effect it has once paid.
type BillingPlan struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	PlanCode          string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"plan_code"`
	PlanType          string    `gorm:"type:varchar(20);not null;index" json:"plan_type"`
	CreditsDelta      int64     `gorm:"not null;default:0" json:"credits_delta"`
	ProviderVariantID string    `gorm:"type:varchar(64);not null;default:'';index" json:"provider_variant_id"`
	IsActive          bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *BillingPlan) IsCreditPack() bool {
	return p != nil && p.PlanType == PlanTypeCreditPack
}

func (p *BillingPlan) IsLifetime() bool {
	return p != nil && p.PlanType == PlanTypeLifetime
}

// DefaultBillingPlans returns the plan catalog seeded on startup. variantFor
// resolves the provider variant id per plan code.
func DefaultBillingPlans(variantFor func(planCode string) string) []BillingPlan {
	plans := []BillingPlan{
		{PlanCode: PlanCodeCreditPackStarter, PlanType: PlanTypeCreditPack, CreditsDelta: 2000},
		{PlanCode: PlanCodeMonthlyProAuto, PlanType: PlanTypeSubscription},
		{PlanCode: PlanCodeMonthlyProOnce, PlanType: PlanTypeSubscription},
		{PlanCode: PlanCodeLifetimePro, PlanType: PlanTypeLifetime},
	}
	for i := range plans {
		plans[i].IsActive = true
		if variantFor != nil {
			plans[i].ProviderVariantID = variantFor(plans[i].PlanCode)
		}
	}
	return plans
}
