package models

import "time"

// Plan names known to the billing matrix. Unknown values fall back to the
// Free ceiling everywhere a limit is computed.
const (
	PlanFree       = "Free"
	PlanIniciante  = "Iniciante"
	PlanPlus       = "Plus"
	PlanPro        = "Pro"
	PlanEnterprise = "Enterprise"
)

// User is an account row. UsedTokensCurrentMonth only grows inside a billing
// cycle and is zeroed when LastResetDate is more than one month behind.
type User struct {
	ID                    int64      `json:"id"`
	Name                  string     `json:"name"`
	Email                 string     `json:"email"`
	PasswordHash          string     `json:"-"`
	Role                  string     `json:"role"`
	Plan                  string     `json:"plan"`
	SubscriptionCycle     string     `json:"subscription_cycle"`
	UsedTokensCurrentMonth int64     `json:"used_tokens_current_month"`
	LastResetDate         time.Time  `json:"last_reset_date"`
	CreatedAt             time.Time  `json:"created_at"`
	IsActive              bool       `json:"is_active"`
	LastLogin             *time.Time `json:"last_login,omitempty"`
}
