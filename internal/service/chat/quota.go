package chat

import (
	"fmt"
	"time"

	"facilityai/internal/models"
)

// Monthly token ceilings per plan.
const (
	limitFree = 5000
	limitPro  = 100000
)

// planCeiling returns the monthly ceiling for a plan and whether one applies
// at all. Plans outside the billing matrix get the Free ceiling.
func planCeiling(plan string) (int64, bool) {
	switch plan {
	case models.PlanPro:
		return limitPro, true
	case models.PlanEnterprise:
		return 0, false
	default:
		return limitFree, true
	}
}

// applyMonthlyReset zeroes the usage counter when the last reset is at least
// one calendar month behind now. Only the loaded record is mutated; callers
// persist the change as part of their own commit.
func applyMonthlyReset(user *models.User, now time.Time) bool {
	if user.LastResetDate.After(now.AddDate(0, -1, 0)) {
		return false
	}
	user.UsedTokensCurrentMonth = 0
	user.LastResetDate = now
	return true
}

type admission struct {
	allowed bool
	reason  string
	reset   bool
}

// admit runs the monthly reset and then the ceiling check, in that order, so
// a user crossing the cycle boundary is re-admitted on the same request.
func admit(user *models.User, now time.Time) admission {
	reset := applyMonthlyReset(user, now)
	ceiling, bounded := planCeiling(user.Plan)
	if bounded && user.UsedTokensCurrentMonth >= ceiling {
		return admission{
			reason: fmt.Sprintf("Limite do plano %s atingido. Faça upgrade para continuar.", user.Plan),
			reset:  reset,
		}
	}
	return admission{allowed: true, reset: reset}
}
