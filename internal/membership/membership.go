// Package membership holds the renewal rules for member records.
package membership

import (
	"time"

	"github.com/dukerupert/memberqr/internal/model"
)

// DateLayout is the storage format for all member dates.
const DateLayout = "2006-01-02"

// LifetimeRenewal is the renewal date recorded for lifetime members.
const LifetimeRenewal = "2099-12-31"

// RenewalDate computes the renewal date for a membership type joined on joiningDate.
// Lifetime memberships renew on LifetimeRenewal. Every other type renews one year
// after joining. An empty or unparsable joining date yields "".
func RenewalDate(membershipType, joiningDate string) string {
	if membershipType == model.MembershipLifetime {
		return LifetimeRenewal
	}
	joined, err := time.Parse(DateLayout, joiningDate)
	if err != nil {
		return ""
	}
	return joined.AddDate(1, 0, 0).Format(DateLayout)
}

// RenewalOrFallback is RenewalDate, except that fallback is returned when no
// renewal date can be derived from the joining date.
func RenewalOrFallback(membershipType, joiningDate, fallback string) string {
	if d := RenewalDate(membershipType, joiningDate); d != "" {
		return d
	}
	return fallback
}

// NormalizeType maps an empty membership type to the annual default.
func NormalizeType(membershipType string) string {
	if membershipType == "" {
		return model.MembershipAnnually
	}
	return membershipType
}

// Today formats now as a storage date.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}
