package entitlements

import (
	"strings"
	"time"

	"github.com/ManuelReschke/ReplyFox/internal/pkg/env"
)

type Tier string

const (
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
	TierElite Tier = "elite"
)

const (
	DefaultFreeQuota  int64 = 500
	DefaultProQuota   int64 = 2000
	DefaultEliteQuota int64 = 5000
)

// NormalizeTier maps unknown values to the free tier.
func NormalizeTier(tier string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(tier))) {
	case TierPro:
		return TierPro
	case TierElite:
		return TierElite
	default:
		return TierFree
	}
}

func TierRank(tier Tier) int {
	switch NormalizeTier(string(tier)) {
	case TierElite:
		return 2
	case TierPro:
		return 1
	default:
		return 0
	}
}

// DailyQuota returns the timed credits granted per UTC day for a tier.
func DailyQuota(tier Tier) int64 {
	switch NormalizeTier(string(tier)) {
	case TierElite:
		return env.GetEnvInt64("QUOTA_ELITE", DefaultEliteQuota)
	case TierPro:
		return env.GetEnvInt64("QUOTA_PRO", DefaultProQuota)
	default:
		return env.GetEnvInt64("QUOTA_FREE", DefaultFreeQuota)
	}
}

// DayStart returns midnight UTC of the calendar day containing t.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// RefreshedOn reports whether last lies on the same UTC day as now.
func RefreshedOn(last *time.Time, now time.Time) bool {
	return last != nil && !last.Before(DayStart(now))
}
