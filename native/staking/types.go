package staking

import (
	"fmt"
	"math/big"
	"strings"
)

// Tier identifies a staking duration category. Each tier carries its own lock
// duration and reward rate.
type Tier uint8

const (
	TierOneDay Tier = iota
	TierOneWeek
	TierOneMonth
	TierSixMonth
	TierOneYear
)

const daySeconds = 24 * 60 * 60

// lockSeconds maps each tier to its lock duration in unix seconds.
var lockSeconds = map[Tier]uint64{
	TierOneDay:   1 * daySeconds,
	TierOneWeek:  7 * daySeconds,
	TierOneMonth: 30 * daySeconds,
	TierSixMonth: 180 * daySeconds,
	TierOneYear:  365 * daySeconds,
}

var tierNames = map[Tier]string{
	TierOneDay:   "one_day",
	TierOneWeek:  "one_week",
	TierOneMonth: "one_month",
	TierSixMonth: "six_month",
	TierOneYear:  "one_year",
}

// Tiers returns every supported tier in ascending lock-duration order.
func Tiers() []Tier {
	return []Tier{TierOneDay, TierOneWeek, TierOneMonth, TierSixMonth, TierOneYear}
}

// Valid reports whether the tier value is within the supported range.
func (t Tier) Valid() bool {
	_, ok := lockSeconds[t]
	return ok
}

// LockSeconds returns the tier's lock duration in seconds.
func (t Tier) LockSeconds() uint64 {
	return lockSeconds[t]
}

// String returns the canonical lowercase tier name.
func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", uint8(t))
}

// ParseTier resolves a tier from its canonical name.
func ParseTier(name string) (Tier, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for tier, tierName := range tierNames {
		if tierName == normalized {
			return tier, nil
		}
	}
	return 0, fmt.Errorf("staking: unknown tier %q", name)
}

// Stake is the authoritative record of principal locked by a user. The reward
// is computed once at creation with the tier's rate at that moment and never
// recomputed; claimed stakes are retained as an audit trail.
type Stake struct {
	ID        uint64
	Owner     [20]byte
	Amount    *big.Int
	Tier      Tier
	Reward    *big.Int
	CreatedAt uint64
	Claimed   bool
}

// UnlockAt returns the first unix second at which the stake may be claimed.
// The boundary is inclusive.
func (s *Stake) UnlockAt() uint64 {
	if s == nil {
		return 0
	}
	return s.CreatedAt + s.Tier.LockSeconds()
}

// Total returns principal plus reward, the amount released on claim.
func (s *Stake) Total() *big.Int {
	if s == nil {
		return big.NewInt(0)
	}
	total := big.NewInt(0)
	if s.Amount != nil {
		total.Add(total, s.Amount)
	}
	if s.Reward != nil {
		total.Add(total, s.Reward)
	}
	return total
}

// Clone returns a deep copy so callers can mutate the copy without affecting
// the stored instance.
func (s *Stake) Clone() *Stake {
	if s == nil {
		return nil
	}
	clone := *s
	if s.Amount != nil {
		clone.Amount = new(big.Int).Set(s.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if s.Reward != nil {
		clone.Reward = new(big.Int).Set(s.Reward)
	} else {
		clone.Reward = big.NewInt(0)
	}
	return &clone
}
