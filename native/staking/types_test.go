package staking

import (
	"math/big"
	"testing"
)

func TestTierLockDurations(t *testing.T) {
	cases := map[Tier]uint64{
		TierOneDay:   86_400,
		TierOneWeek:  7 * 86_400,
		TierOneMonth: 30 * 86_400,
		TierSixMonth: 180 * 86_400,
		TierOneYear:  365 * 86_400,
	}
	for tier, want := range cases {
		if got := tier.LockSeconds(); got != want {
			t.Errorf("%s: lock %d, want %d", tier, got, want)
		}
	}
	if Tier(99).Valid() {
		t.Error("out-of-range tier must be invalid")
	}
}

func TestParseTierRoundTrip(t *testing.T) {
	for _, tier := range Tiers() {
		parsed, err := ParseTier(tier.String())
		if err != nil {
			t.Fatalf("parse %s: %v", tier, err)
		}
		if parsed != tier {
			t.Fatalf("parse %s returned %s", tier, parsed)
		}
	}
	if parsed, err := ParseTier(" One_Week "); err != nil || parsed != TierOneWeek {
		t.Fatalf("normalized parse: %v %v", parsed, err)
	}
	if _, err := ParseTier("fortnight"); err == nil {
		t.Fatal("unknown tier name must fail")
	}
}

func TestStakeTotalAndClone(t *testing.T) {
	stake := &Stake{
		ID:        3,
		Owner:     testAddr(0x01),
		Amount:    big.NewInt(1000),
		Tier:      TierOneDay,
		Reward:    big.NewInt(50),
		CreatedAt: 500,
	}
	if stake.Total().Cmp(big.NewInt(1050)) != 0 {
		t.Fatalf("total %s", stake.Total())
	}
	if stake.UnlockAt() != 500+86_400 {
		t.Fatalf("unlockAt %d", stake.UnlockAt())
	}
	clone := stake.Clone()
	clone.Amount.SetInt64(1)
	if stake.Amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatal("clone must not share amount")
	}
}
