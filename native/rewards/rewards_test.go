package rewards

import (
	"errors"
	"math/big"
	"testing"

	"samuraistake/events"
	"samuraistake/native/access"
	"samuraistake/native/staking"
	"samuraistake/state"
	"samuraistake/storage"
)

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func newTestManager(t *testing.T) (*Manager, [20]byte, [20]byte) {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	registry := access.NewRegistry(st)
	admin, operator := addr(0x01), addr(0x02)
	if err := registry.Bootstrap(admin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := registry.GrantRole(admin, operator, access.RoleOperator); err != nil {
		t.Fatalf("grant: %v", err)
	}
	return NewManager(st, registry), admin, operator
}

func TestSetRewardRateRequiresOperator(t *testing.T) {
	m, admin, operator := newTestManager(t)
	if err := m.SetRewardRate(admin, staking.TierOneDay, 5); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("admin without operator role should be rejected, got %v", err)
	}
	if err := m.SetRewardRate(operator, staking.TierOneDay, 5); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	rate, err := m.RateFor(staking.TierOneDay)
	if err != nil {
		t.Fatalf("rate for: %v", err)
	}
	if rate != 5 {
		t.Fatalf("got rate %d", rate)
	}
}

func TestSetRewardRateEmitsEvent(t *testing.T) {
	m, _, operator := newTestManager(t)
	capture := &events.Capture{}
	m.SetEmitter(capture)
	if err := m.SetRewardRate(operator, staking.TierOneYear, 25); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	emitted := capture.ByType(EventTypeRewardRateUpdated)
	if len(emitted) != 1 {
		t.Fatalf("expected 1 event, got %d", len(emitted))
	}
	if emitted[0].Attributes["tier"] != "one_year" || emitted[0].Attributes["rate"] != "25" {
		t.Fatalf("unexpected attributes: %v", emitted[0].Attributes)
	}
}

func TestComputeRewardFloors(t *testing.T) {
	m, _, operator := newTestManager(t)
	if err := m.SetRewardRate(operator, staking.TierOneDay, 5); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	cases := []struct {
		amount int64
		want   int64
	}{
		{1000, 50},
		{999, 49},  // 49.95 floors down
		{19, 0},    // 0.95 floors to zero
		{1, 0},
		{100, 5},
	}
	for _, tc := range cases {
		got, err := m.ComputeReward(big.NewInt(tc.amount), staking.TierOneDay)
		if err != nil {
			t.Fatalf("compute(%d): %v", tc.amount, err)
		}
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("compute(%d) = %s, want %d", tc.amount, got, tc.want)
		}
	}
}

func TestComputeRewardUnsetRateIsZero(t *testing.T) {
	m, _, _ := newTestManager(t)
	got, err := m.ComputeReward(big.NewInt(1_000_000), staking.TierSixMonth)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("expected zero reward, got %s", got)
	}
}

func TestInvalidTierRejected(t *testing.T) {
	m, _, operator := newTestManager(t)
	if err := m.SetRewardRate(operator, staking.Tier(200), 5); !errors.Is(err, ErrInvalidTier) {
		t.Fatalf("expected ErrInvalidTier, got %v", err)
	}
	if _, err := m.RateFor(staking.Tier(200)); !errors.Is(err, ErrInvalidTier) {
		t.Fatalf("expected ErrInvalidTier, got %v", err)
	}
}
