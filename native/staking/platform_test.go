package staking

import (
	"errors"
	"math/big"
	"testing"

	"samuraistake/events"
	"samuraistake/native/access"
	"samuraistake/native/token"
	"samuraistake/state"
	"samuraistake/storage"
)

func testAddr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

// stubCalculator computes rewards from a fixed in-memory rate table.
type stubCalculator struct {
	rates map[Tier]uint64
}

func (c *stubCalculator) ComputeReward(amount *big.Int, tier Tier) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	reward := new(big.Int).Mul(amount, new(big.Int).SetUint64(c.rates[tier]))
	return reward.Div(reward, big.NewInt(100)), nil
}

// stubGate enforces a flat per-action fee and records collections.
type stubGate struct {
	fee       *big.Int
	collected *big.Int
}

func newStubGate(fee int64) *stubGate {
	return &stubGate{fee: big.NewInt(fee), collected: big.NewInt(0)}
}

func (g *stubGate) Require(payment *big.Int, count int) error {
	required := new(big.Int).Mul(g.fee, big.NewInt(int64(count)))
	if payment == nil || payment.Cmp(required) < 0 {
		return ErrInsufficientFee
	}
	return nil
}

func (g *stubGate) Collect(payment *big.Int) error {
	if payment != nil {
		g.collected.Add(g.collected, payment)
	}
	return nil
}

type env struct {
	t        *testing.T
	state    *state.Manager
	registry *access.Registry
	ledger   *token.Ledger
	escrow   *EscrowHandler
	platform *Platform
	calc     *stubCalculator
	gate     *stubGate
	capture  *events.Capture
	admin    [20]byte
	user     [20]byte
	now      uint64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	registry := access.NewRegistry(st)
	admin, user := testAddr(0xA0), testAddr(0x10)
	if err := registry.Bootstrap(admin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	ledger := token.NewLedger(st, "YEN")
	escrow := NewEscrowHandler(st, ledger, registry)
	if err := escrow.UpdateStakingPlatform(admin, PlatformAddress()); err != nil {
		t.Fatalf("register platform: %v", err)
	}
	calc := &stubCalculator{rates: map[Tier]uint64{TierOneDay: 5, TierOneWeek: 7}}
	gate := newStubGate(10)
	platform := NewPlatform(st, st, escrow, calc, gate)
	capture := &events.Capture{}
	platform.SetEmitter(capture)
	escrow.SetEmitter(capture)

	e := &env{
		t: t, state: st, registry: registry, ledger: ledger, escrow: escrow,
		platform: platform, calc: calc, gate: gate, capture: capture,
		admin: admin, user: user, now: 1_700_000_000,
	}
	platform.SetNowFunc(func() uint64 { return e.now })

	// Fund the user and the reward pool.
	vault := VaultAddress()
	if err := ledger.Mint(user, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("mint user: %v", err)
	}
	if err := ledger.Approve(user, vault, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("approve user: %v", err)
	}
	if err := ledger.Mint(admin, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("mint admin: %v", err)
	}
	if err := ledger.Approve(admin, vault, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("approve admin: %v", err)
	}
	if err := escrow.ReplenishRewards(admin, big.NewInt(100_000)); err != nil {
		t.Fatalf("replenish rewards: %v", err)
	}
	return e
}

func (e *env) mustStake(amount int64, tier Tier) uint64 {
	e.t.Helper()
	id, err := e.platform.CreateStake(e.user, big.NewInt(amount), tier)
	if err != nil {
		e.t.Fatalf("create stake: %v", err)
	}
	return id
}

func (e *env) balance(addr [20]byte) *big.Int {
	e.t.Helper()
	balance, err := e.ledger.BalanceOf(addr)
	if err != nil {
		e.t.Fatalf("balance: %v", err)
	}
	return balance
}

func TestCreateStakeScenario(t *testing.T) {
	e := newEnv(t)
	id := e.mustStake(1000, TierOneDay)
	if id != 0 {
		t.Fatalf("first stake id should be 0, got %d", id)
	}
	stake, err := e.platform.GetStakeData(id)
	if err != nil {
		t.Fatalf("get stake: %v", err)
	}
	if stake.Amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("amount %s", stake.Amount)
	}
	if stake.Reward.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("reward %s, want 50", stake.Reward)
	}
	if stake.Claimed {
		t.Fatal("fresh stake must not be claimed")
	}
	if stake.CreatedAt != e.now {
		t.Fatalf("createdAt %d, want %d", stake.CreatedAt, e.now)
	}

	ids, err := e.platform.GetUserStakeIDs(e.user)
	if err != nil {
		t.Fatalf("user ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("global index %v", ids)
	}
	poolIDs, err := e.platform.GetUserStakeIDsInPool(e.user, TierOneDay)
	if err != nil {
		t.Fatalf("pool ids: %v", err)
	}
	if len(poolIDs) != 1 || poolIDs[0] != id {
		t.Fatalf("tier index %v", poolIDs)
	}

	escrowed, err := e.escrow.EscrowedAmount(e.user, id)
	if err != nil {
		t.Fatalf("escrowed: %v", err)
	}
	if escrowed.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("escrowed %s", escrowed)
	}
	if got := e.balance(e.user); got.Cmp(big.NewInt(999_000)) != 0 {
		t.Fatalf("user balance %s", got)
	}
	if len(e.capture.ByType(EventTypeUserDeposited)) != 1 {
		t.Fatal("expected UserDeposited event")
	}
}

func TestCreateStakeInvalidAmount(t *testing.T) {
	e := newEnv(t)
	for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		if _, err := e.platform.CreateStake(e.user, amount, TierOneDay); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %v: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	ids, _ := e.platform.GetUserStakeIDs(e.user)
	if len(ids) != 0 {
		t.Fatal("no stake should have been created")
	}
}

func TestCreateStakeAtomicOnTransferFailure(t *testing.T) {
	e := newEnv(t)
	pauper := testAddr(0x77) // no balance, no allowance
	if _, err := e.platform.CreateStake(pauper, big.NewInt(500), TierOneDay); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if _, err := e.platform.GetStakeData(0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stake must not exist, got %v", err)
	}
	ids, _ := e.platform.GetUserStakeIDs(pauper)
	if len(ids) != 0 {
		t.Fatal("index must stay empty after failed deposit")
	}
	// The id was not consumed.
	id := e.mustStake(100, TierOneDay)
	if id != 0 {
		t.Fatalf("expected id 0 after rollback, got %d", id)
	}
}

func TestStakeIDsMonotonic(t *testing.T) {
	e := newEnv(t)
	for want := uint64(0); want < 3; want++ {
		if id := e.mustStake(100, TierOneDay); id != want {
			t.Fatalf("got id %d, want %d", id, want)
		}
	}
}

func TestRewardFixedAtCreation(t *testing.T) {
	e := newEnv(t)
	id := e.mustStake(1000, TierOneDay)
	e.calc.rates[TierOneDay] = 50 // later rate change must not affect the stake
	stake, _ := e.platform.GetStakeData(id)
	if stake.Reward.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("stored reward changed: %s", stake.Reward)
	}
	e.now += TierOneDay.LockSeconds()
	before := e.balance(e.user)
	if err := e.platform.Claim(e.user, id, big.NewInt(10)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	released := new(big.Int).Sub(e.balance(e.user), before)
	if released.Cmp(big.NewInt(1050)) != 0 {
		t.Fatalf("released %s, want 1050", released)
	}
}

func TestClaimFlow(t *testing.T) {
	e := newEnv(t)
	id := e.mustStake(1000, TierOneDay)
	e.now += TierOneDay.LockSeconds()
	before := e.balance(e.user)
	if err := e.platform.Claim(e.user, id, big.NewInt(10)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	released := new(big.Int).Sub(e.balance(e.user), before)
	if released.Cmp(big.NewInt(1050)) != 0 {
		t.Fatalf("released %s", released)
	}
	stake, _ := e.platform.GetStakeData(id)
	if !stake.Claimed {
		t.Fatal("stake should be marked claimed")
	}
	poolIDs, _ := e.platform.GetUserStakeIDsInPool(e.user, TierOneDay)
	if len(poolIDs) != 0 {
		t.Fatalf("tier index should be empty, got %v", poolIDs)
	}
	ids, _ := e.platform.GetUserStakeIDs(e.user)
	if len(ids) != 1 {
		t.Fatal("global index must retain the claimed stake")
	}
	if e.gate.collected.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("fee not collected: %s", e.gate.collected)
	}
	if len(e.capture.ByType(EventTypeUserWithdrawn)) != 1 {
		t.Fatal("expected UserWithdrawn event")
	}
}

func TestClaimLockBoundaryInclusive(t *testing.T) {
	e := newEnv(t)
	id := e.mustStake(100, TierOneDay)
	e.now += TierOneDay.LockSeconds() - 1
	if err := e.platform.Claim(e.user, id, big.NewInt(10)); !errors.Is(err, ErrLockNotElapsed) {
		t.Fatalf("expected ErrLockNotElapsed one second early, got %v", err)
	}
	e.now++
	if err := e.platform.Claim(e.user, id, big.NewInt(10)); err != nil {
		t.Fatalf("claim at exact unlock instant should succeed: %v", err)
	}
}

func TestClaimExactlyOnce(t *testing.T) {
	e := newEnv(t)
	id := e.mustStake(100, TierOneDay)
	e.now += TierOneDay.LockSeconds()
	if err := e.platform.Claim(e.user, id, big.NewInt(10)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := e.platform.Claim(e.user, id, big.NewInt(10)); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestClaimPreconditionErrors(t *testing.T) {
	e := newEnv(t)
	id := e.mustStake(100, TierOneDay)
	e.now += TierOneDay.LockSeconds()
	if err := e.platform.Claim(e.user, 999, big.NewInt(10)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := e.platform.Claim(testAddr(0x99), id, big.NewInt(10)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := e.platform.Claim(e.user, id, big.NewInt(9)); !errors.Is(err, ErrInsufficientFee) {
		t.Fatalf("expected ErrInsufficientFee, got %v", err)
	}
	stake, _ := e.platform.GetStakeData(id)
	if stake.Claimed {
		t.Fatal("failed claims must not mark the stake")
	}
}

func TestClaimInsufficientRewardPool(t *testing.T) {
	e := newEnv(t)
	// Drain the reward pool by replacing it with a tiny one.
	st := state.NewManager(storage.NewMemDB())
	registry := access.NewRegistry(st)
	if err := registry.Bootstrap(e.admin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	ledger := token.NewLedger(st, "YEN")
	escrow := NewEscrowHandler(st, ledger, registry)
	if err := escrow.UpdateStakingPlatform(e.admin, PlatformAddress()); err != nil {
		t.Fatalf("register platform: %v", err)
	}
	platform := NewPlatform(st, st, escrow, e.calc, newStubGate(0))
	now := uint64(1_700_000_000)
	platform.SetNowFunc(func() uint64 { return now })
	vault := VaultAddress()
	if err := ledger.Mint(e.user, big.NewInt(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Approve(e.user, vault, big.NewInt(10_000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// No ReplenishRewards: pool is empty, reward is 50.
	id, err := platform.CreateStake(e.user, big.NewInt(1000), TierOneDay)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	now += TierOneDay.LockSeconds()
	if err := platform.Claim(e.user, id, big.NewInt(0)); !errors.Is(err, ErrInsufficientRewardPool) {
		t.Fatalf("expected ErrInsufficientRewardPool, got %v", err)
	}
	stake, _ := platform.GetStakeData(id)
	if stake.Claimed {
		t.Fatal("underfunded claim must not mark the stake")
	}
	escrowed, _ := escrow.EscrowedAmount(e.user, id)
	if escrowed.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("escrow entry must survive the failure, got %s", escrowed)
	}
}

func TestBatchClaim(t *testing.T) {
	e := newEnv(t)
	first := e.mustStake(1000, TierOneDay)
	second := e.mustStake(2000, TierOneDay)
	e.now += TierOneDay.LockSeconds()
	before := e.balance(e.user)
	if err := e.platform.BatchClaim(e.user, []uint64{first, second}, big.NewInt(20)); err != nil {
		t.Fatalf("batch claim: %v", err)
	}
	released := new(big.Int).Sub(e.balance(e.user), before)
	// 1000+50 + 2000+100
	if released.Cmp(big.NewInt(3150)) != 0 {
		t.Fatalf("released %s, want 3150", released)
	}
	if len(e.capture.ByType(EventTypeUserWithdrawn)) != 2 {
		t.Fatal("expected one UserWithdrawn event per stake")
	}
}

func TestBatchClaimFeeAgainstSum(t *testing.T) {
	e := newEnv(t)
	first := e.mustStake(100, TierOneDay)
	second := e.mustStake(100, TierOneDay)
	e.now += TierOneDay.LockSeconds()
	if err := e.platform.BatchClaim(e.user, []uint64{first, second}, big.NewInt(19)); !errors.Is(err, ErrInsufficientFee) {
		t.Fatalf("expected ErrInsufficientFee for 2x batch, got %v", err)
	}
	if err := e.platform.BatchClaim(e.user, []uint64{first, second}, big.NewInt(20)); err != nil {
		t.Fatalf("batch claim: %v", err)
	}
}

func TestBatchClaimAllOrNothing(t *testing.T) {
	e := newEnv(t)
	ready := e.mustStake(1000, TierOneDay)
	locked := e.mustStake(1000, TierOneWeek)
	e.now += TierOneDay.LockSeconds() // one week still running
	before := e.balance(e.user)
	if err := e.platform.BatchClaim(e.user, []uint64{ready, locked}, big.NewInt(20)); !errors.Is(err, ErrLockNotElapsed) {
		t.Fatalf("expected ErrLockNotElapsed, got %v", err)
	}
	for _, id := range []uint64{ready, locked} {
		stake, _ := e.platform.GetStakeData(id)
		if stake.Claimed {
			t.Fatalf("stake %d must not be claimed after failed batch", id)
		}
	}
	if e.balance(e.user).Cmp(before) != 0 {
		t.Fatal("no funds may move on a failed batch")
	}
}

func TestBatchClaimDuplicateIDs(t *testing.T) {
	e := newEnv(t)
	id := e.mustStake(100, TierOneDay)
	e.now += TierOneDay.LockSeconds()
	if err := e.platform.BatchClaim(e.user, []uint64{id, id}, big.NewInt(20)); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed for duplicate ids, got %v", err)
	}
	stake, _ := e.platform.GetStakeData(id)
	if stake.Claimed {
		t.Fatal("duplicate batch must not claim")
	}
}

// hostileToken wraps the real ledger and runs a callback on the payout
// transfer, simulating a token that calls back into the platform.
type hostileToken struct {
	*token.Ledger
	onTransfer func() error
	fired      bool
}

func (h *hostileToken) Transfer(from, to [20]byte, amount *big.Int) error {
	if h.onTransfer != nil && !h.fired {
		h.fired = true
		if err := h.onTransfer(); err != nil {
			return err
		}
	}
	return h.Ledger.Transfer(from, to, amount)
}

func TestReentrantClaimRejected(t *testing.T) {
	e := newEnv(t)
	hostile := &hostileToken{Ledger: e.ledger}
	escrow := NewEscrowHandler(e.state, hostile, e.registry)
	platform := NewPlatform(e.state, e.state, escrow, e.calc, e.gate)
	platform.SetNowFunc(func() uint64 { return e.now })

	id, err := platform.CreateStake(e.user, big.NewInt(1000), TierOneDay)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	e.now += TierOneDay.LockSeconds()

	var reentrantErr error
	hostile.onTransfer = func() error {
		// Attempt a second claim of the same stake mid-payout. The claim
		// state is already committed, so this must be rejected; swallow
		// the error so the outer transfer proceeds.
		reentrantErr = platform.Claim(e.user, id, big.NewInt(10))
		return nil
	}
	if err := platform.Claim(e.user, id, big.NewInt(10)); err != nil {
		t.Fatalf("outer claim: %v", err)
	}
	if !errors.Is(reentrantErr, ErrAlreadyClaimed) {
		t.Fatalf("reentrant claim should hit ErrAlreadyClaimed, got %v", reentrantErr)
	}
}

func TestPayoutFailureRestoresState(t *testing.T) {
	e := newEnv(t)
	boom := errors.New("token offline")
	hostile := &hostileToken{Ledger: e.ledger, onTransfer: func() error { return boom }}
	escrow := NewEscrowHandler(e.state, hostile, e.registry)
	platform := NewPlatform(e.state, e.state, escrow, e.calc, e.gate)
	platform.SetNowFunc(func() uint64 { return e.now })

	id, err := platform.CreateStake(e.user, big.NewInt(1000), TierOneDay)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	e.now += TierOneDay.LockSeconds()
	poolBefore, _ := escrow.RewardPoolBalance()

	if err := platform.Claim(e.user, id, big.NewInt(10)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	stake, _ := platform.GetStakeData(id)
	if stake.Claimed {
		t.Fatal("failed payout must restore claimed=false")
	}
	poolIDs, _ := platform.GetUserStakeIDsInPool(e.user, TierOneDay)
	if len(poolIDs) != 1 {
		t.Fatalf("tier index must be restored, got %v", poolIDs)
	}
	escrowed, _ := escrow.EscrowedAmount(e.user, id)
	if escrowed.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("escrow entry must be restored, got %s", escrowed)
	}
	poolAfter, _ := escrow.RewardPoolBalance()
	if poolAfter.Cmp(poolBefore) != 0 {
		t.Fatalf("reward pool must be restored: %s vs %s", poolAfter, poolBefore)
	}

	// The transfer fault was transient; the claim now goes through.
	if err := platform.Claim(e.user, id, big.NewInt(10)); err != nil {
		t.Fatalf("retry claim: %v", err)
	}
}

func TestEscrowConservation(t *testing.T) {
	e := newEnv(t)
	first := e.mustStake(1000, TierOneDay)
	e.mustStake(2500, TierOneWeek)

	check := func() {
		t.Helper()
		principal, _ := e.escrow.PrincipalTotal()
		pool, _ := e.escrow.RewardPoolBalance()
		vault := e.balance(VaultAddress())
		tracked := new(big.Int).Add(principal, pool)
		if tracked.Cmp(vault) > 0 {
			t.Fatalf("tracked %s exceeds custodied %s", tracked, vault)
		}
	}
	check()

	e.now += TierOneDay.LockSeconds()
	if err := e.platform.Claim(e.user, first, big.NewInt(10)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	check()
}
