package staking

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"samuraistake/events"
)

// PlatformAddress identifies the staking platform as a caller of the escrow
// custody primitives. Derived from a fixed label so rotation tests can mint
// distinct pretenders.
func PlatformAddress() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("samurai/staking/platform"))[12:])
	return addr
}

var (
	nextStakeIDKey   = []byte("staking/nextId")
	errNilEscrow     = errors.New("staking: escrow handler not configured")
	errNilCalculator = errors.New("staking: reward calculator not configured")
)

// RewardCalculator computes the reward stored on a stake at creation time.
type RewardCalculator interface {
	ComputeReward(amount *big.Int, tier Tier) (*big.Int, error)
}

// FeeGate validates attached fee payments and routes collected value to the
// treasury.
type FeeGate interface {
	Require(payment *big.Int, count int) error
	Collect(payment *big.Int) error
}

// AtomicRunner executes a function whose state writes become visible
// all-or-nothing.
type AtomicRunner interface {
	RunAtomic(fn func() error) error
}

type platformState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte) ([][]byte, error)
}

// storedStake is the deterministic RLP layout persisted for a stake record.
type storedStake struct {
	ID        uint64
	Owner     []byte
	Amount    *big.Int
	Tier      uint8
	Reward    *big.Int
	CreatedAt uint64
	Claimed   bool
}

func (s *storedStake) toStake() *Stake {
	stake := &Stake{
		ID:        s.ID,
		Tier:      Tier(s.Tier),
		CreatedAt: s.CreatedAt,
		Claimed:   s.Claimed,
		Amount:    big.NewInt(0),
		Reward:    big.NewInt(0),
	}
	copy(stake.Owner[:], s.Owner)
	if s.Amount != nil {
		stake.Amount = new(big.Int).Set(s.Amount)
	}
	if s.Reward != nil {
		stake.Reward = new(big.Int).Set(s.Reward)
	}
	return stake
}

func newStoredStake(stake *Stake) *storedStake {
	stored := &storedStake{
		ID:        stake.ID,
		Owner:     append([]byte(nil), stake.Owner[:]...),
		Tier:      uint8(stake.Tier),
		CreatedAt: stake.CreatedAt,
		Claimed:   stake.Claimed,
		Amount:    big.NewInt(0),
		Reward:    big.NewInt(0),
	}
	if stake.Amount != nil {
		stored.Amount = new(big.Int).Set(stake.Amount)
	}
	if stake.Reward != nil {
		stored.Reward = new(big.Int).Set(stake.Reward)
	}
	return stored
}

func stakeKey(id uint64) []byte {
	return []byte(fmt.Sprintf("staking/stake/%d", id))
}

func userIndexKey(user [20]byte) []byte {
	return []byte(fmt.Sprintf("staking/user/%x", user))
}

func userTierIndexKey(user [20]byte, tier Tier) []byte {
	return []byte(fmt.Sprintf("staking/user/%x/tier/%d", user, uint8(tier)))
}

func encodeStakeID(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func decodeStakeID(raw []byte) (uint64, bool) {
	if len(raw) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(raw), true
}

// Platform owns the authoritative stake registry. It allocates stake ids,
// fixes rewards at creation time, enforces claim preconditions, and
// orchestrates escrow movements. Mutating operations are not internally
// serialized; the composition root runs them single-writer.
type Platform struct {
	state   platformState
	atomic  AtomicRunner
	escrow  *EscrowHandler
	rewards RewardCalculator
	gate    FeeGate
	emitter events.Emitter
	nowFn   func() uint64
	addr    [20]byte
}

// NewPlatform wires the platform with its collaborators. The atomic runner
// must cover the same state the escrow handler writes to.
func NewPlatform(state platformState, atomic AtomicRunner, escrow *EscrowHandler, rewards RewardCalculator, gate FeeGate) *Platform {
	return &Platform{
		state:   state,
		atomic:  atomic,
		escrow:  escrow,
		rewards: rewards,
		gate:    gate,
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
		addr:    PlatformAddress(),
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (p *Platform) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily for deterministic tests.
func (p *Platform) SetNowFunc(now func() uint64) {
	if now == nil {
		p.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	p.nowFn = now
}

// Address returns the identity the platform presents to the escrow handler.
func (p *Platform) Address() [20]byte { return p.addr }

func (p *Platform) nextStakeID() (uint64, error) {
	var next uint64
	if _, err := p.state.KVGet(nextStakeIDKey, &next); err != nil {
		return 0, err
	}
	return next, nil
}

func (p *Platform) loadStake(id uint64) (*Stake, error) {
	var stored storedStake
	ok, err := p.state.KVGet(stakeKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return stored.toStake(), nil
}

func (p *Platform) storeStake(stake *Stake) error {
	return p.state.KVPut(stakeKey(stake.ID), newStoredStake(stake))
}

// CreateStake locks amount under the tier for the user, fixing the reward
// with the tier's current rate. The deposit, the stake record, and both index
// entries land atomically; a rejected token transfer leaves no trace.
func (p *Platform) CreateStake(user [20]byte, amount *big.Int, tier Tier) (uint64, error) {
	if p == nil || p.state == nil {
		return 0, errors.New("staking: platform not configured")
	}
	if p.escrow == nil {
		return 0, errNilEscrow
	}
	if p.rewards == nil {
		return 0, errNilCalculator
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if !tier.Valid() {
		return 0, fmt.Errorf("staking: invalid tier %d", uint8(tier))
	}
	reward, err := p.rewards.ComputeReward(amount, tier)
	if err != nil {
		return 0, err
	}
	id, err := p.nextStakeID()
	if err != nil {
		return 0, err
	}
	stake := &Stake{
		ID:        id,
		Owner:     user,
		Amount:    new(big.Int).Set(amount),
		Tier:      tier,
		Reward:    reward,
		CreatedAt: p.nowFn(),
	}
	err = p.atomic.RunAtomic(func() error {
		if err := p.escrow.Deposit(p.addr, user, id, amount); err != nil {
			return err
		}
		if err := p.storeStake(stake); err != nil {
			return err
		}
		if err := p.state.KVAppend(userIndexKey(user), encodeStakeID(id)); err != nil {
			return err
		}
		if err := p.state.KVAppend(userTierIndexKey(user, tier), encodeStakeID(id)); err != nil {
			return err
		}
		return p.state.KVPut(nextStakeIDKey, id+1)
	})
	if err != nil {
		return 0, err
	}
	p.emitter.Emit(NewUserDepositedEvent(user, id, amount, tier))
	return id, nil
}

// Claim releases principal plus reward for a single stake. The attached fee
// must cover the gate's current fee; excess is retained by the treasury.
func (p *Platform) Claim(caller [20]byte, stakeID uint64, fee *big.Int) error {
	return p.applyClaims(caller, []uint64{stakeID}, fee)
}

// BatchClaim applies claim semantics to each id in order. The fee is
// validated once against the sum of per-stake fees; any precondition failure
// fails the entire batch with no stake claimed.
func (p *Platform) BatchClaim(caller [20]byte, stakeIDs []uint64, fee *big.Int) error {
	if len(stakeIDs) == 0 {
		return errors.New("staking: empty batch")
	}
	return p.applyClaims(caller, stakeIDs, fee)
}

type claimEntry struct {
	stake         *Stake
	total         *big.Int
	rewardPortion *big.Int
}

// applyClaims validates every precondition before mutating anything, then
// commits all claim state before any external fund movement. A reentrant call
// issued during the payout therefore observes the stakes as claimed and is
// rejected; a failed payout triggers a compensating restore so the operation
// stays all-or-nothing.
func (p *Platform) applyClaims(caller [20]byte, stakeIDs []uint64, fee *big.Int) error {
	if p == nil || p.state == nil {
		return errors.New("staking: platform not configured")
	}
	if p.escrow == nil {
		return errNilEscrow
	}
	if p.gate != nil {
		if err := p.gate.Require(fee, len(stakeIDs)); err != nil {
			return err
		}
	}
	now := p.nowFn()
	entries := make([]claimEntry, 0, len(stakeIDs))
	seen := make(map[uint64]struct{}, len(stakeIDs))
	for _, id := range stakeIDs {
		if _, dup := seen[id]; dup {
			return ErrAlreadyClaimed
		}
		seen[id] = struct{}{}
		stake, err := p.loadStake(id)
		if err != nil {
			return err
		}
		if stake.Owner != caller {
			return ErrNotOwner
		}
		if stake.Claimed {
			return ErrAlreadyClaimed
		}
		if now < stake.UnlockAt() {
			return ErrLockNotElapsed
		}
		total := stake.Total()
		entries = append(entries, claimEntry{
			stake:         stake,
			total:         total,
			rewardPortion: new(big.Int).Sub(total, stake.Amount),
		})
	}

	grandTotal := big.NewInt(0)
	err := p.atomic.RunAtomic(func() error {
		for _, entry := range entries {
			stake := entry.stake
			stake.Claimed = true
			if err := p.storeStake(stake); err != nil {
				return err
			}
			if err := p.state.KVRemove(userTierIndexKey(stake.Owner, stake.Tier), encodeStakeID(stake.ID)); err != nil {
				return err
			}
			if err := p.escrow.Debit(p.addr, stake.Owner, stake.ID, entry.total); err != nil {
				return err
			}
			grandTotal.Add(grandTotal, entry.total)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := p.escrow.Payout(p.addr, caller, grandTotal); err != nil {
		restoreErr := p.atomic.RunAtomic(func() error {
			for _, entry := range entries {
				stake := entry.stake
				stake.Claimed = false
				if err := p.storeStake(stake); err != nil {
					return err
				}
				if err := p.state.KVAppend(userTierIndexKey(stake.Owner, stake.Tier), encodeStakeID(stake.ID)); err != nil {
					return err
				}
				if err := p.escrow.Recredit(p.addr, stake.Owner, stake.ID, stake.Amount, entry.rewardPortion); err != nil {
					return err
				}
			}
			return nil
		})
		if restoreErr != nil {
			return fmt.Errorf("staking: payout failed (%v); state restore failed: %w", err, restoreErr)
		}
		return err
	}

	if p.gate != nil {
		if err := p.gate.Collect(fee); err != nil {
			return err
		}
	}
	for _, entry := range entries {
		p.emitter.Emit(NewUserWithdrawnEvent(entry.stake.Owner, entry.stake.ID, entry.total, entry.stake.Tier))
	}
	return nil
}

// GetStakeData returns the stake record for the id, claimed or not. Claimed
// stakes remain queryable as an audit trail.
func (p *Platform) GetStakeData(stakeID uint64) (*Stake, error) {
	return p.loadStake(stakeID)
}

func (p *Platform) readIndex(key []byte) ([]uint64, error) {
	raw, err := p.state.KVGetList(key)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		if id, ok := decodeStakeID(entry); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// GetUserStakeIDs returns every stake id the user ever created, in creation
// order, including claimed stakes.
func (p *Platform) GetUserStakeIDs(user [20]byte) ([]uint64, error) {
	return p.readIndex(userIndexKey(user))
}

// GetUserStakeIDsInPool returns the user's unclaimed stake ids for the tier.
// Claimed stakes are removed from this index only.
func (p *Platform) GetUserStakeIDsInPool(user [20]byte, tier Tier) ([]uint64, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("staking: invalid tier %d", uint8(tier))
	}
	return p.readIndex(userTierIndexKey(user, tier))
}
