package rewards

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"samuraistake/events"
	"samuraistake/native/access"
	"samuraistake/native/staking"
)

var (
	// ErrUnauthorized is returned when the caller lacks the operator role.
	ErrUnauthorized = errors.New("rewards: unauthorized")
	// ErrInvalidTier rejects rates for tiers outside the supported set.
	ErrInvalidTier = errors.New("rewards: invalid tier")
)

// EventTypeRewardRateUpdated is emitted whenever an operator overwrites a
// tier's reward rate.
const EventTypeRewardRateUpdated = "rewards.rateUpdated"

type managerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Manager holds the per-tier reward rate table. Rates are whole percentages
// with no upper bound beyond overflow limits; bounding the operator's
// authority is an explicit trust assumption, not enforced here.
type Manager struct {
	state   managerState
	checker access.Checker
	emitter events.Emitter
}

// NewManager constructs a rate manager gated by the provided role checker.
func NewManager(state managerState, checker access.Checker) *Manager {
	return &Manager{state: state, checker: checker, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

func rateKey(tier staking.Tier) []byte {
	return []byte(fmt.Sprintf("rewards/rate/%s", tier))
}

// SetRewardRate overwrites the tier's reward rate percentage. Operator only.
func (m *Manager) SetRewardRate(caller [20]byte, tier staking.Tier, rate uint64) error {
	if m == nil || m.state == nil {
		return errors.New("rewards: manager not initialised")
	}
	isOperator, err := m.checker.HasRole(caller, access.RoleOperator)
	if err != nil {
		return err
	}
	if !isOperator {
		return ErrUnauthorized
	}
	if !tier.Valid() {
		return ErrInvalidTier
	}
	if err := m.state.KVPut(rateKey(tier), rate); err != nil {
		return err
	}
	m.emitter.Emit(&events.Event{
		Type: EventTypeRewardRateUpdated,
		Attributes: map[string]string{
			"tier": tier.String(),
			"rate": strconv.FormatUint(rate, 10),
		},
	})
	return nil
}

// RateFor returns the current rate percentage for the tier, zero when unset.
func (m *Manager) RateFor(tier staking.Tier) (uint64, error) {
	if m == nil || m.state == nil {
		return 0, errors.New("rewards: manager not initialised")
	}
	if !tier.Valid() {
		return 0, ErrInvalidTier
	}
	var rate uint64
	if _, err := m.state.KVGet(rateKey(tier), &rate); err != nil {
		return 0, err
	}
	return rate, nil
}

// ComputeReward returns floor(amount * rate / 100) using the tier's current
// rate. Fractional remainders are dropped, never rounded up, so the payout is
// deterministic.
func (m *Manager) ComputeReward(amount *big.Int, tier staking.Tier) (*big.Int, error) {
	rate, err := m.RateFor(tier)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	reward := new(big.Int).Mul(amount, new(big.Int).SetUint64(rate))
	return reward.Div(reward, big.NewInt(100)), nil
}
