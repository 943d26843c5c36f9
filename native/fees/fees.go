package fees

import (
	"encoding/hex"
	"errors"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"samuraistake/events"
	"samuraistake/native/access"
	"samuraistake/native/token"
)

var (
	// ErrUnauthorized is returned when the caller lacks the role a fee
	// mutation requires.
	ErrUnauthorized = errors.New("fees: unauthorized")
	// ErrInsufficientFee is returned when the attached payment does not
	// cover the required fee.
	ErrInsufficientFee = errors.New("fees: insufficient fee")
	// ErrNoFeesToWithdraw is returned when the treasury balance is zero.
	ErrNoFeesToWithdraw = errors.New("fees: no fees to withdraw")
	// ErrNoFundsToRecover is returned when a sweep finds nothing to move.
	ErrNoFundsToRecover = errors.New("fees: no funds to recover")
)

const (
	// EventTypeFeeUpdated is emitted when an operator changes the fee.
	EventTypeFeeUpdated = "fees.updated"
	// EventTypeFeesCollected is emitted when a fee payment is routed to
	// the treasury.
	EventTypeFeesCollected = "fees.collected"
	// EventTypeFeesWithdrawn is emitted when an admin drains the treasury.
	EventTypeFeesWithdrawn = "fees.withdrawn"
	// EventTypeTokensRecovered is emitted when stray token balances are
	// swept out of the treasury account.
	EventTypeTokensRecovered = "fees.tokensRecovered"
)

var (
	currentFeeKey      = []byte("fees/current")
	treasuryBalanceKey = []byte("fees/treasury/balance")
)

type feeState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// TreasuryAddress is the custody account stray token payments land in.
// Derived from a fixed label so it is stable across deployments.
func TreasuryAddress() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("samurai/fees/treasury"))[12:])
	return addr
}

// Treasury custodies collected fee value. The balance is a state counter of
// native value; only an admin may drain it.
type Treasury struct {
	state   feeState
	checker access.Checker
	emitter events.Emitter
}

// NewTreasury constructs a treasury gated by the provided role checker.
func NewTreasury(state feeState, checker access.Checker) *Treasury {
	return &Treasury{state: state, checker: checker, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (t *Treasury) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		t.emitter = events.NoopEmitter{}
		return
	}
	t.emitter = emitter
}

// Balance returns the accumulated fee value held by the treasury.
func (t *Treasury) Balance() (*big.Int, error) {
	var stored big.Int
	ok, err := t.state.KVGet(treasuryBalanceKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return &stored, nil
}

// Credit adds collected fee value to the treasury balance.
func (t *Treasury) Credit(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	balance, err := t.Balance()
	if err != nil {
		return err
	}
	return t.state.KVPut(treasuryBalanceKey, new(big.Int).Add(balance, amount))
}

// WithdrawAccumulatedFees transfers the entire treasury balance to the
// caller. Admin only; fails when the balance is zero.
func (t *Treasury) WithdrawAccumulatedFees(caller [20]byte) (*big.Int, error) {
	isAdmin, err := t.checker.HasRole(caller, access.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, ErrUnauthorized
	}
	balance, err := t.Balance()
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, ErrNoFeesToWithdraw
	}
	if err := t.state.KVPut(treasuryBalanceKey, big.NewInt(0)); err != nil {
		return nil, err
	}
	t.emitter.Emit(&events.Event{
		Type: EventTypeFeesWithdrawn,
		Attributes: map[string]string{
			"to":     hex.EncodeToString(caller[:]),
			"amount": balance.String(),
		},
	})
	return balance, nil
}

// RecoverStuckTokens sweeps the treasury account's entire balance of the
// provided token to the recipient. Admin only; covers tokens sent to the
// treasury outside the fee flow.
func (t *Treasury) RecoverStuckTokens(caller [20]byte, ledger *token.Ledger, to [20]byte) (*big.Int, error) {
	isAdmin, err := t.checker.HasRole(caller, access.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, ErrUnauthorized
	}
	self := TreasuryAddress()
	balance, err := ledger.BalanceOf(self)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, ErrNoFundsToRecover
	}
	if err := ledger.Transfer(self, to, balance); err != nil {
		return nil, err
	}
	t.emitter.Emit(&events.Event{
		Type: EventTypeTokensRecovered,
		Attributes: map[string]string{
			"to":     hex.EncodeToString(to[:]),
			"token":  ledger.Symbol(),
			"amount": balance.String(),
		},
	})
	return balance, nil
}

// Gate validates fee payments attached to user actions and routes collected
// value to the treasury. Overpayment is retained, never refunded.
type Gate struct {
	state    feeState
	checker  access.Checker
	treasury *Treasury
	emitter  events.Emitter
}

// NewGate constructs a fee gate routing collections to the treasury.
func NewGate(state feeState, checker access.Checker, treasury *Treasury) *Gate {
	return &Gate{state: state, checker: checker, treasury: treasury, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (g *Gate) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		g.emitter = events.NoopEmitter{}
		return
	}
	g.emitter = emitter
}

// CurrentFee returns the fee required per fee-bearing action.
func (g *Gate) CurrentFee() (*big.Int, error) {
	var stored big.Int
	ok, err := g.state.KVGet(currentFeeKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return &stored, nil
}

// UpdateFeeAmount overwrites the per-action fee. Operator only.
func (g *Gate) UpdateFeeAmount(caller [20]byte, newFee *big.Int) error {
	isOperator, err := g.checker.HasRole(caller, access.RoleOperator)
	if err != nil {
		return err
	}
	if !isOperator {
		return ErrUnauthorized
	}
	if newFee == nil || newFee.Sign() < 0 {
		return errors.New("fees: fee must be non-negative")
	}
	if err := g.state.KVPut(currentFeeKey, newFee); err != nil {
		return err
	}
	g.emitter.Emit(&events.Event{
		Type:       EventTypeFeeUpdated,
		Attributes: map[string]string{"amount": newFee.String()},
	})
	return nil
}

// Require validates that the attached payment covers count fee-bearing
// actions.
func (g *Gate) Require(payment *big.Int, count int) error {
	if count <= 0 {
		return nil
	}
	current, err := g.CurrentFee()
	if err != nil {
		return err
	}
	required := new(big.Int).Mul(current, big.NewInt(int64(count)))
	if payment == nil {
		payment = big.NewInt(0)
	}
	if payment.Cmp(required) < 0 {
		return ErrInsufficientFee
	}
	return nil
}

// Collect routes the full attached payment to the treasury. Any excess over
// the required fee is retained with it.
func (g *Gate) Collect(payment *big.Int) error {
	if payment == nil || payment.Sign() <= 0 {
		return nil
	}
	if err := g.treasury.Credit(payment); err != nil {
		return err
	}
	g.emitter.Emit(&events.Event{
		Type:       EventTypeFeesCollected,
		Attributes: map[string]string{"amount": payment.String()},
	})
	return nil
}
