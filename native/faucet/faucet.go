package faucet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"samuraistake/events"
	"samuraistake/native/access"
	"samuraistake/native/token"
)

var (
	// ErrUnauthorized is returned when the caller lacks the role a faucet
	// mutation requires.
	ErrUnauthorized = errors.New("faucet: unauthorized")
	// ErrCooldownActive is returned when a user requests tokens before the
	// cooldown since their previous request has elapsed.
	ErrCooldownActive = errors.New("faucet: cooldown active")
	// ErrInsufficientFaucet is returned when the faucet balance cannot
	// cover the drip amount.
	ErrInsufficientFaucet = errors.New("faucet: not enough tokens in faucet")
	// ErrNoFundsToRecover is returned when a sweep finds nothing to move.
	ErrNoFundsToRecover = errors.New("faucet: no funds to recover")
	// ErrInvalidAmount is returned for nil or non-positive amounts.
	ErrInvalidAmount = errors.New("faucet: amount must be positive")
	// ErrTransferFailed wraps token transfer rejections.
	ErrTransferFailed = errors.New("faucet: token transfer failed")
)

const (
	// EventTypeTokensRequested is emitted when a drip is dispensed.
	EventTypeTokensRequested = "faucet.tokensRequested"
	// EventTypeTokensDeposited is emitted when an admin refills the faucet.
	EventTypeTokensDeposited = "faucet.tokensDeposited"
	// EventTypeTokensRecovered is emitted when the faucet balance is swept.
	EventTypeTokensRecovered = "faucet.tokensRecovered"
)

var (
	dripAmountKey = []byte("faucet/dripAmount")
	cooldownKey   = []byte("faucet/cooldown")
)

const defaultCooldownSeconds = 24 * 60 * 60

// defaultDripAmount is dispensed per request until an operator overrides it.
var defaultDripAmount = big.NewInt(1000)

// FaucetAddress is the custody account the dispensable balance lives in.
// Derived from a fixed label so it is stable across deployments.
func FaucetAddress() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("samurai/faucet"))[12:])
	return addr
}

type faucetState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// FeeGate validates attached fee payments and routes collected value to the
// treasury.
type FeeGate interface {
	Require(payment *big.Int, count int) error
	Collect(payment *big.Int) error
}

// Faucet dispenses a fixed drip of tokens per request, rate limited by a
// per-user cooldown. Admins refill it through an allowance pull; requests are
// fee-bearing like every other user action.
type Faucet struct {
	state   faucetState
	tok     token.Token
	checker access.Checker
	gate    FeeGate
	emitter events.Emitter
	nowFn   func() uint64
}

// NewFaucet wires the faucet with its collaborators.
func NewFaucet(state faucetState, tok token.Token, checker access.Checker, gate FeeGate) *Faucet {
	return &Faucet{
		state:   state,
		tok:     tok,
		checker: checker,
		gate:    gate,
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (f *Faucet) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		f.emitter = events.NoopEmitter{}
		return
	}
	f.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily for deterministic tests.
func (f *Faucet) SetNowFunc(now func() uint64) {
	if now == nil {
		f.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	f.nowFn = now
}

func lastRequestKey(user [20]byte) []byte {
	return []byte(fmt.Sprintf("faucet/lastRequest/%x", user))
}

// DripAmount returns the amount dispensed per request.
func (f *Faucet) DripAmount() (*big.Int, error) {
	var stored big.Int
	ok, err := f.state.KVGet(dripAmountKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(big.Int).Set(defaultDripAmount), nil
	}
	return &stored, nil
}

// SetDripAmount overwrites the per-request drip. Operator only.
func (f *Faucet) SetDripAmount(caller [20]byte, amount *big.Int) error {
	isOperator, err := f.checker.HasRole(caller, access.RoleOperator)
	if err != nil {
		return err
	}
	if !isOperator {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return f.state.KVPut(dripAmountKey, amount)
}

// Cooldown returns the seconds a user must wait between requests.
func (f *Faucet) Cooldown() (uint64, error) {
	var stored uint64
	ok, err := f.state.KVGet(cooldownKey, &stored)
	if err != nil {
		return 0, err
	}
	if !ok {
		return defaultCooldownSeconds, nil
	}
	return stored, nil
}

// SetCooldown overwrites the per-user request cooldown. Operator only.
func (f *Faucet) SetCooldown(caller [20]byte, seconds uint64) error {
	isOperator, err := f.checker.HasRole(caller, access.RoleOperator)
	if err != nil {
		return err
	}
	if !isOperator {
		return ErrUnauthorized
	}
	return f.state.KVPut(cooldownKey, seconds)
}

// Balance returns the dispensable token balance.
func (f *Faucet) Balance() (*big.Int, error) {
	return f.tok.BalanceOf(FaucetAddress())
}

// RequestTokens dispenses one drip to the caller. The attached fee must cover
// the gate's current fee; a user may request again only after the cooldown.
func (f *Faucet) RequestTokens(caller [20]byte, fee *big.Int) (*big.Int, error) {
	if f == nil || f.state == nil || f.tok == nil {
		return nil, errors.New("faucet: not configured")
	}
	if f.gate != nil {
		if err := f.gate.Require(fee, 1); err != nil {
			return nil, err
		}
	}
	now := f.nowFn()
	var last uint64
	ok, err := f.state.KVGet(lastRequestKey(caller), &last)
	if err != nil {
		return nil, err
	}
	if ok {
		cooldown, err := f.Cooldown()
		if err != nil {
			return nil, err
		}
		if now < last+cooldown {
			return nil, ErrCooldownActive
		}
	}
	drip, err := f.DripAmount()
	if err != nil {
		return nil, err
	}
	balance, err := f.Balance()
	if err != nil {
		return nil, err
	}
	if balance.Cmp(drip) < 0 {
		return nil, ErrInsufficientFaucet
	}
	if err := f.tok.Transfer(FaucetAddress(), caller, drip); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := f.state.KVPut(lastRequestKey(caller), now); err != nil {
		return nil, err
	}
	if f.gate != nil {
		if err := f.gate.Collect(fee); err != nil {
			return nil, err
		}
	}
	f.emitter.Emit(&events.Event{
		Type: EventTypeTokensRequested,
		Attributes: map[string]string{
			"user":   hex.EncodeToString(caller[:]),
			"amount": drip.String(),
		},
	})
	return drip, nil
}

// DepositTokens pulls amount from the caller into the faucet balance.
// Requires a prior allowance to the faucet account. Admin only.
func (f *Faucet) DepositTokens(caller [20]byte, amount *big.Int) error {
	isAdmin, err := f.checker.HasRole(caller, access.RoleAdmin)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	self := FaucetAddress()
	if err := f.tok.TransferFrom(self, caller, self, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	f.emitter.Emit(&events.Event{
		Type: EventTypeTokensDeposited,
		Attributes: map[string]string{
			"from":   hex.EncodeToString(caller[:]),
			"amount": amount.String(),
		},
	})
	return nil
}

// RecoverStuckTokens sweeps the faucet account's entire balance of the
// provided token to the recipient. Admin only.
func (f *Faucet) RecoverStuckTokens(caller [20]byte, ledger *token.Ledger, to [20]byte) (*big.Int, error) {
	isAdmin, err := f.checker.HasRole(caller, access.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, ErrUnauthorized
	}
	self := FaucetAddress()
	balance, err := ledger.BalanceOf(self)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, ErrNoFundsToRecover
	}
	if err := ledger.Transfer(self, to, balance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	f.emitter.Emit(&events.Event{
		Type: EventTypeTokensRecovered,
		Attributes: map[string]string{
			"to":     hex.EncodeToString(to[:]),
			"token":  ledger.Symbol(),
			"amount": balance.String(),
		},
	})
	return balance, nil
}
