package staking

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"samuraistake/events"
	"samuraistake/native/access"
	"samuraistake/native/token"
)

var (
	rewardPoolKey       = []byte("staking/escrow/rewardPool")
	principalTotalKey   = []byte("staking/escrow/principalTotal")
	escrowPlatformKey   = []byte("staking/escrow/platform")
	errEscrowNilState   = errors.New("staking: escrow state not configured")
	errEscrowNegPayout  = errors.New("staking: payout below escrowed principal")
	errEscrowNilLedger  = errors.New("staking: token ledger not configured")
	errEscrowNoPlatform = errors.New("staking: no platform registered")
)

// VaultAddress is the custody account holding staked principal and the
// pre-funded reward pool. Derived from a fixed label so it is stable across
// deployments.
func VaultAddress() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("samurai/staking/escrow"))[12:])
	return addr
}

type escrowState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// EscrowHandler is the sole custodian of staked principal and of the reward
// pool. Its custody primitives are callable only by the currently registered
// staking platform; the platform reference can be rotated by an admin.
type EscrowHandler struct {
	state   escrowState
	tok     token.Token
	checker access.Checker
	emitter events.Emitter
}

// NewEscrowHandler constructs an escrow handler moving funds on the provided
// token and answering authorization queries through the checker.
func NewEscrowHandler(state escrowState, tok token.Token, checker access.Checker) *EscrowHandler {
	return &EscrowHandler{state: state, tok: tok, checker: checker, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (h *EscrowHandler) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		h.emitter = events.NoopEmitter{}
		return
	}
	h.emitter = emitter
}

func ledgerKey(user [20]byte, stakeID uint64) []byte {
	return []byte(fmt.Sprintf("staking/escrow/ledger/%x/%d", user, stakeID))
}

func (h *EscrowHandler) readBig(key []byte) (*big.Int, error) {
	var stored big.Int
	ok, err := h.state.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return &stored, nil
}

// Platform returns the currently authorized staking platform address.
func (h *EscrowHandler) Platform() ([20]byte, error) {
	var stored []byte
	ok, err := h.state.KVGet(escrowPlatformKey, &stored)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok || len(stored) != 20 {
		return [20]byte{}, errEscrowNoPlatform
	}
	var addr [20]byte
	copy(addr[:], stored)
	return addr, nil
}

func (h *EscrowHandler) requirePlatform(caller [20]byte) error {
	platform, err := h.Platform()
	if err != nil {
		return ErrUnauthorized
	}
	if caller != platform {
		return ErrUnauthorized
	}
	return nil
}

// UpdateStakingPlatform atomically swaps the sole authorized caller. The
// previous platform immediately loses the ability to move escrowed funds.
// Admin only.
func (h *EscrowHandler) UpdateStakingPlatform(caller, newPlatform [20]byte) error {
	isAdmin, err := h.checker.HasRole(caller, access.RoleAdmin)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrUnauthorized
	}
	previous, _ := h.Platform()
	if err := h.state.KVPut(escrowPlatformKey, newPlatform[:]); err != nil {
		return err
	}
	h.emitter.Emit(NewPlatformRotatedEvent(previous, newPlatform))
	return nil
}

// EscrowedAmount returns the principal recorded for the (user, stake id)
// pair, zero when none.
func (h *EscrowHandler) EscrowedAmount(user [20]byte, stakeID uint64) (*big.Int, error) {
	return h.readBig(ledgerKey(user, stakeID))
}

// RewardPoolBalance returns the reward funds currently available.
func (h *EscrowHandler) RewardPoolBalance() (*big.Int, error) {
	return h.readBig(rewardPoolKey)
}

// PrincipalTotal returns the sum of escrowed principal across unclaimed
// stakes.
func (h *EscrowHandler) PrincipalTotal() (*big.Int, error) {
	return h.readBig(principalTotalKey)
}

// Deposit pulls amount token units from the user into custody and records the
// ledger entry. Requires a prior allowance from the user to the vault.
// Platform only.
func (h *EscrowHandler) Deposit(caller, user [20]byte, stakeID uint64, amount *big.Int) error {
	if h == nil || h.state == nil {
		return errEscrowNilState
	}
	if h.tok == nil {
		return errEscrowNilLedger
	}
	if err := h.requirePlatform(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	vault := VaultAddress()
	if err := h.tok.TransferFrom(vault, user, vault, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := h.state.KVPut(ledgerKey(user, stakeID), amount); err != nil {
		return err
	}
	total, err := h.PrincipalTotal()
	if err != nil {
		return err
	}
	return h.state.KVPut(principalTotalKey, new(big.Int).Add(total, amount))
}

// Debit zeroes the ledger entry for the (user, stake id) pair and draws the
// reward portion of totalAmount from the reward pool. State mutation only:
// the caller pairs it with Payout and is responsible for running both under
// its atomicity discipline. A shortfall in the pool surfaces as a hard
// failure rather than a silent partial payout. Platform only.
func (h *EscrowHandler) Debit(caller, user [20]byte, stakeID uint64, totalAmount *big.Int) error {
	if h == nil || h.state == nil {
		return errEscrowNilState
	}
	if err := h.requirePlatform(caller); err != nil {
		return err
	}
	principal, err := h.EscrowedAmount(user, stakeID)
	if err != nil {
		return err
	}
	if principal.Sign() == 0 {
		return ErrInsufficientEscrow
	}
	if totalAmount == nil || totalAmount.Cmp(principal) < 0 {
		return errEscrowNegPayout
	}
	rewardPortion := new(big.Int).Sub(totalAmount, principal)
	pool, err := h.RewardPoolBalance()
	if err != nil {
		return err
	}
	if pool.Cmp(rewardPortion) < 0 {
		return ErrInsufficientRewardPool
	}
	if err := h.state.KVDelete(ledgerKey(user, stakeID)); err != nil {
		return err
	}
	if err := h.state.KVPut(rewardPoolKey, new(big.Int).Sub(pool, rewardPortion)); err != nil {
		return err
	}
	totalPrincipal, err := h.PrincipalTotal()
	if err != nil {
		return err
	}
	return h.state.KVPut(principalTotalKey, new(big.Int).Sub(totalPrincipal, principal))
}

// Recredit restores the ledger entry and reward pool to their pre-Debit
// values. Compensation path for a failed external payout. Platform only.
func (h *EscrowHandler) Recredit(caller, user [20]byte, stakeID uint64, principal, rewardPortion *big.Int) error {
	if err := h.requirePlatform(caller); err != nil {
		return err
	}
	if err := h.state.KVPut(ledgerKey(user, stakeID), principal); err != nil {
		return err
	}
	pool, err := h.RewardPoolBalance()
	if err != nil {
		return err
	}
	if err := h.state.KVPut(rewardPoolKey, new(big.Int).Add(pool, rewardPortion)); err != nil {
		return err
	}
	totalPrincipal, err := h.PrincipalTotal()
	if err != nil {
		return err
	}
	return h.state.KVPut(principalTotalKey, new(big.Int).Add(totalPrincipal, principal))
}

// Payout transfers totalAmount from the vault to the user. Platform only.
func (h *EscrowHandler) Payout(caller, user [20]byte, totalAmount *big.Int) error {
	if h == nil || h.tok == nil {
		return errEscrowNilLedger
	}
	if err := h.requirePlatform(caller); err != nil {
		return err
	}
	if err := h.tok.Transfer(VaultAddress(), user, totalAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

// ReplenishRewards pulls amount from the caller's token balance into the
// vault and credits the reward pool. Requires a prior allowance to the vault.
// Admin only.
func (h *EscrowHandler) ReplenishRewards(caller [20]byte, amount *big.Int) error {
	isAdmin, err := h.checker.HasRole(caller, access.RoleAdmin)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	vault := VaultAddress()
	if err := h.tok.TransferFrom(vault, caller, vault, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	pool, err := h.RewardPoolBalance()
	if err != nil {
		return err
	}
	if err := h.state.KVPut(rewardPoolKey, new(big.Int).Add(pool, amount)); err != nil {
		return err
	}
	h.emitter.Emit(NewRewardsReplenishedEvent(caller, amount))
	return nil
}

// RecoverStuckTokens sweeps token balance held by the vault beyond the
// tracked principal and reward pool to the recipient. Covers tokens sent to
// the vault outside the staking flow. Admin only.
func (h *EscrowHandler) RecoverStuckTokens(caller [20]byte, ledger *token.Ledger, to [20]byte) (*big.Int, error) {
	isAdmin, err := h.checker.HasRole(caller, access.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, ErrUnauthorized
	}
	vault := VaultAddress()
	balance, err := ledger.BalanceOf(vault)
	if err != nil {
		return nil, err
	}
	tracked := big.NewInt(0)
	principal, err := h.PrincipalTotal()
	if err != nil {
		return nil, err
	}
	pool, err := h.RewardPoolBalance()
	if err != nil {
		return nil, err
	}
	tracked.Add(principal, pool)
	excess := new(big.Int).Sub(balance, tracked)
	if excess.Sign() <= 0 {
		return nil, ErrNoFundsToWithdraw
	}
	if err := ledger.Transfer(vault, to, excess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	h.emitter.Emit(NewTokensRecoveredEvent(to, ledger.Symbol(), excess))
	return excess, nil
}
