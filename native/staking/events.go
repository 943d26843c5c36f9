package staking

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"samuraistake/events"
)

const (
	// EventTypeUserDeposited is emitted when principal enters escrow for a
	// newly created stake.
	EventTypeUserDeposited = "staking.userDeposited"
	// EventTypeUserWithdrawn is emitted when principal plus reward is
	// released to the owner on claim.
	EventTypeUserWithdrawn = "staking.userWithdrawn"
	// EventTypeRewardsReplenished is emitted when an admin funds the
	// reward pool.
	EventTypeRewardsReplenished = "staking.rewardsReplenished"
	// EventTypePlatformRotated is emitted when the escrow's authorized
	// platform changes.
	EventTypePlatformRotated = "staking.platformRotated"
	// EventTypeTokensRecovered is emitted when stray token balances are
	// swept out of a custody account.
	EventTypeTokensRecovered = "staking.tokensRecovered"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewUserDepositedEvent returns the canonical payload for a recorded deposit.
func NewUserDepositedEvent(user [20]byte, stakeID uint64, amount *big.Int, tier Tier) *events.Event {
	return &events.Event{
		Type: EventTypeUserDeposited,
		Attributes: map[string]string{
			"user":    hex.EncodeToString(user[:]),
			"stakeId": strconv.FormatUint(stakeID, 10),
			"amount":  formatAmount(amount),
			"tier":    tier.String(),
		},
	}
}

// NewUserWithdrawnEvent returns the canonical payload for a claim release.
func NewUserWithdrawnEvent(user [20]byte, stakeID uint64, amount *big.Int, tier Tier) *events.Event {
	return &events.Event{
		Type: EventTypeUserWithdrawn,
		Attributes: map[string]string{
			"user":    hex.EncodeToString(user[:]),
			"stakeId": strconv.FormatUint(stakeID, 10),
			"amount":  formatAmount(amount),
			"tier":    tier.String(),
		},
	}
}

// NewRewardsReplenishedEvent returns the payload for a reward pool top-up.
func NewRewardsReplenishedEvent(from [20]byte, amount *big.Int) *events.Event {
	return &events.Event{
		Type: EventTypeRewardsReplenished,
		Attributes: map[string]string{
			"from":   hex.EncodeToString(from[:]),
			"amount": formatAmount(amount),
		},
	}
}

// NewPlatformRotatedEvent returns the payload for a platform swap.
func NewPlatformRotatedEvent(previous, next [20]byte) *events.Event {
	return &events.Event{
		Type: EventTypePlatformRotated,
		Attributes: map[string]string{
			"previous": hex.EncodeToString(previous[:]),
			"next":     hex.EncodeToString(next[:]),
		},
	}
}

// NewTokensRecoveredEvent returns the payload for a stray balance sweep.
func NewTokensRecoveredEvent(to [20]byte, tokenSymbol string, amount *big.Int) *events.Event {
	return &events.Event{
		Type: EventTypeTokensRecovered,
		Attributes: map[string]string{
			"to":     hex.EncodeToString(to[:]),
			"token":  tokenSymbol,
			"amount": formatAmount(amount),
		},
	}
}
