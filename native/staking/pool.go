package staking

import (
	"errors"
	"math/big"

	"samuraistake/native/access"
)

// Pool is the duration-specific entry point users stake through. One instance
// exists per tier; all share this implementation and differ only in the tier
// metadata they carry.
type Pool struct {
	tier     Tier
	platform *Platform
	gate     FeeGate
	checker  access.Checker
}

// NewPool constructs the facade for a tier.
func NewPool(tier Tier, platform *Platform, gate FeeGate, checker access.Checker) (*Pool, error) {
	if !tier.Valid() {
		return nil, errors.New("staking: invalid pool tier")
	}
	return &Pool{tier: tier, platform: platform, gate: gate, checker: checker}, nil
}

// NewPools constructs one facade per supported tier, keyed by tier.
func NewPools(platform *Platform, gate FeeGate, checker access.Checker) (map[Tier]*Pool, error) {
	pools := make(map[Tier]*Pool, len(Tiers()))
	for _, tier := range Tiers() {
		pool, err := NewPool(tier, platform, gate, checker)
		if err != nil {
			return nil, err
		}
		pools[tier] = pool
	}
	return pools, nil
}

// Tier returns the fixed tier this pool stakes into.
func (p *Pool) Tier() Tier { return p.tier }

// Stake validates the attached fee and amount, then delegates to the platform
// with the pool's fixed tier and the caller as owner. The full fee payment is
// retained by the treasury, excess included.
func (p *Pool) Stake(caller [20]byte, amount, fee *big.Int) (uint64, error) {
	if p == nil || p.platform == nil {
		return 0, errors.New("staking: pool not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if p.gate != nil {
		if err := p.gate.Require(fee, 1); err != nil {
			return 0, err
		}
	}
	id, err := p.platform.CreateStake(caller, amount, p.tier)
	if err != nil {
		return 0, err
	}
	if p.gate != nil {
		if err := p.gate.Collect(fee); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// UpdateAdminContract swaps the access registry the pool trusts. Admin only;
// takes effect for subsequent calls.
func (p *Pool) UpdateAdminContract(caller [20]byte, checker access.Checker) error {
	isAdmin, err := p.checker.HasRole(caller, access.RoleAdmin)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrUnauthorized
	}
	if checker == nil {
		return errors.New("staking: nil access checker")
	}
	p.checker = checker
	return nil
}

// UpdateStakingPlatform swaps the platform the pool forwards to. Admin only;
// takes effect for subsequent calls.
func (p *Pool) UpdateStakingPlatform(caller [20]byte, platform *Platform) error {
	isAdmin, err := p.checker.HasRole(caller, access.RoleAdmin)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrUnauthorized
	}
	if platform == nil {
		return errors.New("staking: nil platform")
	}
	p.platform = platform
	return nil
}
