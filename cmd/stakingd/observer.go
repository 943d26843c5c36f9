package main

import (
	"math/big"

	"samuraistake/events"
	"samuraistake/native/fees"
	"samuraistake/native/staking"
	"samuraistake/observability/metrics"
)

// metricsObserver feeds component events into the prometheus registry served
// on /metrics.
type metricsObserver struct {
	registry *metrics.StakingMetrics
	escrow   *staking.EscrowHandler
}

func newMetricsObserver(escrow *staking.EscrowHandler) *metricsObserver {
	return &metricsObserver{registry: metrics.Staking(), escrow: escrow}
}

func (o *metricsObserver) Emit(evt *events.Event) {
	if evt == nil {
		return
	}
	switch evt.Type {
	case staking.EventTypeUserDeposited:
		o.registry.ObserveStakeCreated(evt.Attributes["tier"])
	case staking.EventTypeUserWithdrawn:
		o.registry.ObserveStakeClaimed(evt.Attributes["tier"])
		o.refreshRewardPool()
	case staking.EventTypeRewardsReplenished:
		o.refreshRewardPool()
	case fees.EventTypeFeesCollected:
		if amount, ok := new(big.Float).SetString(evt.Attributes["amount"]); ok {
			value, _ := amount.Float64()
			o.registry.AddFeesCollected(value)
		}
	}
}

func (o *metricsObserver) refreshRewardPool() {
	balance, err := o.escrow.RewardPoolBalance()
	if err != nil {
		return
	}
	value, _ := new(big.Float).SetInt(balance).Float64()
	o.registry.SetRewardPool(value)
}
