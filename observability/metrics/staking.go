package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StakingMetrics tracks ledger activity for operators and dashboards.
type StakingMetrics struct {
	stakesCreated *prometheus.CounterVec
	stakesClaimed *prometheus.CounterVec
	rewardPool    prometheus.Gauge
	feesCollected prometheus.Counter
}

var (
	stakingOnce     sync.Once
	stakingRegistry *StakingMetrics
)

// Staking returns the lazily-initialised staking metrics registry.
func Staking() *StakingMetrics {
	stakingOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			stakesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_stakes_created_total",
				Help: "Count of stakes created, segmented by tier.",
			}, []string{"tier"}),
			stakesClaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_stakes_claimed_total",
				Help: "Count of stakes claimed, segmented by tier.",
			}, []string{"tier"}),
			rewardPool: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_reward_pool_balance",
				Help: "Reward pool balance in token base units.",
			}),
			feesCollected: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_fees_collected_total",
				Help: "Cumulative fee value routed to the treasury.",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.stakesCreated,
			stakingRegistry.stakesClaimed,
			stakingRegistry.rewardPool,
			stakingRegistry.feesCollected,
		)
	})
	return stakingRegistry
}

// ObserveStakeCreated increments the creation counter for the tier.
func (m *StakingMetrics) ObserveStakeCreated(tier string) {
	m.stakesCreated.WithLabelValues(tier).Inc()
}

// ObserveStakeClaimed increments the claim counter for the tier.
func (m *StakingMetrics) ObserveStakeClaimed(tier string) {
	m.stakesClaimed.WithLabelValues(tier).Inc()
}

// SetRewardPool records the current reward pool balance.
func (m *StakingMetrics) SetRewardPool(balance float64) {
	m.rewardPool.Set(balance)
}

// AddFeesCollected records fee value routed to the treasury.
func (m *StakingMetrics) AddFeesCollected(amount float64) {
	m.feesCollected.Add(amount)
}
