package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"samuraistake/config"
	"samuraistake/gateway"
	"samuraistake/native/access"
	"samuraistake/native/faucet"
	"samuraistake/native/fees"
	"samuraistake/native/rewards"
	"samuraistake/native/staking"
	"samuraistake/native/token"
	"samuraistake/observability/logging"
	"samuraistake/state"
	"samuraistake/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SAMURAI_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("stakingd", env, &logging.Options{FilePath: cfg.LogFile})

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	registry := access.NewRegistry(manager)
	if err := bootstrapRoles(cfg, registry); err != nil {
		logger.Error("Failed to bootstrap roles", slog.Any("error", err))
		os.Exit(1)
	}

	ledger := token.NewLedger(manager, cfg.TokenSymbol)
	treasury := fees.NewTreasury(manager, registry)
	gate := fees.NewGate(manager, registry, treasury)
	rateManager := rewards.NewManager(manager, registry)
	escrow := staking.NewEscrowHandler(manager, ledger, registry)
	platform := staking.NewPlatform(manager, manager, escrow, rateManager, gate)
	dispenser := faucet.NewFaucet(manager, ledger, registry, gate)
	observer := newMetricsObserver(escrow)
	platform.SetEmitter(observer)
	escrow.SetEmitter(observer)
	gate.SetEmitter(observer)
	dispenser.SetEmitter(observer)
	pools, err := staking.NewPools(platform, gate, registry)
	if err != nil {
		logger.Error("Failed to build pools", slog.Any("error", err))
		os.Exit(1)
	}
	if err := seedEconomics(cfg, registry, gate, rateManager, escrow, platform); err != nil {
		logger.Error("Failed to seed economics", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Staking components wired",
		slog.Int("pools", len(pools)),
		slog.String("token", cfg.TokenSymbol),
	)

	handler := gateway.New(gateway.Deps{
		Platform: platform,
		Escrow:   escrow,
		FeeGate:  gate,
		Faucet:   dispenser,
		Logger:   logger,
	})
	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving read API", slog.String("addr", cfg.ListenAddress))
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("Shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", slog.Any("error", err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", slog.Any("error", err))
	}
}

// bootstrapRoles seeds the admin and operator configured for this deployment.
// Safe to run on every start; grants are idempotent.
func bootstrapRoles(cfg *config.Config, registry *access.Registry) error {
	if strings.TrimSpace(cfg.BootstrapAdmin) == "" {
		count, err := registry.AdminCount()
		if err != nil {
			return err
		}
		if count == 0 {
			return errors.New("no admin configured and none bootstrapped")
		}
		return nil
	}
	admin, err := config.ParseAddress(cfg.BootstrapAdmin)
	if err != nil {
		return err
	}
	if err := registry.Bootstrap(admin); err != nil {
		return err
	}
	operator := admin
	if strings.TrimSpace(cfg.BootstrapOperator) != "" {
		if operator, err = config.ParseAddress(cfg.BootstrapOperator); err != nil {
			return err
		}
	}
	return registry.GrantRole(admin, operator, access.RoleOperator)
}

// seedEconomics applies the configured fee and rate table and registers the
// platform with the escrow on first start. On a restart with no bootstrap
// addresses configured, the persisted state already carries everything and
// seeding is skipped.
func seedEconomics(cfg *config.Config, registry *access.Registry, gate *fees.Gate, rateManager *rewards.Manager, escrow *staking.EscrowHandler, platform *staking.Platform) error {
	adminConfigured := strings.TrimSpace(cfg.BootstrapAdmin) != ""
	if _, err := escrow.Platform(); err != nil {
		if !adminConfigured {
			return errors.New("no platform registered and no admin configured to register one")
		}
		admin, err := config.ParseAddress(cfg.BootstrapAdmin)
		if err != nil {
			return err
		}
		if err := escrow.UpdateStakingPlatform(admin, platform.Address()); err != nil {
			return err
		}
	}
	var operator [20]byte
	switch {
	case strings.TrimSpace(cfg.BootstrapOperator) != "":
		parsed, err := config.ParseAddress(cfg.BootstrapOperator)
		if err != nil {
			return err
		}
		operator = parsed
	case adminConfigured:
		parsed, err := config.ParseAddress(cfg.BootstrapAdmin)
		if err != nil {
			return err
		}
		operator = parsed
	default:
		// Nothing to seed with; fee and rates were set on a prior run.
		return nil
	}
	fee, ok := new(big.Int).SetString(strings.TrimSpace(cfg.Fees.CurrentFee), 10)
	if !ok {
		return fmt.Errorf("invalid fee amount %q", cfg.Fees.CurrentFee)
	}
	current, err := gate.CurrentFee()
	if err != nil {
		return err
	}
	if current.Sign() == 0 && fee.Sign() > 0 {
		if err := gate.UpdateFeeAmount(operator, fee); err != nil {
			return err
		}
	}
	seedRates := map[staking.Tier]uint64{
		staking.TierOneDay:   cfg.Rates.OneDay,
		staking.TierOneWeek:  cfg.Rates.OneWeek,
		staking.TierOneMonth: cfg.Rates.OneMonth,
		staking.TierSixMonth: cfg.Rates.SixMonth,
		staking.TierOneYear:  cfg.Rates.OneYear,
	}
	for tier, rate := range seedRates {
		existing, err := rateManager.RateFor(tier)
		if err != nil {
			return err
		}
		if existing == 0 && rate > 0 {
			if err := rateManager.SetRewardRate(operator, tier, rate); err != nil {
				return err
			}
		}
	}
	return nil
}
