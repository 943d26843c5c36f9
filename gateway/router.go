package gateway

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"samuraistake/gateway/middleware"
	"samuraistake/native/faucet"
	"samuraistake/native/fees"
	"samuraistake/native/staking"
)

// Deps carries the components the read API serves from.
type Deps struct {
	Platform *staking.Platform
	Escrow   *staking.EscrowHandler
	FeeGate  *fees.Gate
	Faucet   *faucet.Faucet
	Logger   *slog.Logger
}

// New builds the read-only HTTP API. Mutating flows stay owned by the
// components; the gateway never writes state.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if deps.Logger != nil {
		r.Use(middleware.Logger(deps.Logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(sr chi.Router) {
		sr.Get("/stakes/{id}", handleGetStake(deps))
		sr.Get("/accounts/{addr}/stakes", handleGetUserStakes(deps))
		sr.Get("/rewards/balance", handleGetRewardBalance(deps))
		sr.Get("/fees/current", handleGetCurrentFee(deps))
		if deps.Faucet != nil {
			sr.Get("/faucet", handleGetFaucet(deps))
		}
	})
	return r
}

type stakePayload struct {
	ID        uint64 `json:"id"`
	Owner     string `json:"owner"`
	Amount    string `json:"amount"`
	Tier      string `json:"tier"`
	Reward    string `json:"reward"`
	CreatedAt uint64 `json:"createdAt"`
	UnlockAt  uint64 `json:"unlockAt"`
	Claimed   bool   `json:"claimed"`
}

type errorPayload struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Error: message})
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	cleaned := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(cleaned)
	if err != nil || len(raw) != 20 {
		return addr, errors.New("invalid account address")
	}
	copy(addr[:], raw)
	return addr, nil
}

func handleGetStake(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid stake id")
			return
		}
		stake, err := deps.Platform.GetStakeData(id)
		if errors.Is(err, staking.ErrNotFound) {
			writeError(w, http.StatusNotFound, "stake not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, stakePayload{
			ID:        stake.ID,
			Owner:     hex.EncodeToString(stake.Owner[:]),
			Amount:    stake.Amount.String(),
			Tier:      stake.Tier.String(),
			Reward:    stake.Reward.String(),
			CreatedAt: stake.CreatedAt,
			UnlockAt:  stake.UnlockAt(),
			Claimed:   stake.Claimed,
		})
	}
}

func handleGetUserStakes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := parseAddress(chi.URLParam(r, "addr"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var ids []uint64
		if tierParam := strings.TrimSpace(r.URL.Query().Get("tier")); tierParam != "" {
			tier, err := staking.ParseTier(tierParam)
			if err != nil {
				writeError(w, http.StatusBadRequest, "unknown tier")
				return
			}
			ids, err = deps.Platform.GetUserStakeIDsInPool(addr, tier)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "lookup failed")
				return
			}
		} else {
			ids, err = deps.Platform.GetUserStakeIDs(addr)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "lookup failed")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string][]uint64{"stakeIds": ids})
	}
}

func handleGetRewardBalance(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		balance, err := deps.Escrow.RewardPoolBalance()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
	}
}

func handleGetFaucet(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		balance, err := deps.Faucet.Balance()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		drip, err := deps.Faucet.DripAmount()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		cooldown, err := deps.Faucet.Cooldown()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"balance":         balance.String(),
			"dripAmount":      drip.String(),
			"cooldownSeconds": strconv.FormatUint(cooldown, 10),
		})
	}
}

func handleGetCurrentFee(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		fee, err := deps.FeeGate.CurrentFee()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"fee": fee.String()})
	}
}
