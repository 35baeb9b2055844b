package lending

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"go.uber.org/zap"

	"github.com/leafsii/blinks-backend/internal/onchain"
)

// ErrMarketMismatch is returned when the configured reserve belongs to another market.
var ErrMarketMismatch = errors.New("reserve does not belong to the configured lending market")

type Config struct {
	ProgramID      solana.PublicKey
	FarmsProgramID solana.PublicKey
	Market         solana.PublicKey
	Reserve        solana.PublicKey
	ComputeUnits   uint32
}

// Adapter builds klend deposit instructions from live account state.
type Adapter struct {
	chain  onchain.ChainReader
	cfg    Config
	logger *zap.SugaredLogger
}

func NewAdapter(chain onchain.ChainReader, cfg Config, logger *zap.SugaredLogger) *Adapter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Adapter{chain: chain, cfg: cfg, logger: logger}
}

// LoadReserve reads the configured reserve and its liquidity mint decimals.
func (a *Adapter) LoadReserve(ctx context.Context) (*Reserve, error) {
	reserve, err := a.loadReserveAt(ctx, a.cfg.Reserve)
	if err != nil {
		return nil, err
	}
	if !a.cfg.Market.IsZero() && !reserve.LendingMarket.Equals(a.cfg.Market) {
		return nil, fmt.Errorf("%w: reserve %s market %s", ErrMarketMismatch, reserve.Address, reserve.LendingMarket)
	}

	mintData, err := a.chain.AccountData(ctx, reserve.LiquidityMint)
	if err != nil {
		return nil, fmt.Errorf("failed to load liquidity mint: %w", err)
	}
	if reserve.Decimals, err = decodeMintDecimals(reserve.LiquidityMint, mintData); err != nil {
		return nil, err
	}
	return reserve, nil
}

// loadReserveAt decodes any reserve of the program, e.g. one an existing
// obligation already touches.
func (a *Adapter) loadReserveAt(ctx context.Context, address solana.PublicKey) (*Reserve, error) {
	data, err := a.chain.AccountData(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to load reserve %s: %w", address, err)
	}
	return decodeReserve(address, data)
}

// loadObligation returns nil when the owner has no obligation yet.
func (a *Adapter) loadObligation(ctx context.Context, address solana.PublicKey) (*Obligation, error) {
	data, err := a.chain.AccountData(ctx, address)
	if errors.Is(err, onchain.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load obligation: %w", err)
	}
	return decodeObligation(address, data)
}

func (a *Adapter) accountExists(ctx context.Context, address solana.PublicKey) (bool, error) {
	_, err := a.chain.AccountData(ctx, address)
	if errors.Is(err, onchain.ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DepositGroups builds the instructions that deposit amount base units of the
// reserve's liquidity for owner and post them as obligation collateral.
//
// Setup refreshes every reserve the obligation touches plus the target, then
// the obligation itself and the collateral farm. A missing obligation (and user
// metadata) is created first. Cleanup refreshes the farm again so the new
// stake is recorded.
func (a *Adapter) DepositGroups(ctx context.Context, owner solana.PublicKey, reserve *Reserve, amount uint64) (onchain.InstructionGroups, error) {
	var groups onchain.InstructionGroups
	if amount == 0 {
		return groups, errors.New("deposit amount must be positive")
	}

	obligationAddr, err := a.ObligationAddress(owner, reserve.LendingMarket)
	if err != nil {
		return groups, err
	}
	obligation, err := a.loadObligation(ctx, obligationAddr)
	if err != nil {
		return groups, err
	}

	if a.cfg.ComputeUnits > 0 {
		groups.Setup = append(groups.Setup,
			computebudget.NewSetComputeUnitLimitInstruction(a.cfg.ComputeUnits).Build())
	}

	var deposits, borrows []solana.PublicKey
	if obligation == nil {
		userMeta, err := a.userMetadataAddress(owner)
		if err != nil {
			return groups, err
		}
		hasMeta, err := a.accountExists(ctx, userMeta)
		if err != nil {
			return groups, fmt.Errorf("failed to load user metadata: %w", err)
		}
		if !hasMeta {
			ix, err := a.initUserMetadata(owner, userMeta)
			if err != nil {
				return groups, err
			}
			groups.Setup = append(groups.Setup, ix)
		}
		ix, err := a.initObligation(owner, reserve.LendingMarket, obligationAddr, userMeta)
		if err != nil {
			return groups, err
		}
		groups.Setup = append(groups.Setup, ix)
	} else {
		deposits, borrows = obligation.DepositReserves, obligation.BorrowReserves
	}

	for _, addr := range reservesToRefresh(deposits, borrows, reserve.Address) {
		r := reserve
		if !addr.Equals(reserve.Address) {
			if r, err = a.loadReserveAt(ctx, addr); err != nil {
				return groups, err
			}
		}
		ix, err := a.refreshReserve(r)
		if err != nil {
			return groups, err
		}
		groups.Setup = append(groups.Setup, ix)
	}

	ix, err := a.refreshObligation(reserve.LendingMarket, obligationAddr, deposits, borrows)
	if err != nil {
		return groups, err
	}
	groups.Setup = append(groups.Setup, ix)

	var farmRefresh solana.Instruction
	if reserve.HasCollateralFarm() {
		farmUser, err := a.obligationFarmAddress(reserve.FarmCollateral, obligationAddr)
		if err != nil {
			return groups, err
		}
		exists, err := a.accountExists(ctx, farmUser)
		if err != nil {
			return groups, fmt.Errorf("failed to load obligation farm: %w", err)
		}
		if !exists {
			ix, err := a.initObligationFarm(owner, obligationAddr, reserve, farmUser)
			if err != nil {
				return groups, err
			}
			groups.Setup = append(groups.Setup, ix)
		}
		if farmRefresh, err = a.refreshObligationFarm(owner, obligationAddr, reserve, farmUser); err != nil {
			return groups, err
		}
		groups.Setup = append(groups.Setup, farmRefresh)
	}

	deposit, err := a.depositLiquidityAndCollateral(owner, obligationAddr, reserve, amount)
	if err != nil {
		return groups, err
	}
	groups.Primary = append(groups.Primary, deposit)

	if farmRefresh != nil {
		groups.Cleanup = append(groups.Cleanup, farmRefresh)
	}

	a.logger.Debugw("Built deposit instructions",
		"owner", owner,
		"reserve", reserve.Address,
		"amount", amount,
		"new_obligation", obligation == nil,
		"setup", len(groups.Setup),
		"cleanup", len(groups.Cleanup),
	)
	return groups, nil
}

// reservesToRefresh lists deposits, then borrows, then target, without duplicates.
func reservesToRefresh(deposits, borrows []solana.PublicKey, target solana.PublicKey) []solana.PublicKey {
	seen := make(map[solana.PublicKey]struct{})
	var out []solana.PublicKey
	add := func(k solana.PublicKey) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for _, k := range deposits {
		add(k)
	}
	for _, k := range borrows {
		add(k)
	}
	add(target)
	return out
}
