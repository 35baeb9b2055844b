package lending

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// A "vanilla" obligation is the default per-user obligation of a market.
const (
	vanillaObligationTag uint8 = 0
	vanillaObligationID  uint8 = 0
)

type reservePDAs struct {
	marketAuthority  solana.PublicKey
	liquiditySupply  solana.PublicKey
	collateralMint   solana.PublicKey
	collateralSupply solana.PublicKey
}

func (a *Adapter) findPDA(programID solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive program address: %w", err)
	}
	return addr, nil
}

func (a *Adapter) marketAuthority(market solana.PublicKey) (solana.PublicKey, error) {
	return a.findPDA(a.cfg.ProgramID, []byte("lma"), market.Bytes())
}

func (a *Adapter) reservePDAs(r *Reserve) (reservePDAs, error) {
	var (
		out reservePDAs
		err error
	)
	if out.marketAuthority, err = a.marketAuthority(r.LendingMarket); err != nil {
		return out, err
	}
	if out.liquiditySupply, err = a.findPDA(a.cfg.ProgramID, []byte("reserve_liq_supply"), r.LendingMarket.Bytes(), r.LiquidityMint.Bytes()); err != nil {
		return out, err
	}
	if out.collateralMint, err = a.findPDA(a.cfg.ProgramID, []byte("reserve_coll_mint"), r.LendingMarket.Bytes(), r.LiquidityMint.Bytes()); err != nil {
		return out, err
	}
	if out.collateralSupply, err = a.findPDA(a.cfg.ProgramID, []byte("reserve_coll_supply"), r.LendingMarket.Bytes(), r.LiquidityMint.Bytes()); err != nil {
		return out, err
	}
	return out, nil
}

// ObligationAddress derives the vanilla obligation of owner in market.
func (a *Adapter) ObligationAddress(owner, market solana.PublicKey) (solana.PublicKey, error) {
	return a.findPDA(a.cfg.ProgramID,
		[]byte{vanillaObligationTag},
		[]byte{vanillaObligationID},
		owner.Bytes(),
		market.Bytes(),
		solana.SystemProgramID.Bytes(),
		solana.SystemProgramID.Bytes(),
	)
}

func (a *Adapter) userMetadataAddress(owner solana.PublicKey) (solana.PublicKey, error) {
	return a.findPDA(a.cfg.ProgramID, []byte("user_meta"), owner.Bytes())
}

func (a *Adapter) obligationFarmAddress(farm, obligation solana.PublicKey) (solana.PublicKey, error) {
	return a.findPDA(a.cfg.FarmsProgramID, []byte("user"), farm.Bytes(), obligation.Bytes())
}
