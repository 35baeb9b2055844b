package lending

import (
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// farmModeCollateral selects the collateral side of a reserve's farms.
const farmModeCollateral uint8 = 0

func sighash(namespace, name string) [8]byte {
	var out [8]byte
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	copy(out[:], sum[:8])
	return out
}

func instructionDiscriminator(name string) [8]byte { return sighash("global", name) }

func accountDiscriminator(name string) [8]byte { return sighash("account", name) }

// programCall encodes an anchor instruction: 8-byte discriminator followed by
// the borsh encoded args.
func programCall(programID solana.PublicKey, name string, accounts solana.AccountMetaSlice, args ...interface{}) (solana.Instruction, error) {
	disc := instructionDiscriminator(name)
	data := append([]byte{}, disc[:]...)
	for _, arg := range args {
		b, err := bin.MarshalBorsh(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s args: %w", name, err)
		}
		data = append(data, b...)
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

// optional returns key, or the program id which klend reads as "none".
func (a *Adapter) optional(key solana.PublicKey) solana.PublicKey {
	if key.IsZero() {
		return a.cfg.ProgramID
	}
	return key
}

func (a *Adapter) refreshReserve(reserve *Reserve) (solana.Instruction, error) {
	return programCall(a.cfg.ProgramID, "refresh_reserve", solana.AccountMetaSlice{
		solana.Meta(reserve.Address).WRITE(),
		solana.Meta(reserve.LendingMarket),
		solana.Meta(a.optional(reserve.Oracles.Pyth)),
		solana.Meta(a.optional(reserve.Oracles.SwitchboardPrice)),
		solana.Meta(a.optional(reserve.Oracles.SwitchboardTwap)),
		solana.Meta(a.optional(reserve.Oracles.Scope)),
	})
}

func (a *Adapter) refreshObligation(market, obligation solana.PublicKey, deposits, borrows []solana.PublicKey) (solana.Instruction, error) {
	accounts := solana.AccountMetaSlice{
		solana.Meta(market),
		solana.Meta(obligation).WRITE(),
	}
	for _, r := range deposits {
		accounts = append(accounts, solana.Meta(r))
	}
	for _, r := range borrows {
		accounts = append(accounts, solana.Meta(r).WRITE())
	}
	return programCall(a.cfg.ProgramID, "refresh_obligation", accounts)
}

func (a *Adapter) initUserMetadata(owner, userMetadata solana.PublicKey) (solana.Instruction, error) {
	return programCall(a.cfg.ProgramID, "init_user_metadata", solana.AccountMetaSlice{
		solana.Meta(owner).SIGNER(),
		solana.Meta(owner).WRITE().SIGNER(),
		solana.Meta(userMetadata).WRITE(),
		solana.Meta(a.cfg.ProgramID), // referrer
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(solana.SystemProgramID),
	}, solana.PublicKey{})
}

type initObligationArgs struct {
	Tag uint8
	ID  uint8
}

func (a *Adapter) initObligation(owner, market, obligation, userMetadata solana.PublicKey) (solana.Instruction, error) {
	return programCall(a.cfg.ProgramID, "init_obligation", solana.AccountMetaSlice{
		solana.Meta(owner).SIGNER(),
		solana.Meta(owner).WRITE().SIGNER(),
		solana.Meta(obligation).WRITE(),
		solana.Meta(market),
		solana.Meta(solana.SystemProgramID), // seed1
		solana.Meta(solana.SystemProgramID), // seed2
		solana.Meta(userMetadata),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(solana.SystemProgramID),
	}, initObligationArgs{Tag: vanillaObligationTag, ID: vanillaObligationID})
}

func (a *Adapter) initObligationFarm(owner, obligation solana.PublicKey, reserve *Reserve, farmUser solana.PublicKey) (solana.Instruction, error) {
	authority, err := a.marketAuthority(reserve.LendingMarket)
	if err != nil {
		return nil, err
	}
	return programCall(a.cfg.ProgramID, "init_obligation_farms_for_reserve", solana.AccountMetaSlice{
		solana.Meta(owner).WRITE().SIGNER(),
		solana.Meta(owner),
		solana.Meta(obligation).WRITE(),
		solana.Meta(authority),
		solana.Meta(reserve.Address).WRITE(),
		solana.Meta(reserve.FarmCollateral).WRITE(),
		solana.Meta(farmUser).WRITE(),
		solana.Meta(reserve.LendingMarket),
		solana.Meta(a.cfg.FarmsProgramID),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(solana.SystemProgramID),
	}, farmModeCollateral)
}

func (a *Adapter) refreshObligationFarm(owner, obligation solana.PublicKey, reserve *Reserve, farmUser solana.PublicKey) (solana.Instruction, error) {
	authority, err := a.marketAuthority(reserve.LendingMarket)
	if err != nil {
		return nil, err
	}
	return programCall(a.cfg.ProgramID, "refresh_obligation_farms_for_reserve", solana.AccountMetaSlice{
		solana.Meta(owner).SIGNER(),
		solana.Meta(obligation),
		solana.Meta(authority),
		solana.Meta(reserve.Address),
		solana.Meta(reserve.FarmCollateral).WRITE(),
		solana.Meta(farmUser).WRITE(),
		solana.Meta(reserve.LendingMarket),
		solana.Meta(a.cfg.FarmsProgramID),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(solana.SystemProgramID),
	}, farmModeCollateral)
}

func (a *Adapter) depositLiquidityAndCollateral(owner, obligation solana.PublicKey, reserve *Reserve, amount uint64) (solana.Instruction, error) {
	pdas, err := a.reservePDAs(reserve)
	if err != nil {
		return nil, err
	}
	source, _, err := solana.FindAssociatedTokenAddress(owner, reserve.LiquidityMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive source token account: %w", err)
	}

	return programCall(a.cfg.ProgramID, "deposit_reserve_liquidity_and_obligation_collateral", solana.AccountMetaSlice{
		solana.Meta(owner).WRITE().SIGNER(),
		solana.Meta(obligation).WRITE(),
		solana.Meta(reserve.LendingMarket),
		solana.Meta(pdas.marketAuthority),
		solana.Meta(reserve.Address).WRITE(),
		solana.Meta(reserve.LiquidityMint),
		solana.Meta(pdas.liquiditySupply).WRITE(),
		solana.Meta(pdas.collateralMint).WRITE(),
		solana.Meta(pdas.collateralSupply).WRITE(),
		solana.Meta(source).WRITE(),
		solana.Meta(a.cfg.ProgramID), // user destination collateral
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SysVarInstructionsPubkey),
	}, amount)
}
