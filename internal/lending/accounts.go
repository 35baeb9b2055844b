package lending

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

const (
	maxObligationDeposits = 8
	maxObligationBorrows  = 5
)

var ErrInvalidAccount = errors.New("invalid lending account data")

// lastUpdate mirrors the klend LastUpdate struct.
type lastUpdate struct {
	Slot        uint64
	Stale       uint8
	PriceStatus uint8
	Placeholder [6]uint8
}

// reserveHeader is the fixed prefix of a klend Reserve account.
type reserveHeader struct {
	Discriminator        [8]byte
	Version              uint64
	LastUpdate           lastUpdate
	LendingMarket        solana.PublicKey
	FarmCollateral       solana.PublicKey
	FarmDebt             solana.PublicKey
	LiquidityMint        solana.PublicKey
	LiquiditySupplyVault solana.PublicKey
	LiquidityFeeVault    solana.PublicKey
}

type reserveLiquidityTail struct {
	AvailableAmount           uint64
	BorrowedAmountSf          [16]byte
	MarketPriceSf             [16]byte
	MarketPriceLastUpdatedTs  uint64
	MintDecimals              uint64
	DepositLimitCrossedTs     uint64
	BorrowLimitCrossedTs      uint64
	CumulativeBorrowRateBsf   bigFractionBytes
	AccumulatedProtocolFeesSf [16]byte
	AccumulatedReferrerFeesSf [16]byte
	PendingReferrerFeesSf     [16]byte
	AbsoluteReferralRateSf    [16]byte
	TokenProgram              solana.PublicKey
	Padding2                  [51]uint64
	Padding3                  [32][16]byte
}

type reserveCollateral struct {
	MintPubkey      solana.PublicKey
	MintTotalSupply uint64
	SupplyVault     solana.PublicKey
	Padding1        [32][16]byte
	Padding2        [32][16]byte
}

type reserveFees struct {
	BorrowFeeSf    uint64
	FlashLoanFeeSf uint64
	Padding        [8]uint8
}

type curvePoint struct {
	UtilizationRateBps uint32
	BorrowRateBps      uint32
}

type priceHeuristic struct {
	Lower uint64
	Upper uint64
	Exp   uint64
}

// tokenInfo holds the oracle configuration of a reserve. Unset feeds are
// zero keys.
type tokenInfo struct {
	Name                 [32]byte
	Heuristic            priceHeuristic
	MaxTwapDivergenceBps uint64
	MaxAgePriceSeconds   uint64
	MaxAgeTwapSeconds    uint64
	ScopePriceFeed       solana.PublicKey
	ScopePriceChain      [4]uint16
	ScopeTwapChain       [4]uint16
	SwitchboardPrice     solana.PublicKey
	SwitchboardTwap      solana.PublicKey
	PythPrice            solana.PublicKey
}

// reserveConfigHead is ReserveConfig up to and including its token info.
type reserveConfigHead struct {
	Status                     uint8
	AssetTier                  uint8
	HostFixedInterestRateBps   uint16
	Reserved2                  [2]uint8
	Reserved3                  [8]uint8
	ProtocolTakeRatePct        uint8
	ProtocolLiquidationFeePct  uint8
	LoanToValuePct             uint8
	LiquidationThresholdPct    uint8
	MinLiquidationBonusBps     uint16
	MaxLiquidationBonusBps     uint16
	BadDebtLiquidationBonusBps uint16
	DeleveragingMarginCallSecs uint64
	DeleveragingThresholdBps   uint64
	Fees                       reserveFees
	BorrowRateCurve            [11]curvePoint
	BorrowFactorPct            uint64
	DepositLimit               uint64
	BorrowLimit                uint64
	TokenInfo                  tokenInfo
}

// reserveLayout is the prefix of a klend Reserve account through
// config.token_info. Later fields are not decoded.
type reserveLayout struct {
	Header            reserveHeader
	Liquidity         reserveLiquidityTail
	LiquidityPadding  [150]uint64
	Collateral        reserveCollateral
	CollateralPadding [150]uint64
	Config            reserveConfigHead
}

type obligationCollateral struct {
	DepositReserve   solana.PublicKey
	DepositedAmount  uint64
	MarketValueSf    [16]byte
	BorrowedInElevGr uint64
	Padding          [9]uint64
}

type bigFractionBytes struct {
	Value   [4]uint64
	Padding [2]uint64
}

type obligationLiquidity struct {
	BorrowReserve            solana.PublicKey
	CumulativeBorrowRateBsf  bigFractionBytes
	Padding                  uint64
	BorrowedAmountSf         [16]byte
	MarketValueSf            [16]byte
	BorrowFactorAdjustedSf   [16]byte
	BorrowedOutsideElevGroup uint64
	Padding2                 [7]uint64
}

// obligationHeader is the prefix of a klend Obligation account up to and
// including its borrows.
type obligationHeader struct {
	Discriminator        [8]byte
	Tag                  uint64
	LastUpdate           lastUpdate
	LendingMarket        solana.PublicKey
	Owner                solana.PublicKey
	Deposits             [maxObligationDeposits]obligationCollateral
	LowestReserveLiqLtv  uint64
	DepositedValueSf     [16]byte
	Borrows              [maxObligationBorrows]obligationLiquidity
}

// Reserve is what the deposit flow needs to know about a lending reserve.
type Reserve struct {
	Address        solana.PublicKey
	LendingMarket  solana.PublicKey
	FarmCollateral solana.PublicKey
	LiquidityMint  solana.PublicKey
	Decimals       uint8
	Oracles        Oracles
}

// Oracles are the price accounts refresh_reserve reads for a reserve.
type Oracles struct {
	Pyth             solana.PublicKey
	SwitchboardPrice solana.PublicKey
	SwitchboardTwap  solana.PublicKey
	Scope            solana.PublicKey
}

// HasCollateralFarm reports whether deposits into the reserve are staked in a farm.
func (r *Reserve) HasCollateralFarm() bool {
	return !r.FarmCollateral.IsZero()
}

// Obligation lists the reserves a user's existing obligation touches.
type Obligation struct {
	Address         solana.PublicKey
	DepositReserves []solana.PublicKey
	BorrowReserves  []solana.PublicKey
}

func decodeReserve(address solana.PublicKey, data []byte) (*Reserve, error) {
	var l reserveLayout
	if err := bin.NewBorshDecoder(data).Decode(&l); err != nil {
		return nil, fmt.Errorf("%w: reserve %s: %v", ErrInvalidAccount, address, err)
	}
	h, ti := l.Header, l.Config.TokenInfo
	if h.Discriminator != accountDiscriminator("Reserve") {
		return nil, fmt.Errorf("%w: %s is not a reserve", ErrInvalidAccount, address)
	}
	return &Reserve{
		Address:        address,
		LendingMarket:  h.LendingMarket,
		FarmCollateral: h.FarmCollateral,
		LiquidityMint:  h.LiquidityMint,
		Oracles: Oracles{
			Pyth:             ti.PythPrice,
			SwitchboardPrice: ti.SwitchboardPrice,
			SwitchboardTwap:  ti.SwitchboardTwap,
			Scope:            ti.ScopePriceFeed,
		},
	}, nil
}

func decodeObligation(address solana.PublicKey, data []byte) (*Obligation, error) {
	var h obligationHeader
	if err := bin.NewBorshDecoder(data).Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: obligation %s: %v", ErrInvalidAccount, address, err)
	}
	if h.Discriminator != accountDiscriminator("Obligation") {
		return nil, fmt.Errorf("%w: %s is not an obligation", ErrInvalidAccount, address)
	}

	ob := &Obligation{Address: address}
	for _, d := range h.Deposits {
		if !d.DepositReserve.IsZero() {
			ob.DepositReserves = append(ob.DepositReserves, d.DepositReserve)
		}
	}
	for _, b := range h.Borrows {
		if !b.BorrowReserve.IsZero() {
			ob.BorrowReserves = append(ob.BorrowReserves, b.BorrowReserve)
		}
	}
	return ob, nil
}

func decodeMintDecimals(mint solana.PublicKey, data []byte) (uint8, error) {
	var m token.Mint
	if err := bin.NewBinDecoder(data).Decode(&m); err != nil {
		return 0, fmt.Errorf("%w: mint %s: %v", ErrInvalidAccount, mint, err)
	}
	if !m.IsInitialized {
		return 0, fmt.Errorf("%w: mint %s is not initialized", ErrInvalidAccount, mint)
	}
	return m.Decimals, nil
}
