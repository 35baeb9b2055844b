package calc

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidInput is returned for negative or non-numeric pricing inputs.
var ErrInvalidInput = errors.New("invalid input")

const (
	// BpsDenominator is the number of basis points in 100%.
	BpsDenominator = 10_000

	// MarketplaceFeeBps is the taker fee applied to every purchase (1.5%).
	MarketplaceFeeBps = 150
)

// Listing sources as reported by the marketplace API.
const (
	SourceTensorSwap  = "TENSORSWAP"
	SourceTComp       = "TCOMP"
	SourceMagicEdenV2 = "MAGICEDEN_V2"
)

var sourceFeeBps = map[string]int64{
	SourceTensorSwap:  150,
	SourceTComp:       150,
	SourceMagicEdenV2: 250,
}

// FeeBpsForSource returns the marketplace fee charged by the venue a listing lives on.
// Unknown sources fall back to MarketplaceFeeBps.
func FeeBpsForSource(source string) int64 {
	if bps, ok := sourceFeeBps[strings.ToUpper(source)]; ok {
		return bps
	}
	return MarketplaceFeeBps
}

// PriceQuote breaks a purchase total into its parts. All amounts are lamports.
type PriceQuote struct {
	BasePrice         uint64 `json:"basePrice"`
	RoyaltyBps        int64  `json:"royaltyBps"`
	MarketplaceFeeBps int64  `json:"marketplaceFeeBps"`
	Royalty           uint64 `json:"royalty"`
	MarketplaceFee    uint64 `json:"marketplaceFee"`
	TotalPrice        uint64 `json:"totalPrice"`
}

// TotalPrice computes base + floor(base*royaltyBps/10000) + floor(base*150/10000).
func TotalPrice(basePrice, royaltyBps int64) (PriceQuote, error) {
	return totalPriceWithFee(basePrice, royaltyBps, MarketplaceFeeBps)
}

// ParseTotalPrice is TotalPrice for a base price given as a decimal integer string,
// which is how listing prices come back from the marketplace.
func ParseTotalPrice(basePrice string, royaltyBps int64) (PriceQuote, error) {
	base, ok := new(big.Int).SetString(strings.TrimSpace(basePrice), 10)
	if !ok {
		return PriceQuote{}, fmt.Errorf("%w: price %q is not an integer", ErrInvalidInput, basePrice)
	}
	if !base.IsInt64() {
		return PriceQuote{}, fmt.Errorf("%w: price %q out of range", ErrInvalidInput, basePrice)
	}
	return TotalPrice(base.Int64(), royaltyBps)
}

func totalPriceWithFee(basePrice, royaltyBps, feeBps int64) (PriceQuote, error) {
	if basePrice < 0 {
		return PriceQuote{}, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if royaltyBps < 0 {
		return PriceQuote{}, fmt.Errorf("%w: royalty bps must not be negative", ErrInvalidInput)
	}
	if feeBps < 0 {
		return PriceQuote{}, fmt.Errorf("%w: fee bps must not be negative", ErrInvalidInput)
	}

	base := big.NewInt(basePrice)
	royalty := bpsOf(base, royaltyBps)
	fee := bpsOf(base, feeBps)

	total := new(big.Int).Add(base, royalty)
	total.Add(total, fee)
	if !total.IsUint64() {
		return PriceQuote{}, fmt.Errorf("%w: total price overflows", ErrInvalidInput)
	}

	return PriceQuote{
		BasePrice:         uint64(basePrice),
		RoyaltyBps:        royaltyBps,
		MarketplaceFeeBps: feeBps,
		Royalty:           royalty.Uint64(),
		MarketplaceFee:    fee.Uint64(),
		TotalPrice:        total.Uint64(),
	}, nil
}

// bpsOf returns floor(amount*bps/10000). amount and bps are non-negative.
func bpsOf(amount *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(bps))
	return out.Quo(out, big.NewInt(BpsDenominator))
}
