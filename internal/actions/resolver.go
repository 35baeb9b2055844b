package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/leafsii/blinks-backend/internal/calc"
	"github.com/leafsii/blinks-backend/internal/lending"
	"github.com/leafsii/blinks-backend/internal/listings"
	"github.com/leafsii/blinks-backend/internal/marketplace"
	"github.com/leafsii/blinks-backend/internal/onchain"
)

const lamportDecimals = 9

// Lending builds lending-protocol deposits.
type Lending interface {
	LoadReserve(ctx context.Context) (*lending.Reserve, error)
	DepositGroups(ctx context.Context, owner solana.PublicKey, reserve *lending.Reserve, amount uint64) (onchain.InstructionGroups, error)
}

// Registrar checks and registers domain names.
type Registrar interface {
	TLD() string
	Exists(ctx context.Context, handle string) (bool, error)
	CreateDomainInstruction(ctx context.Context, handle string, owner solana.PublicKey) (solana.Instruction, error)
}

// Marketplace resolves listings and builds purchases.
type Marketplace interface {
	NftInfo(ctx context.Context, mint solana.PublicKey) (*marketplace.NftInfo, error)
	CollectionBySlug(ctx context.Context, slug string) (*marketplace.Collection, error)
	BuyInstructions(ctx context.Context, req marketplace.BuyRequest) ([]solana.Instruction, error)
}

// Listings looks up the marketplace snapshot by domain handle.
type Listings interface {
	Lookup(name string) (*listings.Entry, bool, error)
}

// Result is a built, unsigned transaction plus what to tell the user.
type Result struct {
	Transaction *solana.Transaction
	Message     string
	Next        *ActionGetResponse
	Quote       *calc.PriceQuote
}

// Purchase is a fully resolved NFT purchase. Price is the listing price in
// lamports as a decimal string.
type Purchase struct {
	Mint       solana.PublicKey
	Buyer      solana.PublicKey
	Seller     solana.PublicKey
	RoyaltyBps int64
	Price      string
}

type Resolver struct {
	lending     Lending
	registrar   Registrar
	market      Marketplace
	listings    Listings
	chain       onchain.ChainReader
	builder     onchain.TransactionBuilderInterface
	descriptors *Descriptors
	logger      *zap.SugaredLogger
}

type Dependencies struct {
	Lending     Lending
	Registrar   Registrar
	Marketplace Marketplace
	Listings    Listings
	Chain       onchain.ChainReader
	Builder     onchain.TransactionBuilderInterface
	Descriptors *Descriptors
	Logger      *zap.SugaredLogger
}

func NewResolver(deps Dependencies) *Resolver {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Builder == nil && deps.Chain != nil {
		deps.Builder = onchain.NewTransactionBuilder(deps.Chain)
	}
	return &Resolver{
		lending:     deps.Lending,
		registrar:   deps.Registrar,
		market:      deps.Marketplace,
		listings:    deps.Listings,
		chain:       deps.Chain,
		builder:     deps.Builder,
		descriptors: deps.Descriptors,
		logger:      deps.Logger,
	}
}

// ParseAccount validates the account field of a POST body.
func ParseAccount(raw string) (solana.PublicKey, error) {
	account, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw))
	if err != nil {
		return solana.PublicKey{}, invalidInput("Invalid account provided")
	}
	return account, nil
}

// Deposit lends amount (in whole tokens, e.g. "12.5") of the configured
// reserve's liquidity on behalf of account.
func (r *Resolver) Deposit(ctx context.Context, account solana.PublicKey, rawAmount string) (*Result, error) {
	amount, err := calc.ParseAmount(rawAmount, "deposit")
	if err != nil {
		return nil, invalidInput("%s", err.Error())
	}

	reserve, err := r.lending.LoadReserve(ctx)
	if err != nil {
		return nil, upstreamFailure(err)
	}

	baseUnits, err := calc.ToBaseUnits(amount, reserve.Decimals)
	if err != nil {
		return nil, invalidInput("Invalid deposit amount: %s", err.Error())
	}

	groups, err := r.lending.DepositGroups(ctx, account, reserve, baseUnits)
	if err != nil {
		return nil, upstreamFailure(err)
	}

	tx, err := r.builder.BuildTransaction(ctx, groups, account)
	if err != nil {
		return nil, upstreamFailure(err)
	}

	r.logger.Infow("Built deposit transaction",
		"account", account,
		"reserve", reserve.Address,
		"amount", amount.String(),
		"base_units", baseUnits,
		"instructions", groups.Len(),
	)

	next := r.descriptors.Kamino
	return &Result{
		Transaction: tx,
		Message:     fmt.Sprintf("Deposit %s into the reserve", calc.FormatAmount(amount)),
		Next:        &next,
	}, nil
}

func (r *Resolver) normalizeHandle(raw string) (string, error) {
	handle := strings.TrimSuffix(strings.TrimSpace(raw), r.registrar.TLD())
	if handle == "" {
		return "", invalidInput("No handle provided")
	}
	if strings.ContainsAny(handle, " \t\r\n/?#.") {
		return "", invalidInput("Invalid handle %q", raw)
	}
	return handle, nil
}

// BuyDomain registers handle for account when it is free, or buys it from
// the marketplace when it is taken and listed. The registration check is
// made once; a handle taken or listed after it is not re-validated.
func (r *Resolver) BuyDomain(ctx context.Context, account solana.PublicKey, rawHandle string) (*Result, error) {
	handle, err := r.normalizeHandle(rawHandle)
	if err != nil {
		return nil, err
	}

	exists, err := r.registrar.Exists(ctx, handle)
	if err != nil {
		return nil, upstreamFailure(err)
	}

	if !exists {
		return r.registerDomain(ctx, account, handle)
	}

	entry, listed, err := r.listings.Lookup(handle)
	if err != nil {
		return nil, upstreamFailure(err)
	}
	if !listed {
		return nil, notAvailable("Domain %s is taken but not listed", handle)
	}
	mint, err := entry.Mint()
	if err != nil {
		return nil, upstreamFailure(fmt.Errorf("snapshot entry %s: %w", entry.Name, err))
	}

	return r.buyListed(ctx, account, mint, entry.Name)
}

func (r *Resolver) registerDomain(ctx context.Context, account solana.PublicKey, handle string) (*Result, error) {
	ix, err := r.registrar.CreateDomainInstruction(ctx, handle, account)
	if err != nil {
		return nil, upstreamFailure(err)
	}

	tx, err := r.builder.BuildTransaction(ctx, onchain.InstructionGroups{
		Primary: []solana.Instruction{ix},
	}, account)
	if err != nil {
		return nil, upstreamFailure(err)
	}

	r.logger.Infow("Built domain registration transaction", "account", account, "handle", handle)
	return &Result{
		Transaction: tx,
		Message:     fmt.Sprintf("Register %s%s", handle, r.registrar.TLD()),
	}, nil
}

// BuyNFTByMint buys the NFT at mint at its current listing.
func (r *Resolver) BuyNFTByMint(ctx context.Context, account solana.PublicKey, rawMint string) (*Result, error) {
	mint, err := solana.PublicKeyFromBase58(strings.TrimSpace(rawMint))
	if err != nil {
		return nil, invalidInput("Invalid mint provided")
	}
	return r.buyListed(ctx, account, mint, mint.String())
}

// buyListed resolves seller, price and royalty from the marketplace and
// builds the purchase. label names the NFT in user-facing messages.
func (r *Resolver) buyListed(ctx context.Context, buyer, mint solana.PublicKey, label string) (*Result, error) {
	info, err := r.market.NftInfo(ctx, mint)
	if errors.Is(err, marketplace.ErrNotFound) {
		return nil, notFound(err, "NFT %s not found", label)
	}
	if err != nil {
		return nil, upstreamFailure(err)
	}
	if info.Listing == nil {
		return nil, notAvailable("NFT %s is not listed", label)
	}

	collection, err := r.market.CollectionBySlug(ctx, info.Slug)
	if errors.Is(err, marketplace.ErrNotFound) {
		return nil, notFound(err, "Collection %s not found", info.Slug)
	}
	if err != nil {
		return nil, upstreamFailure(err)
	}

	return r.BuyNFT(ctx, Purchase{
		Mint:       mint,
		Buyer:      buyer,
		Seller:     info.Listing.Seller,
		RoyaltyBps: collection.SellRoyaltyFeeBps,
		Price:      info.Listing.Price,
	}, label)
}

// BuyNFT prices the purchase and asks the marketplace for instructions that
// spend at most the computed total.
func (r *Resolver) BuyNFT(ctx context.Context, p Purchase, label string) (*Result, error) {
	quote, err := calc.ParseTotalPrice(p.Price, p.RoyaltyBps)
	if err != nil {
		// listing data comes from the marketplace, not the caller
		return nil, upstreamFailure(fmt.Errorf("pricing %s: %w", p.Mint, err))
	}

	blockhash, err := r.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, upstreamFailure(err)
	}

	ixs, err := r.market.BuyInstructions(ctx, marketplace.BuyRequest{
		Mint:      p.Mint,
		Buyer:     p.Buyer,
		Owner:     p.Seller,
		MaxPrice:  quote.TotalPrice,
		Blockhash: blockhash,
	})
	if errors.Is(err, marketplace.ErrNotFound) {
		return nil, notAvailable("NFT %s is not listed", label)
	}
	if err != nil {
		return nil, upstreamFailure(err)
	}

	tx, err := onchain.Assemble(onchain.InstructionGroups{Primary: ixs}, p.Buyer, blockhash)
	if err != nil {
		return nil, upstreamFailure(err)
	}

	r.logger.Infow("Built NFT purchase transaction",
		"buyer", p.Buyer,
		"mint", p.Mint,
		"seller", p.Seller,
		"base_price", quote.BasePrice,
		"royalty_bps", quote.RoyaltyBps,
		"total_price", quote.TotalPrice,
	)

	total := calc.FormatAmount(calc.FromBaseUnits(quote.TotalPrice, lamportDecimals))
	return &Result{
		Transaction: tx,
		Message:     fmt.Sprintf("Buy %s for %s SOL", label, total),
		Quote:       &quote,
	}, nil
}
