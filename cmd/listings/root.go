package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/leafsii/blinks-backend/internal/calc"
	"github.com/leafsii/blinks-backend/internal/listings"
)

const lamportDecimals = 9

// newRootCmd builds the operator CLI for the marketplace snapshot the
// domain action falls back to.
func newRootCmd(out io.Writer) *cobra.Command {
	v := viper.New()
	v.SetDefault("BLK_LISTINGS_PATH", filepath.Join("data", "bonk_domains.json"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "listings",
		Short:         "Inspect the domain marketplace snapshot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("path", "", "snapshot file (defaults to $BLK_LISTINGS_PATH)")
	_ = v.BindPFlag("BLK_LISTINGS_PATH", root.PersistentFlags().Lookup("path"))

	store := func() *listings.Store {
		return listings.NewStore(v.GetString("BLK_LISTINGS_PATH"))
	}

	root.AddCommand(
		newValidateCmd(out, store),
		newLookupCmd(out, store),
	)
	return root
}

func newValidateCmd(out io.Writer, store func() *listings.Store) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the snapshot against its schema and report its entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := store()
			snap, err := s.Load()
			if err != nil {
				return err
			}

			listed := 0
			for _, e := range snap.Entries() {
				if _, err := e.Mint(); err != nil {
					return fmt.Errorf("entry %q: invalid token address: %w", e.Name, err)
				}
				if e.LowestListing != nil {
					listed++
				}
			}
			fmt.Fprintf(out, "%s: %d entries, %d listed\n", s.Path(), len(snap.Entries()), listed)
			return nil
		},
	}
}

// lookupOutput is what `lookup` prints.
type lookupOutput struct {
	Name     string           `json:"name"`
	Mint     string           `json:"mint"`
	Listed   bool             `json:"listed"`
	Seller   string           `json:"seller,omitempty"`
	Source   string           `json:"source,omitempty"`
	PriceSOL string           `json:"priceSol,omitempty"`
	Quote    *calc.PriceQuote `json:"quote,omitempty"`
	VenueBps int64            `json:"venueFeeBps,omitempty"`
}

func newLookupCmd(out io.Writer, store func() *listings.Store) *cobra.Command {
	var quote bool

	cmd := &cobra.Command{
		Use:   "lookup <handle>",
		Short: "Show the snapshot entry for a domain handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, ok, err := store().Lookup(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s is not in the snapshot", args[0])
			}

			res := lookupOutput{
				Name:   entry.Name,
				Mint:   entry.TokenAddress,
				Listed: entry.LowestListing != nil,
			}
			if l := entry.LowestListing; l != nil {
				res.Seller = l.UserAddress
				res.Source = entry.Source()
				if l.Price != nil {
					price := decimal.NewFromFloat(*l.Price)
					res.PriceSOL = price.String()
					if quote {
						q, err := quoteListing(price, entry.CreatorRoyalty)
						if err != nil {
							return err
						}
						res.Quote = &q
						res.VenueBps = calc.FeeBpsForSource(res.Source)
					}
				}
			}

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().BoolVar(&quote, "quote", false, "include the buyer's total for the listed price")
	return cmd
}

// quoteListing prices a snapshot listing. Snapshot prices are in SOL and
// royalties in percent.
func quoteListing(priceSOL decimal.Decimal, royaltyPct float64) (calc.PriceQuote, error) {
	lamports, err := calc.ToBaseUnits(priceSOL, lamportDecimals)
	if err != nil {
		return calc.PriceQuote{}, err
	}
	royaltyBps := decimal.NewFromFloat(royaltyPct).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return calc.TotalPrice(int64(lamports), royaltyBps)
}
