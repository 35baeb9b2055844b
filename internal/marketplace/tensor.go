package marketplace

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/leafsii/blinks-backend/internal/metrics"
	"github.com/leafsii/blinks-backend/internal/onchain"
	"github.com/leafsii/blinks-backend/internal/upstream"
)

const (
	DefaultAPIURL = "https://api.tensor.so/graphql"

	serviceName     = "tensor"
	maxResponseSize = 4 << 20
)

var (
	// ErrNotFound is returned when the marketplace does not know a mint or collection.
	ErrNotFound = errors.New("not found on marketplace")
	// ErrUpstream wraps transport, status and GraphQL failures.
	ErrUpstream = errors.New("marketplace request failed")
)

// Listing is an active sale offer. Price is in lamports as reported.
type Listing struct {
	Seller solana.PublicKey `json:"seller"`
	Price  string           `json:"price"`
	Source string           `json:"source"`
}

type NftInfo struct {
	Mint    solana.PublicKey `json:"mint"`
	Slug    string           `json:"slug"`
	Listing *Listing         `json:"listing,omitempty"`
}

type Collection struct {
	Slug              string `json:"slug"`
	SellRoyaltyFeeBps int64  `json:"sell_royalty_fee_bps"`
}

// BuyRequest describes a purchase of one listed NFT. MaxPrice bounds the
// total the buyer pays, fees and royalty included.
type BuyRequest struct {
	Mint      solana.PublicKey
	Buyer     solana.PublicKey
	Owner     solana.PublicKey
	MaxPrice  uint64
	Blockhash solana.Hash
}

// CollectionCache stores collection metadata between requests.
type CollectionCache interface {
	GetCollection(ctx context.Context, slug string, dest interface{}) error
	SetCollection(ctx context.Context, slug string, value interface{}) error
}

type Options struct {
	APIURL     string
	APIKey     string
	HTTPClient *http.Client
	Cache      CollectionCache
	Logger     *zap.SugaredLogger
	Metrics    *metrics.Metrics
}

// Client is a Tensor GraphQL client limited to what a purchase needs.
type Client struct {
	apiURL  string
	apiKey  string
	client  *http.Client
	cache   CollectionCache
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	health  *upstream.Tracker
}

func NewClient(opts Options) *Client {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Client{
		apiURL:  opts.APIURL,
		apiKey:  opts.APIKey,
		client:  opts.HTTPClient,
		cache:   opts.Cache,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		health:  upstream.NewTracker(serviceName),
	}
}

func (c *Client) Health() *upstream.Tracker {
	return c.health
}

const nftInfoQuery = `query Mints($tokenMints: [String!]!) {
  mints(tokenMints: $tokenMints) {
    slugDisplay
    listing {
      price
      seller
      source
    }
  }
}`

// NftInfo returns the collection slug and active listing of mint, or
// ErrNotFound. A nil Listing means the NFT is not for sale.
func (c *Client) NftInfo(ctx context.Context, mint solana.PublicKey) (*NftInfo, error) {
	data, err := c.query(ctx, nftInfoQuery, map[string]interface{}{
		"tokenMints": []string{mint.String()},
	})
	if err != nil {
		return nil, err
	}

	first := data.Get("mints.0")
	if !first.Exists() || first.Type == gjson.Null {
		return nil, fmt.Errorf("%w: mint %s", ErrNotFound, mint)
	}

	info := &NftInfo{Mint: mint, Slug: first.Get("slugDisplay").String()}
	if listing := first.Get("listing"); listing.Exists() && listing.Type != gjson.Null {
		seller, err := solana.PublicKeyFromBase58(listing.Get("seller").String())
		if err != nil {
			return nil, fmt.Errorf("%w: invalid listing seller: %v", ErrUpstream, err)
		}
		info.Listing = &Listing{
			Seller: seller,
			Price:  listing.Get("price").String(),
			Source: listing.Get("source").String(),
		}
	}
	return info, nil
}

const collectionQuery = `query CollectionStats($slug: String!) {
  instrumentTV2(slug: $slug) {
    slug
    sellRoyaltyFeeBPS
  }
}`

// CollectionBySlug returns collection metadata, served from the cache when one
// is configured.
func (c *Client) CollectionBySlug(ctx context.Context, slug string) (*Collection, error) {
	if c.cache != nil {
		var cached Collection
		if err := c.cache.GetCollection(ctx, slug, &cached); err == nil {
			return &cached, nil
		}
	}

	data, err := c.query(ctx, collectionQuery, map[string]interface{}{"slug": slug})
	if err != nil {
		return nil, err
	}
	inst := data.Get("instrumentTV2")
	if !inst.Exists() || inst.Type == gjson.Null {
		return nil, fmt.Errorf("%w: collection %s", ErrNotFound, slug)
	}

	coll := &Collection{
		Slug:              inst.Get("slug").String(),
		SellRoyaltyFeeBps: inst.Get("sellRoyaltyFeeBPS").Int(),
	}
	if coll.Slug == "" {
		coll.Slug = slug
	}

	if c.cache != nil {
		if err := c.cache.SetCollection(ctx, slug, coll); err != nil {
			c.logger.Warnw("Failed to cache collection", "slug", slug, "error", err)
		}
	}
	return coll, nil
}

const buyQuery = `query TswapBuySingleListingTx($buyer: String!, $maxPrice: Decimal!, $mint: String!, $owner: String!, $blockhash: String) {
  tswapBuySingleListingTx(buyer: $buyer, maxPrice: $maxPrice, mint: $mint, owner: $owner, blockhash: $blockhash) {
    txs {
      tx
      lastValidBlockHeight
    }
  }
}`

// BuyInstructions asks the marketplace for the purchase transaction and
// returns its instructions so they can be composed with the rest of an action.
func (c *Client) BuyInstructions(ctx context.Context, req BuyRequest) ([]solana.Instruction, error) {
	data, err := c.query(ctx, buyQuery, map[string]interface{}{
		"buyer":     req.Buyer.String(),
		"maxPrice":  strconv.FormatUint(req.MaxPrice, 10),
		"mint":      req.Mint.String(),
		"owner":     req.Owner.String(),
		"blockhash": req.Blockhash.String(),
	})
	if err != nil {
		return nil, err
	}

	var out []solana.Instruction
	for _, tx := range data.Get("tswapBuySingleListingTx.txs").Array() {
		raw, err := txBytes(tx.Get("tx"))
		if err != nil {
			return nil, err
		}
		ixs, err := onchain.DecodeInstructions(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		out = append(out, ixs...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no purchase transaction for mint %s", ErrNotFound, req.Mint)
	}
	return out, nil
}

// txBytes accepts the serialized transaction either as a Node Buffer
// ({"type":"Buffer","data":[...]}) or as a base64 string.
func txBytes(v gjson.Result) ([]byte, error) {
	switch {
	case v.Get("data").IsArray():
		items := v.Get("data").Array()
		raw := make([]byte, len(items))
		for i, b := range items {
			n := b.Int()
			if n < 0 || n > 255 {
				return nil, fmt.Errorf("%w: invalid transaction byte", ErrUpstream)
			}
			raw[i] = byte(n)
		}
		return raw, nil
	case v.Type == gjson.String:
		raw, err := base64.StdEncoding.DecodeString(v.String())
		if err != nil {
			return nil, fmt.Errorf("%w: transaction is not base64: %v", ErrUpstream, err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: missing transaction", ErrUpstream)
	}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

// query posts a GraphQL request and returns its "data" object.
func (c *Client) query(ctx context.Context, query string, variables map[string]interface{}) (result gjson.Result, err error) {
	start := time.Now()
	defer func() {
		c.health.Record(err)
		c.metrics.RecordUpstreamCall(ctx, serviceName, err, time.Since(start))
	}()

	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return result, fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return result, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-TENSOR-API-KEY", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return result, fmt.Errorf("%w: failed to read response: %v", ErrUpstream, err)
	}
	if !gjson.ValidBytes(body) {
		return result, fmt.Errorf("%w: response is not JSON", ErrUpstream)
	}

	doc := gjson.ParseBytes(body)
	if errs := doc.Get("errors"); errs.IsArray() && len(errs.Array()) > 0 {
		return result, fmt.Errorf("%w: %s", ErrUpstream, errs.Get("0.message").String())
	}
	return doc.Get("data"), nil
}
