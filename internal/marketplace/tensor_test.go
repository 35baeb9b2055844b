package marketplace

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/blinks-backend/internal/onchain"
	"github.com/leafsii/blinks-backend/internal/store"
)

type graphQLServer struct {
	t        *testing.T
	requests atomic.Int32
	respond  func(req graphQLRequest) string
}

func (s *graphQLServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	assert.Equal(s.t, "test-key", r.Header.Get("X-TENSOR-API-KEY"))
	var req graphQLRequest
	require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(s.respond(req)))
}

func newTestClient(t *testing.T, respond func(req graphQLRequest) string, cache CollectionCache) (*Client, *graphQLServer) {
	t.Helper()
	gs := &graphQLServer{t: t, respond: respond}
	srv := httptest.NewServer(gs)
	t.Cleanup(srv.Close)
	return NewClient(Options{APIURL: srv.URL, APIKey: "test-key", Cache: cache}), gs
}

func TestNftInfo(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	seller := solana.NewWallet().PublicKey()

	tests := []struct {
		name      string
		body      string
		errIs     error
		listed    bool
		wantPrice string
	}{
		{
			name:      "listed",
			body:      `{"data":{"mints":[{"slugDisplay":"bonk-domains","listing":{"price":"1000000","seller":"` + seller.String() + `","source":"TENSORSWAP"}}]}}`,
			listed:    true,
			wantPrice: "1000000",
		},
		{
			name: "not listed",
			body: `{"data":{"mints":[{"slugDisplay":"bonk-domains","listing":null}]}}`,
		},
		{
			name:  "unknown mint",
			body:  `{"data":{"mints":[]}}`,
			errIs: ErrNotFound,
		},
		{
			name:  "graphql error",
			body:  `{"errors":[{"message":"rate limited"}]}`,
			errIs: ErrUpstream,
		},
		{
			name:  "bad seller",
			body:  `{"data":{"mints":[{"slugDisplay":"x","listing":{"price":"1","seller":"nope","source":"TCOMP"}}]}}`,
			errIs: ErrUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(req graphQLRequest) string {
				assert.Contains(t, req.Query, "mints(tokenMints")
				assert.Equal(t, []interface{}{mint.String()}, req.Variables["tokenMints"])
				return tt.body
			}, nil)

			info, err := c.NftInfo(context.Background(), mint)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "bonk-domains", info.Slug)
			if !tt.listed {
				assert.Nil(t, info.Listing)
				return
			}
			require.NotNil(t, info.Listing)
			assert.Equal(t, seller, info.Listing.Seller)
			assert.Equal(t, tt.wantPrice, info.Listing.Price)
			assert.Equal(t, "TENSORSWAP", info.Listing.Source)
		})
	}
}

func TestNftInfo_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Options{APIURL: srv.URL})
	_, err := c.NftInfo(context.Background(), solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, ErrUpstream)
	assert.False(t, c.Health().Health().Healthy)
}

func TestCollectionBySlug_Cached(t *testing.T) {
	cache := store.NewCache("", time.Minute, nil, nil)
	c, gs := newTestClient(t, func(req graphQLRequest) string {
		assert.Equal(t, "bonk-domains", req.Variables["slug"])
		return `{"data":{"instrumentTV2":{"slug":"bonk-domains","sellRoyaltyFeeBPS":500}}}`
	}, cache)

	for i := 0; i < 3; i++ {
		coll, err := c.CollectionBySlug(context.Background(), "bonk-domains")
		require.NoError(t, err)
		assert.Equal(t, &Collection{Slug: "bonk-domains", SellRoyaltyFeeBps: 500}, coll)
	}
	assert.Equal(t, int32(1), gs.requests.Load())
}

func TestCollectionBySlug_NotFound(t *testing.T) {
	c, gs := newTestClient(t, func(req graphQLRequest) string {
		return `{"data":{"instrumentTV2":null}}`
	}, nil)

	_, err := c.CollectionBySlug(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.CollectionBySlug(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(2), gs.requests.Load())
}

func purchaseTx(t *testing.T, buyer solana.PublicKey) (*solana.Transaction, []byte) {
	t.Helper()
	program := solana.NewWallet().PublicKey()
	seller := solana.NewWallet().PublicKey()
	ix := solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(buyer).WRITE().SIGNER(),
		solana.Meta(seller).WRITE(),
	}, []byte{42})

	tx, err := onchain.Assemble(onchain.InstructionGroups{Primary: []solana.Instruction{ix}}, buyer, solana.Hash{1})
	require.NoError(t, err)
	encoded, err := onchain.EncodeUnsigned(tx)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	return tx, raw
}

func TestBuyInstructions(t *testing.T) {
	buyer := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	_, raw := purchaseTx(t, buyer)

	ints := make([]int, len(raw))
	for i, b := range raw {
		ints[i] = int(b)
	}
	bufferJSON, err := json.Marshal(map[string]interface{}{"type": "Buffer", "data": ints})
	require.NoError(t, err)

	forms := map[string]string{
		"node buffer": string(bufferJSON),
		"base64":      `"` + base64.StdEncoding.EncodeToString(raw) + `"`,
	}

	for name, txJSON := range forms {
		t.Run(name, func(t *testing.T) {
			c, _ := newTestClient(t, func(req graphQLRequest) string {
				assert.True(t, strings.Contains(req.Query, "tswapBuySingleListingTx"))
				assert.Equal(t, "1065000", req.Variables["maxPrice"])
				assert.Equal(t, buyer.String(), req.Variables["buyer"])
				assert.Equal(t, owner.String(), req.Variables["owner"])
				assert.Equal(t, mint.String(), req.Variables["mint"])
				return `{"data":{"tswapBuySingleListingTx":{"txs":[{"tx":` + txJSON + `,"lastValidBlockHeight":1}]}}}`
			}, nil)

			ixs, err := c.BuyInstructions(context.Background(), BuyRequest{
				Mint: mint, Buyer: buyer, Owner: owner, MaxPrice: 1_065_000,
			})
			require.NoError(t, err)
			require.Len(t, ixs, 1)
			data, err := ixs[0].Data()
			require.NoError(t, err)
			assert.Equal(t, []byte{42}, data)
		})
	}
}

func TestBuyInstructions_Empty(t *testing.T) {
	c, _ := newTestClient(t, func(req graphQLRequest) string {
		return `{"data":{"tswapBuySingleListingTx":{"txs":[]}}}`
	}, nil)

	_, err := c.BuyInstructions(context.Background(), BuyRequest{MaxPrice: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}
