package onchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/leafsii/blinks-backend/internal/metrics"
	"github.com/leafsii/blinks-backend/internal/upstream"
)

const serviceName = "solana_rpc"

// ErrAccountNotFound is returned when an account does not exist on chain.
var ErrAccountNotFound = errors.New("account not found")

// ChainReader is the read-only view of the chain the action builders need.
type ChainReader interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
}

// rpcAPI is the subset of *rpc.Client used here.
type rpcAPI interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
}

type Client struct {
	rpc        rpcAPI
	commitment rpc.CommitmentType
	logger     *zap.SugaredLogger
	metrics    *metrics.Metrics
	health     *upstream.Tracker

	blockhashes singleflight.Group
}

type ClientOptions struct {
	Commitment rpc.CommitmentType
	Logger     *zap.SugaredLogger
	Metrics    *metrics.Metrics
}

func NewClient(rpcURL string, opts ClientOptions) *Client {
	return NewClientWithRPC(rpc.New(rpcURL), opts)
}

// NewClientWithRPC creates a Client around an existing RPC implementation.
func NewClientWithRPC(api rpcAPI, opts ClientOptions) *Client {
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentFinalized
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Client{
		rpc:        api,
		commitment: opts.Commitment,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		health:     upstream.NewTracker(serviceName),
	}
}

// Health returns the RPC endpoint's health tracker.
func (c *Client) Health() *upstream.Tracker {
	return c.health
}

func (c *Client) record(ctx context.Context, err error, start time.Time) {
	c.health.Record(err)
	c.metrics.RecordUpstreamCall(ctx, serviceName, err, time.Since(start))
}

// LatestBlockhash returns the most recent blockhash. Concurrent callers share one
// in-flight RPC call; a caller whose context ends stops waiting without
// cancelling the call for the others.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	ch := c.blockhashes.DoChan(string(c.commitment), func() (interface{}, error) {
		callCtx := context.WithoutCancel(ctx)
		start := time.Now()
		out, err := c.rpc.GetLatestBlockhash(callCtx, c.commitment)
		c.record(callCtx, err, start)
		if err != nil {
			return nil, err
		}
		if out == nil || out.Value == nil {
			return nil, fmt.Errorf("empty getLatestBlockhash response")
		}
		return out.Value.Blockhash, nil
	})

	select {
	case <-ctx.Done():
		return solana.Hash{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.logger.Errorw("getLatestBlockhash failed", "error", res.Err, "commitment", c.commitment)
			return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", res.Err)
		}
		return res.Val.(solana.Hash), nil
	}
}

// AccountData returns the raw data of an account, or ErrAccountNotFound.
func (c *Client) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	start := time.Now()
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		// a missing account is an answer, not an outage
		c.record(ctx, nil, start)
	} else {
		c.record(ctx, err, start)
	}
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, account)
		}
		return nil, fmt.Errorf("failed to get account %s: %w", account, err)
	}
	if out == nil || out.Value == nil || out.Value.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, account)
	}
	return out.Value.Data.GetBinary(), nil
}
