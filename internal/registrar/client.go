package registrar

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/leafsii/blinks-backend/internal/metrics"
	"github.com/leafsii/blinks-backend/internal/upstream"
)

const (
	DefaultBaseURL = "https://alldomains.id"
	DefaultTLD     = ".bonk"

	serviceName     = "registrar"
	maxResponseSize = 1 << 20
)

var (
	// ErrUpstream wraps transport, status and decoding failures.
	ErrUpstream = errors.New("registrar request failed")
	// ErrRejected is returned when the registrar refuses to build a registration.
	ErrRejected = errors.New("registrar rejected the registration")
)

type Options struct {
	BaseURL    string
	TLD        string
	HTTPClient *http.Client
	Logger     *zap.SugaredLogger
	Metrics    *metrics.Metrics
}

// Client talks to the AllDomains HTTP API.
type Client struct {
	baseURL string
	tld     string
	client  *http.Client
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	health  *upstream.Tracker
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.TLD == "" {
		opts.TLD = DefaultTLD
	}
	if !strings.HasPrefix(opts.TLD, ".") {
		opts.TLD = "." + opts.TLD
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		tld:     opts.TLD,
		client:  opts.HTTPClient,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		health:  upstream.NewTracker(serviceName),
	}
}

// Health exposes the client's upstream tracker.
func (c *Client) Health() *upstream.Tracker {
	return c.health
}

// TLD returns the top level domain handles are registered under.
func (c *Client) TLD() string {
	return c.tld
}

// Exists reports whether handle is already registered under the client's TLD.
func (c *Client) Exists(ctx context.Context, handle string) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/check-domain/%s", c.baseURL, url.PathEscape(handle+c.tld))

	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	exists := gjson.GetBytes(body, "exists")
	if !exists.IsArray() {
		return false, fmt.Errorf("%w: check-domain response has no exists list", ErrUpstream)
	}
	entries := exists.Array()
	return len(entries) > 0 && entries[0].Type != gjson.Null, nil
}

type createDomainRequest struct {
	Domain       string `json:"domain"`
	DurationRate int    `json:"durationRate"`
	TLD          string `json:"tld"`
	PublicKey    string `json:"publicKey"`
}

// CreateDomainInstruction asks the registrar for the instruction registering
// handle to owner for one year.
func (c *Client) CreateDomainInstruction(ctx context.Context, handle string, owner solana.PublicKey) (solana.Instruction, error) {
	payload, err := json.Marshal(createDomainRequest{
		Domain:       handle,
		DurationRate: 1,
		TLD:          c.tld,
		PublicKey:    owner.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode create-domain request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/create-domain", payload)
	if err != nil {
		return nil, err
	}

	if gjson.GetBytes(body, "status").String() == "error" {
		c.logger.Warnw("Registrar rejected create-domain",
			"handle", handle,
			"error", gjson.GetBytes(body, "error").String(),
			"msg", gjson.GetBytes(body, "msg").String(),
		)
		return nil, fmt.Errorf("%w: %s", ErrRejected, gjson.GetBytes(body, "msg").String())
	}

	encoded := gjson.GetBytes(body, "instructionBase64")
	if !encoded.Exists() {
		return nil, fmt.Errorf("%w: create-domain response has no instruction", ErrUpstream)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded.String())
	if err != nil {
		return nil, fmt.Errorf("%w: instruction is not base64: %v", ErrUpstream, err)
	}
	return decodeInstruction(raw)
}

// decodeInstruction parses the registrar's JSON instruction encoding:
// {keys:[{pubkey,isSigner,isWritable}], programId, data(base64)}.
func decodeInstruction(raw []byte) (solana.Instruction, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: instruction is not valid JSON", ErrUpstream)
	}
	doc := gjson.ParseBytes(raw)

	programID, err := solana.PublicKeyFromBase58(doc.Get("programId").String())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid programId: %v", ErrUpstream, err)
	}
	data, err := base64.StdEncoding.DecodeString(doc.Get("data").String())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid instruction data: %v", ErrUpstream, err)
	}

	var (
		accounts solana.AccountMetaSlice
		keyErr   error
	)
	doc.Get("keys").ForEach(func(_, key gjson.Result) bool {
		pk, err := solana.PublicKeyFromBase58(key.Get("pubkey").String())
		if err != nil {
			keyErr = fmt.Errorf("%w: invalid account key: %v", ErrUpstream, err)
			return false
		}
		accounts = append(accounts, solana.NewAccountMeta(pk, key.Get("isWritable").Bool(), key.Get("isSigner").Bool()))
		return true
	})
	if keyErr != nil {
		return nil, keyErr
	}

	return solana.NewInstruction(programID, accounts, data), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) (body []byte, err error) {
	start := time.Now()
	defer func() {
		c.health.Record(err)
		c.metrics.RecordUpstreamCall(ctx, serviceName, err, time.Since(start))
	}()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrUpstream, err)
	}
	// the registrar reports rejections as JSON with a non-2xx status
	if resp.StatusCode >= 500 || (resp.StatusCode >= 300 && !gjson.ValidBytes(body)) {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: response is not JSON", ErrUpstream)
	}
	return body, nil
}
