package listings

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	ErrInvalidSnapshot = errors.New("invalid marketplace snapshot")
)

//go:embed schema.json
var schemaJSON string

var snapshotSchema = jsonschema.MustCompileString("snapshot.schema.json", schemaJSON)

// MarketAction is a marketplace event recorded in the snapshot.
type MarketAction struct {
	UserAddress          string   `json:"user_address"`
	Price                *float64 `json:"price"`
	MarketplaceProgramID string   `json:"marketplace_program_id"`
	Type                 string   `json:"type"`
}

// Entry is one NFT of the snapshot. Name is the domain handle without TLD.
type Entry struct {
	TokenAddress   string        `json:"token_address"`
	ProjectID      string        `json:"project_id"`
	ProjectName    string        `json:"project_name"`
	Name           string        `json:"name"`
	CreatorRoyalty float64       `json:"creator_royalty"`
	FloorPrice     *float64      `json:"floor_price"`
	LowestListing  *MarketAction `json:"lowest_listing_mpa"`
}

// Marketplace programs that appear as marketplace_program_id.
const (
	ProgramTComp       = "TCMPhJdwDryooaGtiocG1u3xcYbRpiJzb283XfCZsDp"
	ProgramTensorSwap  = "TSWAPaqyCSx2KABk68Shruf4rp7CxcNi8hAsbdwmHbN"
	ProgramMagicEdenV2 = "M2mx93ekt1fmXSVkTrUL9xVFHkmME8HTUi5Cyc5aF7K"
)

var programSources = map[string]string{
	ProgramTComp:       "TCOMP",
	ProgramTensorSwap:  "TENSORSWAP",
	ProgramMagicEdenV2: "MAGICEDEN_V2",
}

// Source names the venue of the lowest listing, or "" when unlisted or unknown.
func (e Entry) Source() string {
	if e.LowestListing == nil {
		return ""
	}
	return programSources[e.LowestListing.MarketplaceProgramID]
}

// Mint returns the entry's token address as a public key.
func (e Entry) Mint() (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(e.TokenAddress)
}

// Snapshot mirrors the Hyperspace getMarketPlaceSnapshots response.
type Snapshot struct {
	Data struct {
		GetMarketPlaceSnapshots struct {
			MarketPlaceSnapshots []Entry `json:"market_place_snapshots"`
		} `json:"getMarketPlaceSnapshots"`
	} `json:"data"`
}

// Entries returns the snapshot rows.
func (s *Snapshot) Entries() []Entry {
	return s.Data.GetMarketPlaceSnapshots.MarketPlaceSnapshots
}

// FindByName returns the first entry whose name equals name exactly.
func (s *Snapshot) FindByName(name string) (*Entry, bool) {
	entries := s.Entries()
	for i := range entries {
		if entries[i].Name == name {
			return &entries[i], true
		}
	}
	return nil, false
}

// Parse validates raw against the snapshot schema and decodes it.
func Parse(raw []byte) (*Snapshot, error) {
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if err := snapshotSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return &s, nil
}

// Store reads the snapshot file on every call so edits take effect
// without a restart.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads and validates the snapshot file.
func (s *Store) Load() (*Snapshot, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", s.path, err)
	}
	return Parse(raw)
}

// Lookup finds the snapshot entry for a domain handle.
func (s *Store) Lookup(name string) (*Entry, bool, error) {
	snap, err := s.Load()
	if err != nil {
		return nil, false, err
	}
	entry, ok := snap.FindByName(name)
	return entry, ok, nil
}
