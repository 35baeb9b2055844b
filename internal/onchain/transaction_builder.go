package onchain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrNoInstructions = errors.New("no instructions to assemble")
	ErrNoFeePayer     = errors.New("fee payer is required")
)

// InstructionGroups holds the instructions of one action split by phase.
// Setup establishes preconditions (refreshes, account creation) the primary
// instructions depend on; cleanup depends on the primary having run.
type InstructionGroups struct {
	Setup   []solana.Instruction
	Primary []solana.Instruction
	Cleanup []solana.Instruction
}

// Len returns the total number of instructions across all phases.
func (g InstructionGroups) Len() int {
	return len(g.Setup) + len(g.Primary) + len(g.Cleanup)
}

// Ordered concatenates setup, primary and cleanup in that order.
func (g InstructionGroups) Ordered() []solana.Instruction {
	out := make([]solana.Instruction, 0, g.Len())
	out = append(out, g.Setup...)
	out = append(out, g.Primary...)
	out = append(out, g.Cleanup...)
	return out
}

// Assemble builds a legacy transaction from the groups with feePayer as the
// first signer. Instruction semantics are not checked.
func Assemble(groups InstructionGroups, feePayer solana.PublicKey, blockhash solana.Hash) (*solana.Transaction, error) {
	if feePayer.IsZero() {
		return nil, ErrNoFeePayer
	}
	instructions := groups.Ordered()
	if len(instructions) == 0 {
		return nil, ErrNoInstructions
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, fmt.Errorf("failed to assemble transaction: %w", err)
	}
	return tx, nil
}

// EncodeUnsigned serializes tx in wire format with zeroed signature slots and
// returns it base64 encoded. tx itself is not modified.
func EncodeUnsigned(tx *solana.Transaction) (string, error) {
	if tx == nil {
		return "", errors.New("nil transaction")
	}
	unsigned := *tx
	unsigned.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)

	raw, err := unsigned.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// TransactionBuilderInterface stamps instruction groups into a transaction.
type TransactionBuilderInterface interface {
	BuildTransaction(ctx context.Context, groups InstructionGroups, feePayer solana.PublicKey) (*solana.Transaction, error)
}

type TransactionBuilder struct {
	chain ChainReader
}

func NewTransactionBuilder(chain ChainReader) *TransactionBuilder {
	return &TransactionBuilder{chain: chain}
}

// BuildTransaction fetches a recent blockhash and assembles the groups.
func (tb *TransactionBuilder) BuildTransaction(ctx context.Context, groups InstructionGroups, feePayer solana.PublicKey) (*solana.Transaction, error) {
	if groups.Len() == 0 {
		return nil, ErrNoInstructions
	}
	blockhash, err := tb.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	return Assemble(groups, feePayer, blockhash)
}
