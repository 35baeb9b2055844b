package onchain

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var ErrLookupTablesUnsupported = errors.New("transactions using address lookup tables are not supported")

// DecodeInstructions parses a serialized transaction produced elsewhere and
// returns its instructions with fully resolved account metas, so they can be
// re-assembled under our own fee payer and blockhash.
func DecodeInstructions(raw []byte) ([]solana.Instruction, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if len(tx.Message.AddressTableLookups) > 0 {
		return nil, ErrLookupTablesUnsupported
	}

	out := make([]solana.Instruction, 0, len(tx.Message.Instructions))
	for i := range tx.Message.Instructions {
		ci := tx.Message.Instructions[i]
		programID, err := tx.Message.ResolveProgramIDIndex(ci.ProgramIDIndex)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		accounts, err := ci.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		out = append(out, solana.NewInstruction(programID, accounts, []byte(ci.Data)))
	}
	return out, nil
}
