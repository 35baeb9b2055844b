package onchain

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHash(seed string) solana.Hash {
	return solana.Hash(sha256.Sum256([]byte(seed)))
}

func tagged(program solana.PublicKey, payer solana.PublicKey, tag string) solana.Instruction {
	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
	}, []byte(tag))
}

func decode(t *testing.T, encoded string) *solana.Transaction {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)
	return tx
}

func dataOf(tx *solana.Transaction) []string {
	out := make([]string, 0, len(tx.Message.Instructions))
	for _, ci := range tx.Message.Instructions {
		out = append(out, string(ci.Data))
	}
	return out
}

func TestAssemble_PreservesPhaseOrder(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	program := solana.NewWallet().PublicKey()

	groups := InstructionGroups{
		Setup:   []solana.Instruction{tagged(program, payer, "refresh-reserve"), tagged(program, payer, "refresh-obligation")},
		Primary: []solana.Instruction{tagged(program, payer, "deposit")},
		Cleanup: []solana.Instruction{tagged(program, payer, "refresh-farm")},
	}

	tx, err := Assemble(groups, payer, testHash("blockhash"))
	require.NoError(t, err)

	assert.Equal(t, payer, tx.Message.AccountKeys[0], "fee payer must be the first account")
	assert.Equal(t, testHash("blockhash"), tx.Message.RecentBlockhash)
	assert.Equal(t, []string{"refresh-reserve", "refresh-obligation", "deposit", "refresh-farm"}, dataOf(tx))
}

func TestAssemble_Errors(t *testing.T) {
	payer := solana.NewWallet().PublicKey()

	_, err := Assemble(InstructionGroups{}, payer, testHash("x"))
	assert.ErrorIs(t, err, ErrNoInstructions)

	groups := InstructionGroups{Primary: []solana.Instruction{tagged(solana.SystemProgramID, payer, "a")}}
	_, err = Assemble(groups, solana.PublicKey{}, testHash("x"))
	assert.ErrorIs(t, err, ErrNoFeePayer)
}

func TestEncodeUnsigned_RoundTrip(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	program := solana.NewWallet().PublicKey()

	tx, err := Assemble(InstructionGroups{
		Primary: []solana.Instruction{tagged(program, payer, "only")},
	}, payer, testHash("rt"))
	require.NoError(t, err)
	require.Empty(t, tx.Signatures)

	encoded, err := EncodeUnsigned(tx)
	require.NoError(t, err)
	assert.Empty(t, tx.Signatures, "encoding must not mutate the transaction")

	decoded := decode(t, encoded)
	require.Len(t, decoded.Signatures, 1)
	assert.True(t, decoded.Signatures[0].IsZero())
	assert.Equal(t, tx.Message.RecentBlockhash, decoded.Message.RecentBlockhash)
	assert.Equal(t, []string{"only"}, dataOf(decoded))

	again, err := EncodeUnsigned(tx)
	require.NoError(t, err)
	assert.Equal(t, encoded, again)
}

func TestDecodeInstructions(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	seller := solana.NewWallet().PublicKey()
	program := solana.NewWallet().PublicKey()

	original := solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(seller).WRITE(),
		solana.Meta(solana.SystemProgramID),
	}, []byte{1, 2, 3})

	tx, err := Assemble(InstructionGroups{Primary: []solana.Instruction{original}}, payer, testHash("d"))
	require.NoError(t, err)
	encoded, err := EncodeUnsigned(tx)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	ixs, err := DecodeInstructions(raw)
	require.NoError(t, err)
	require.Len(t, ixs, 1)

	assert.Equal(t, program, ixs[0].ProgramID())
	data, err := ixs[0].Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	accounts := ixs[0].Accounts()
	require.Len(t, accounts, 3)
	assert.Equal(t, payer, accounts[0].PublicKey)
	assert.True(t, accounts[0].IsSigner)
	assert.True(t, accounts[0].IsWritable)
	assert.Equal(t, seller, accounts[1].PublicKey)
	assert.False(t, accounts[1].IsSigner)
	assert.True(t, accounts[1].IsWritable)
	assert.False(t, accounts[2].IsWritable)

	t.Run("address lookup tables", func(t *testing.T) {
		table := solana.NewWallet().PublicKey()
		v0, err := solana.NewTransaction([]solana.Instruction{original}, testHash("lut"),
			solana.TransactionPayer(payer),
			solana.TransactionAddressTables(map[solana.PublicKey]solana.PublicKeySlice{
				table: {seller},
			}),
		)
		require.NoError(t, err)
		require.True(t, v0.Message.IsVersioned())
		require.NotEmpty(t, v0.Message.AddressTableLookups)

		raw, err := v0.MarshalBinary()
		require.NoError(t, err)
		_, err = DecodeInstructions(raw)
		assert.ErrorIs(t, err, ErrLookupTablesUnsupported)
	})
}

func TestDecodeInstructions_Garbage(t *testing.T) {
	_, err := DecodeInstructions([]byte{0xff, 0x01})
	assert.Error(t, err)
}

type stubChain struct {
	hash solana.Hash
	err  error
}

func (s *stubChain) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return s.hash, s.err
}

func (s *stubChain) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	return nil, ErrAccountNotFound
}

func TestTransactionBuilder_BuildTransaction(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	groups := InstructionGroups{Primary: []solana.Instruction{tagged(solana.SystemProgramID, payer, "x")}}

	tb := NewTransactionBuilder(&stubChain{hash: testHash("recent")})
	tx, err := tb.BuildTransaction(context.Background(), groups, payer)
	require.NoError(t, err)
	assert.Equal(t, testHash("recent"), tx.Message.RecentBlockhash)

	failing := NewTransactionBuilder(&stubChain{err: errors.New("rpc down")})
	_, err = failing.BuildTransaction(context.Background(), groups, payer)
	assert.EqualError(t, err, "rpc down")

	_, err = tb.BuildTransaction(context.Background(), InstructionGroups{}, payer)
	assert.ErrorIs(t, err, ErrNoInstructions)
}
