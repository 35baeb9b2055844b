package actions

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/blinks-backend/internal/onchain"
)

func TestFormat(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	tx, err := onchain.Assemble(onchain.InstructionGroups{
		Primary: []solana.Instruction{signerIx(payer, "x")},
	}, payer, solana.Hash{1})
	require.NoError(t, err)

	hub := NewDescriptors("", "", ".bonk").Kamino
	resp, err := Format(tx, "Deposit 1 into the reserve", &hub)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(resp.Transaction)
	require.NoError(t, err)
	decoded, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)
	assert.Equal(t, payer, decoded.Message.AccountKeys[0])
	require.Len(t, decoded.Signatures, 1)
	assert.True(t, decoded.Signatures[0].IsZero(), "transaction must be unsigned")

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &generic))
	next := generic["links"].(map[string]interface{})["next"].(map[string]interface{})
	assert.Equal(t, "inline", next["type"])
	assert.Equal(t, "Kamino SuperBlink", next["action"].(map[string]interface{})["title"])
}

func TestFormat_NoNext(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	tx, err := onchain.Assemble(onchain.InstructionGroups{
		Primary: []solana.Instruction{signerIx(payer, "x")},
	}, payer, solana.Hash{1})
	require.NoError(t, err)

	res := &Result{Transaction: tx, Message: "Register miami.bonk"}
	resp, err := res.Response()
	require.NoError(t, err)
	assert.Nil(t, resp.Links)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "links")
}

func TestFormat_NilTransaction(t *testing.T) {
	_, err := Format(nil, "x", nil)
	assert.Error(t, err)
}

func TestDescriptorsAreStable(t *testing.T) {
	a, err := json.Marshal(NewDescriptors("", "", ".bonk"))
	require.NoError(t, err)
	b, err := json.Marshal(NewDescriptors("", "", ".bonk"))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	d := NewDescriptors("", "https://example.com/icon.png", ".bonk")
	assert.Equal(t, "https://example.com/icon.png", d.Deposit.Icon)
	assert.Equal(t, "/api/deposit?amount={amount}", d.Deposit.Links.Actions[0].Href)
	assert.Equal(t, "/api/domain?handle={handle}", d.Domain.Links.Actions[0].Href)
	assert.Equal(t, "/api/nft?mint={mint}", d.NFT.Links.Actions[0].Href)
}

func TestDescriptors_KaminoHubLinksDeposit(t *testing.T) {
	d := NewDescriptors("", "", ".bonk")
	require.Len(t, d.Kamino.Links.Actions, 1)
	link := d.Kamino.Links.Actions[0]
	assert.Equal(t, d.Deposit.Links.Actions[0], link)
	assert.Equal(t, PathDeposit+"?amount={amount}", link.Href)
	require.Len(t, link.Parameters, 1)
	assert.Equal(t, "amount", link.Parameters[0].Name)
	assert.True(t, link.Parameters[0].Required)
}

func TestDescriptors_PublicOrigin(t *testing.T) {
	d := NewDescriptors("https://blinks.example.com/", "", ".bonk")
	assert.Equal(t, "https://blinks.example.com/api/deposit?amount={amount}", d.Deposit.Links.Actions[0].Href)
	assert.Equal(t, "https://blinks.example.com/api/domain?handle={handle}", d.Domain.Links.Actions[0].Href)
	assert.Equal(t, "https://blinks.example.com/api/nft?mint={mint}", d.NFT.Links.Actions[0].Href)
	assert.Equal(t, "https://blinks.example.com/api/deposit?amount={amount}", d.Kamino.Links.Actions[0].Href)
}

func TestManifest(t *testing.T) {
	m := Manifest()
	paths := map[string]string{}
	for _, r := range m.Rules {
		paths[r.PathPattern] = r.APIPath
	}
	assert.Equal(t, map[string]string{
		"/deposit": PathDeposit,
		"/domain":  PathDomain,
		"/nft":     PathNFT,
		"/kamino":  PathKamino,
	}, paths)
}
