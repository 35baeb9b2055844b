package registrar

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL, TLD: "bonk"})
}

func TestExists(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		want   bool
		errIs  error
	}{
		{name: "registered", body: `{"tld":".bonk","exists":[{"owner":"x","isValid":true}],"domainPrice":null}`, status: 200, want: true},
		{name: "null entry", body: `{"tld":".bonk","exists":[null]}`, status: 200, want: false},
		{name: "empty list", body: `{"tld":".bonk","exists":[]}`, status: 200, want: false},
		{name: "missing exists", body: `{"tld":".bonk"}`, status: 200, errIs: ErrUpstream},
		{name: "server error", body: `oops`, status: 502, errIs: ErrUpstream},
		{name: "not json", body: `<html>`, status: 200, errIs: ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			got, err := c.Exists(context.Background(), "miami")
			assert.Equal(t, "/api/check-domain/miami.bonk", gotPath)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
				assert.False(t, c.Health().Health().Healthy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, c.Health().Health().Healthy)
		})
	}
}

func encodedInstruction(t *testing.T, program, owner solana.PublicKey, data []byte) string {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"keys": []map[string]interface{}{
			{"pubkey": owner.String(), "isSigner": true, "isWritable": true},
			{"pubkey": solana.SystemProgramID.String(), "isSigner": false, "isWritable": false},
		},
		"programId": program.String(),
		"data":      base64.StdEncoding.EncodeToString(data),
	})
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestCreateDomainInstruction(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	program := solana.NewWallet().PublicKey()

	var got createDomainRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/create-domain", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"instructionBase64": encodedInstruction(t, program, owner, []byte{7, 7}),
		})
	})

	ix, err := c.CreateDomainInstruction(context.Background(), "miami", owner)
	require.NoError(t, err)

	assert.Equal(t, createDomainRequest{Domain: "miami", DurationRate: 1, TLD: ".bonk", PublicKey: owner.String()}, got)
	assert.Equal(t, program, ix.ProgramID())
	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 7}, data)

	accounts := ix.Accounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, owner, accounts[0].PublicKey)
	assert.True(t, accounts[0].IsSigner)
	assert.True(t, accounts[0].IsWritable)
	assert.False(t, accounts[1].IsSigner)
	assert.False(t, accounts[1].IsWritable)
}

func TestCreateDomainInstruction_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","error":"DOMAIN_TAKEN","msg":"domain already registered"}`))
	})

	_, err := c.CreateDomainInstruction(context.Background(), "miami", solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "domain already registered")
}

func TestCreateDomainInstruction_Malformed(t *testing.T) {
	tests := map[string]string{
		"no instruction":  `{"status":"ok"}`,
		"not base64":      `{"instructionBase64":"***"}`,
		"not json inside": `{"instructionBase64":"` + base64.StdEncoding.EncodeToString([]byte("nope")) + `"}`,
		"bad program":     `{"instructionBase64":"` + base64.StdEncoding.EncodeToString([]byte(`{"keys":[],"programId":"zz","data":""}`)) + `"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := c.CreateDomainInstruction(context.Background(), "miami", solana.NewWallet().PublicKey())
			assert.ErrorIs(t, err, ErrUpstream)
		})
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Options{})
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, ".bonk", c.TLD())
	assert.Equal(t, "registrar", c.Health().Name())
}
