package proof

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/path402/internal/core/domain"
)

const testTxID = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

type signer struct {
	key     *btcec.PrivateKey
	address string
}

func newSigner(t *testing.T) signer {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	addr := base58.CheckEncode(btcutil.Hash160(key.PubKey().SerializeCompressed()), versionMainnet)
	return signer{key: key, address: addr}
}

func (s signer) sign(t *testing.T, message string) string {
	t.Helper()
	sig := ecdsa.SignCompact(s.key, MessageHash(message), true)
	return base64.StdEncoding.EncodeToString(sig)
}

func nullData(t *testing.T, pushes ...[]byte) []byte {
	t.Helper()
	b := txscript.NewScriptBuilder().AddOp(txscript.OP_FALSE).AddOp(txscript.OP_RETURN)
	for _, p := range pushes {
		b.AddData(p)
	}
	script, err := b.Script()
	require.NoError(t, err)
	return script
}

func buildTx(t *testing.T, scripts ...[]byte) []byte {
	t.Helper()
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0}, []byte{txscript.OP_TRUE}, nil))
	for _, s := range scripts {
		tx.AddTxOut(wire.NewTxOut(0, s))
	}
	var buf bytes.Buffer
	require.NoError(t, tx.SerializeNoWitness(&buf))
	return buf.Bytes()
}

func attestation(t *testing.T, domainName, issuer, message, signature string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]string{
		"p":              MarkerPath402,
		"op":             OpDomainVerify,
		"domain":         domainName,
		"issuer_address": issuer,
		"message":        message,
		"signature":      signature,
	})
	require.NoError(t, err)
	return b
}

type fakeLookup struct {
	txs   map[string][]byte
	err   error
	delay time.Duration
	confs int64
}

func (f *fakeLookup) FetchRawTransaction(ctx context.Context, txID string) ([]byte, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	raw, ok := f.txs[txID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return raw, nil
}

func (f *fakeLookup) Confirmations(context.Context, string) (int64, error) {
	return f.confs, nil
}

func TestExtractPayload(t *testing.T) {
	p2pkh := []byte{txscript.OP_DUP, txscript.OP_HASH160}
	e := NewExtractor()

	t.Run("separator layout", func(t *testing.T) {
		raw := buildTx(t, p2pkh, nullData(t, []byte(MarkerPath402), []byte("application/json"), nil, []byte(`{"a":1}`)))
		p, ok := e.ExtractPayload(raw)
		require.True(t, ok)
		assert.Equal(t, MarkerPath402, p.Marker)
		assert.Equal(t, "application/json", p.ContentType)
		assert.Equal(t, `{"a":1}`, string(p.Data))
		assert.Equal(t, 1, p.Output)
	})

	t.Run("content type layout", func(t *testing.T) {
		raw := buildTx(t, nullData(t, []byte(MarkerBitSign), []byte("application/json"), []byte(`{"b":2}`)))
		p, ok := e.ExtractPayload(raw)
		require.True(t, ok)
		assert.Equal(t, `{"b":2}`, string(p.Data))
	})

	t.Run("first valid output wins", func(t *testing.T) {
		raw := buildTx(t,
			nullData(t, []byte("unknown"), nil, []byte("x")),
			nullData(t, []byte(MarkerPath402), nil, []byte("first")),
			nullData(t, []byte(MarkerPath402), nil, []byte("second")),
		)
		p, ok := e.ExtractPayload(raw)
		require.True(t, ok)
		assert.Equal(t, "first", string(p.Data))
		assert.Equal(t, 1, p.Output)
	})

	t.Run("no match", func(t *testing.T) {
		raw := buildTx(t, p2pkh, nullData(t, []byte("other"), nil, []byte("x")))
		_, ok := e.ExtractPayload(raw)
		assert.False(t, ok)
	})

	t.Run("garbage", func(t *testing.T) {
		_, ok := e.ExtractPayload([]byte{0x01, 0x02})
		assert.False(t, ok)
	})
}

func TestVerifyMessageSignature(t *testing.T) {
	s := newSigner(t)
	other := newSigner(t)
	msg := "I own example.com"
	sig := s.sign(t, msg)

	assert.True(t, VerifyMessageSignature(msg, sig, s.address))
	assert.False(t, VerifyMessageSignature(msg+"!", sig, s.address))
	assert.False(t, VerifyMessageSignature(msg, sig, other.address))
	assert.False(t, VerifyMessageSignature(msg, "not-base64", s.address))
	assert.False(t, VerifyMessageSignature(msg, sig, "1invalid"))
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"protocol":"b0ase-bitsign","version":"1","type":"signature","timestamp":1700000000,"doc":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, MarkerBitSign, env.Protocol)
	assert.Equal(t, "signature", env.Type)
	assert.Equal(t, "1700000000", env.Timestamp)
	assert.Equal(t, "x", env.Raw.Get("doc").String())
	assert.False(t, env.IsDomainVerify())

	_, err = DecodeEnvelope([]byte(`{"p":"other"}`))
	assert.ErrorIs(t, err, ErrUnknownProtocol)
	assert.ErrorIs(t, err, domain.ErrInvalidProof)

	_, err = DecodeEnvelope([]byte(`not json`))
	assert.ErrorIs(t, err, domain.ErrInvalidProof)
}

func TestVerifierCheck(t *testing.T) {
	s := newSigner(t)
	other := newSigner(t)
	msg := "path402 domain-verify example.com"
	sig := s.sign(t, msg)

	txWith := func(payload []byte) []byte {
		return buildTx(t, nullData(t, []byte(MarkerPath402), []byte("application/json"), nil, payload))
	}

	tests := []struct {
		name   string
		raw    []byte
		claim  Claim
		reason Reason
	}{
		{
			name:   "valid",
			raw:    txWith(attestation(t, "example.com", s.address, msg, sig)),
			claim:  Claim{Domain: "example.com", IssuerAddress: s.address},
			reason: ReasonOK,
		},
		{
			name:   "domain mismatch",
			raw:    txWith(attestation(t, "evil.com", s.address, msg, sig)),
			claim:  Claim{Domain: "example.com", IssuerAddress: s.address},
			reason: ReasonDomainMismatch,
		},
		{
			name:   "issuer mismatch",
			raw:    txWith(attestation(t, "example.com", s.address, msg, sig)),
			claim:  Claim{Domain: "example.com", IssuerAddress: other.address},
			reason: ReasonIssuerMismatch,
		},
		{
			name:   "signed by another key",
			raw:    txWith(attestation(t, "example.com", s.address, msg, other.sign(t, msg))),
			claim:  Claim{Domain: "example.com", IssuerAddress: s.address},
			reason: ReasonBadSignature,
		},
		{
			name:   "claim signature differs from payload",
			raw:    txWith(attestation(t, "example.com", s.address, msg, sig)),
			claim:  Claim{Domain: "example.com", IssuerAddress: s.address, Signature: s.sign(t, "other")},
			reason: ReasonBadSignature,
		},
		{
			name:   "claim message differs from payload",
			raw:    txWith(attestation(t, "example.com", s.address, msg, "")),
			claim:  Claim{Domain: "example.com", IssuerAddress: s.address, Signature: s.sign(t, "path402 domain-verify unrelated.org"), Message: "path402 domain-verify unrelated.org"},
			reason: ReasonBadSignature,
		},
		{
			name:   "signed message names another domain",
			raw:    txWith(attestation(t, "example.com", s.address, "path402 domain-verify unrelated.org", s.sign(t, "path402 domain-verify unrelated.org"))),
			claim:  Claim{Domain: "example.com", IssuerAddress: s.address},
			reason: ReasonDomainMismatch,
		},
		{
			name:   "claim repeats payload message",
			raw:    txWith(attestation(t, "example.com", s.address, msg, sig)),
			claim:  Claim{Domain: "example.com", IssuerAddress: s.address, Signature: sig, Message: msg},
			reason: ReasonOK,
		},
		{
			name:   "wrong op",
			raw:    txWith([]byte(`{"p":"$402","op":"mint","domain":"example.com"}`)),
			claim:  Claim{Domain: "example.com", IssuerAddress: s.address},
			reason: ReasonWrongProtocol,
		},
		{
			name:   "bad json",
			raw:    txWith([]byte(`{"p":`)),
			claim:  Claim{Domain: "example.com", IssuerAddress: s.address},
			reason: ReasonBadJSON,
		},
		{
			name:   "no payload",
			raw:    buildTx(t, []byte{txscript.OP_TRUE}),
			claim:  Claim{Domain: "example.com", IssuerAddress: s.address},
			reason: ReasonNoPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(&fakeLookup{txs: map[string][]byte{testTxID: tt.raw}}, Config{})
			tt.claim.TxID = testTxID
			o := v.Check(context.Background(), tt.claim)
			assert.Equal(t, tt.reason, o.Reason)
			assert.Equal(t, tt.reason == ReasonOK, o.Valid)
			assert.NoError(t, o.Err)
		})
	}
}

func TestVerifyPaymentOnChain(t *testing.T) {
	s := newSigner(t)
	msg := "I own example.com"
	raw := buildTx(t, nullData(t, []byte(MarkerPath402), nil, attestation(t, "example.com", s.address, msg, s.sign(t, msg))))
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		v := NewVerifier(&fakeLookup{txs: map[string][]byte{testTxID: raw}}, Config{})
		ok, err := v.VerifyPaymentOnChain(ctx, "example.com", s.address, testTxID, "", "")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("not found is false without error", func(t *testing.T) {
		v := NewVerifier(&fakeLookup{}, Config{})
		ok, err := v.VerifyPaymentOnChain(ctx, "example.com", s.address, testTxID, "", "")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("transport failure surfaces", func(t *testing.T) {
		v := NewVerifier(&fakeLookup{err: errors.New("connection refused")}, Config{})
		ok, err := v.VerifyPaymentOnChain(ctx, "example.com", s.address, testTxID, "", "")
		assert.False(t, ok)
		assert.ErrorIs(t, err, domain.ErrTransport)
	})

	t.Run("timeout is transport not not-found", func(t *testing.T) {
		v := NewVerifier(&fakeLookup{delay: time.Second}, Config{FetchTimeout: 10 * time.Millisecond})
		_, err := v.FetchRawTransaction(ctx, testTxID)
		assert.ErrorIs(t, err, domain.ErrTransport)
		assert.NotErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unconfirmed", func(t *testing.T) {
		v := NewVerifier(&fakeLookup{txs: map[string][]byte{testTxID: raw}, confs: 0}, Config{MinConfirmations: 1})
		o := v.Check(ctx, Claim{Domain: "example.com", IssuerAddress: s.address, TxID: testTxID})
		assert.Equal(t, ReasonUnconfirmed, o.Reason)
		assert.True(t, o.Transient())
	})
}
