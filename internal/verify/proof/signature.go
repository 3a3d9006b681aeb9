package proof

import (
	"bytes"
	"encoding/base64"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const messageMagic = "Bitcoin Signed Message:\n"

// P2PKH version bytes accepted for signer addresses.
const (
	versionMainnet = 0x00
	versionTestnet = 0x6f
)

// MessageHash is the double-SHA256 digest signed by Bitcoin message signing.
func MessageHash(message string) []byte {
	var buf bytes.Buffer
	_ = wire.WriteVarString(&buf, 0, messageMagic)
	_ = wire.WriteVarString(&buf, 0, message)
	return chainhash.DoubleHashB(buf.Bytes())
}

// VerifyMessageSignature checks a base64 compact signature over message
// against the public key hash in a P2PKH address. It performs no I/O.
func VerifyMessageSignature(message, signature, address string) bool {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) != 65 {
		return false
	}

	pub, compressed, err := ecdsa.RecoverCompact(sig, MessageHash(message))
	if err != nil {
		return false
	}

	var serialized []byte
	if compressed {
		serialized = pub.SerializeCompressed()
	} else {
		serialized = pub.SerializeUncompressed()
	}

	hash, version, err := base58.CheckDecode(address)
	if err != nil || (version != versionMainnet && version != versionTestnet) {
		return false
	}
	return bytes.Equal(btcutil.Hash160(serialized), hash)
}
