package proof

import (
	"bytes"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Protocol markers recognized as the first push of a data-carrier output.
const (
	MarkerPath402 = "$402"
	MarkerBitSign = "b0ase-bitsign"
	MarkerB       = "19HxigV4QyBv3tHpQVcUEQyq1pzZVdoAut"
)

// DefaultMarkers is used when no markers are configured.
var DefaultMarkers = []string{MarkerPath402, MarkerBitSign, MarkerB}

// Payload is the data carried by a null-data output.
type Payload struct {
	Marker      string
	ContentType string
	Data        []byte
	Output      int
}

// Extractor finds protocol payloads in raw transactions.
type Extractor struct {
	markers map[string]struct{}
}

// NewExtractor creates an extractor for markers, or DefaultMarkers if none.
func NewExtractor(markers ...string) *Extractor {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	e := &Extractor{markers: make(map[string]struct{}, len(markers))}
	for _, m := range markers {
		e.markers[m] = struct{}{}
	}
	return e
}

// ExtractPayload returns the payload of the first null-data output whose first
// push is a known marker. The payload is the push following the first
// zero-length separator; without a separator the layout is marker,
// content-type, payload.
func (e *Extractor) ExtractPayload(raw []byte) (*Payload, bool) {
	var tx wire.MsgTx
	if err := tx.DeserializeNoWitness(bytes.NewReader(raw)); err != nil {
		return nil, false
	}

	for i, out := range tx.TxOut {
		pushes, ok := nullDataPushes(out.PkScript)
		if !ok || len(pushes) < 2 {
			continue
		}
		marker := string(pushes[0])
		if _, known := e.markers[marker]; !known {
			continue
		}
		p, ok := splitPayload(pushes)
		if !ok {
			continue
		}
		p.Marker = marker
		p.Output = i
		return p, true
	}
	return nil, false
}

// nullDataPushes returns the data pushes after OP_RETURN (optionally preceded
// by OP_FALSE). Any non-push opcode makes the script structurally invalid.
func nullDataPushes(script []byte) ([][]byte, bool) {
	tok := txscript.MakeScriptTokenizer(0, script)
	if !tok.Next() {
		return nil, false
	}
	if tok.Opcode() == txscript.OP_FALSE {
		if !tok.Next() {
			return nil, false
		}
	}
	if tok.Opcode() != txscript.OP_RETURN {
		return nil, false
	}

	var pushes [][]byte
	for tok.Next() {
		if tok.Opcode() > txscript.OP_PUSHDATA4 {
			return nil, false
		}
		pushes = append(pushes, tok.Data())
	}
	if tok.Err() != nil {
		return nil, false
	}
	return pushes, true
}

func splitPayload(pushes [][]byte) (*Payload, bool) {
	for j := 1; j < len(pushes)-1; j++ {
		if len(pushes[j]) != 0 {
			continue
		}
		if len(pushes[j+1]) == 0 {
			return nil, false
		}
		p := &Payload{Data: pushes[j+1]}
		if j >= 2 {
			p.ContentType = string(pushes[1])
		}
		return p, true
	}

	if len(pushes) >= 3 && len(pushes[2]) > 0 {
		return &Payload{ContentType: string(pushes[1]), Data: pushes[2]}, true
	}
	return nil, false
}
