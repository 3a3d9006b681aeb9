package proof

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/vietddude/path402/internal/core/domain"
)

// OpDomainVerify is the operation tag of a domain ownership attestation.
const OpDomainVerify = "domain-verify"

// ErrUnknownProtocol is returned for JSON payloads of an unrecognized protocol.
var ErrUnknownProtocol = errors.New("unknown payload protocol")

// Envelope is a decoded on-chain JSON payload.
type Envelope struct {
	Protocol string

	// domain-verify fields
	Op            string
	Domain        string
	IssuerAddress string
	Message       string
	Signature     string

	// bitsign fields
	Version   string
	Type      string
	Timestamp string

	Raw gjson.Result
}

// IsDomainVerify reports whether the envelope is a $402 domain attestation.
func (e *Envelope) IsDomainVerify() bool {
	return e.Protocol == MarkerPath402 && e.Op == OpDomainVerify
}

// DecodeEnvelope parses a $402 or bitsign JSON payload.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", domain.ErrInvalidProof)
	}
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return nil, fmt.Errorf("%w: payload is not a JSON object", domain.ErrInvalidProof)
	}

	env := &Envelope{Raw: res}
	switch {
	case res.Get("p").String() == MarkerPath402:
		env.Protocol = MarkerPath402
		env.Op = res.Get("op").String()
		env.Domain = res.Get("domain").String()
		env.IssuerAddress = res.Get("issuer_address").String()
		env.Message = res.Get("message").String()
		env.Signature = res.Get("signature").String()
	case res.Get("protocol").String() == MarkerBitSign:
		env.Protocol = MarkerBitSign
		env.Version = res.Get("version").String()
		env.Type = res.Get("type").String()
		env.Timestamp = res.Get("timestamp").String()
	default:
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidProof, ErrUnknownProtocol)
	}
	return env, nil
}
