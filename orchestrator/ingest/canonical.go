package ingest

import (
	"bytes"
	"encoding/json"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// recognizedKeys is the closed set of top-level submission body keys.
// Anything else is rejected rather than silently dropped, so two bodies
// hashing equal always meant the same thing to the server.
var recognizedKeys = map[string]bool{
	"intent_id":          true,
	"target_chain":       true,
	"target_block":       true,
	"deadline_ms":        true,
	"max_calldata_bytes": true,
	"constraints":        true,
	"txs":                true,
	"meta":               true,
}

// Canonicalize reduces a submission body to its canonical form: compact JSON
// with lexicographically sorted keys and numbers preserved verbatim. The
// canonical bytes are the idempotency domain; clients re-sending a
// reformatted but identical body hash to the same request.
func Canonicalize(body []byte) ([]byte, *intent.Reason) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, intent.ClientReason(intent.CodeClientBadRequest, "body is not a JSON object")
	}
	for k := range m {
		if !recognizedKeys[k] {
			return nil, intent.ClientReason(intent.CodeClientBadRequest, "unrecognized key").WithContext("key", k)
		}
	}
	enc, err := json.Marshal(m)
	if err != nil {
		return nil, intent.ClientReason(intent.CodeClientBadRequest, "body is not canonicalizable")
	}
	return enc, nil
}

// RequestHash is the 0x-hex Keccak-256 of the canonical body.
func RequestHash(canonical []byte) string {
	return hexutil.Encode(crypto.Keccak256(canonical))
}
