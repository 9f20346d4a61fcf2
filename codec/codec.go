// Package codec provides the generic payload (de)serialization helpers
// used by the dispatch engine and the generated proxies. The wire format
// fixes exactly one encoding — JSON — so the teacher's pluggable Codec
// interface (JSON vs. binary, negotiated per-frame) collapses here to a
// small set of generic helper functions built directly on encoding/json.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/DKorablin/NamedPipesProxy/rpcerr"
)

// As decodes data into a freshly allocated T. Used by rpcproxy to decode
// a reply payload into the caller's expected type.
func As[T any](data []byte) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("codec: decode %T: %w", v, rpcerr.ErrPayloadMalformed)
	}
	return v, nil
}

// AsTuple decodes data as a JSON array of positional arguments, each
// unmarshaled into the corresponding element of into. len(into) must
// equal the number of elements in the encoded array; a mismatch is
// reported as rpcerr.ErrArityMismatch.
func AsTuple(data []byte, into []any) error {
	var raw []json.RawMessage
	if len(data) != 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("codec: decode argument tuple: %w", rpcerr.ErrPayloadMalformed)
		}
	}
	if len(raw) != len(into) {
		return fmt.Errorf("codec: got %d arguments, want %d: %w", len(raw), len(into), rpcerr.ErrArityMismatch)
	}
	for i, elem := range raw {
		if err := json.Unmarshal(elem, into[i]); err != nil {
			return fmt.Errorf("codec: decode argument %d: %w", i, rpcerr.ErrPayloadMalformed)
		}
	}
	return nil
}

// EncodeTuple encodes args as a JSON array, the positional-argument
// payload shape every application request carries.
func EncodeTuple(args ...any) ([]byte, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("codec: encode argument tuple: %w", err)
	}
	return data, nil
}
