package entity

import (
	"encoding/json"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/cockroachdb/errors"
)

// Signature is a StarkNet account signature as a list of felt hex
// strings. Clients submit signatures in several shapes (bare array,
// {r, s} object, or either of those wrapped in a JSON string), all of
// which normalize to the canonical array form on ingress.
type Signature []string

func (s *Signature) UnmarshalJSON(data []byte) error {
	// String-wrapped payloads carry the real value one level down.
	var inner string
	if err := json.Unmarshal(data, &inner); err == nil {
		data = []byte(inner)
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) == 0 {
			return errors.New("signature must not be empty")
		}
		*s = arr
		return nil
	}

	var rs struct {
		R string `json:"r"`
		S string `json:"s"`
	}
	if err := json.Unmarshal(data, &rs); err != nil {
		return errors.Wrap(err, "unrecognized signature shape")
	}
	if rs.R == "" || rs.S == "" {
		return errors.New("signature object requires both r and s")
	}
	*s = Signature{rs.R, rs.S}
	return nil
}

// Felts parses every signature element into a felt. Any element that is
// not a valid felt string fails the whole conversion.
func (s Signature) Felts() ([]*felt.Felt, error) {
	out := make([]*felt.Felt, 0, len(s))
	for i, raw := range s {
		f, err := new(felt.Felt).SetString(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "signature element %d is not a felt", i)
		}
		out = append(out, f)
	}
	return out, nil
}
