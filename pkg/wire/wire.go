// Package wire provides the canonical CBOR encoding used to carry
// protocol messages (DKG/signing/resharing broadcasts and sealed
// envelopes) across an untrusted relay. Every message type in this
// module expresses its curve.Scalar/curve.Point fields through
// encoding.BinaryMarshaler, so cbor encodes them as plain byte
// strings with no custom struct tags required.
package wire

import (
	"github.com/fxamacker/cbor/v2"
)

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// Marshal encodes v as deterministic (canonical) CBOR, so two parties
// serializing the same message always produce identical bytes.
func Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR-encoded bytes into v.
func Unmarshal(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}
