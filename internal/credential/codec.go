package credential

import (
	"github.com/fxamacker/cbor/v2"

	"credence/internal/credential/models"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Core Deterministic Encoding: sorted keys, shortest forms, no
	// indefinite lengths. IDs encode through MarshalText as text strings.
	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("credential: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("credential: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodePayload returns the canonical bytes of p.
func EncodePayload(p models.Payload) ([]byte, error) {
	p.VerifiedAt = p.VerifiedAt.UTC()
	p.IssuedAt = p.IssuedAt.UTC()
	return encMode.Marshal(p)
}

// DecodePayload parses canonical payload bytes.
func DecodePayload(data []byte) (models.Payload, error) {
	var p models.Payload
	err := decMode.Unmarshal(data, &p)
	return p, err
}
