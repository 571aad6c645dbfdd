package sqlite

import (
	"reflect"

	"bsid.es/despertador"
	"github.com/fxamacker/cbor/v2"
)

// Payloads are stored as deterministic CBOR. Times keep their offset and
// nanoseconds so a restored trigger carries exactly what was armed.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("sqlite: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("sqlite: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodePayload(p despertador.Payload) ([]byte, error) {
	return encMode.Marshal(p)
}

func decodePayload(data []byte) (despertador.Payload, error) {
	var p despertador.Payload
	err := decMode.Unmarshal(data, &p)
	return p, err
}
