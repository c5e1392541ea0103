package transport

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBOR modes for binary websocket frames. Encoding is Core Deterministic
// (sorted keys, shortest integers). Decoding into any yields
// map[string]any so results mix freely with JSON decoded values.
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("transport: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("transport: CBOR decoder initialization failed: " + err.Error())
	}
}
