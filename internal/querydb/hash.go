package querydb

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// HashBytes fingerprints a byte-slice value. Panics on other value types:
// a mismatched hash function is an internal invariant violation, which the
// compute isolation in runCompute converts to a poisoned node.
func HashBytes(v Value) uint64 {
	b, ok := v.([]byte)
	if !ok {
		panic(fmt.Sprintf("querydb: HashBytes on %T", v))
	}
	return xxhash.Sum64(b)
}

// HashString fingerprints a string value.
func HashString(v Value) uint64 {
	s, ok := v.(string)
	if !ok {
		panic(fmt.Sprintf("querydb: HashString on %T", v))
	}
	return xxhash.Sum64String(s)
}

// HashJSON fingerprints any JSON-marshalable value via its canonical
// encoding. encoding/json sorts map keys, so the fingerprint is stable
// across runs for equal values.
func HashJSON(v Value) uint64 {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("querydb: unhashable value %T: %v", v, err))
	}
	return xxhash.Sum64(b)
}
