package mimir

import (
	"bytes"

	"github.com/google/uuid"
	"github.com/pandodao/mtg/mtgpack"
)

var scopeNamespace = uuid.MustParse("5a3f0c1e-8f0b-4c55-9d0e-6b1c2f7e4a90")

// scopeID maps a scope to a fixed width key component.
func scopeID(network string, addr Address) uuid.UUID {
	return uuid.NewSHA1(scopeNamespace, []byte(network+":"+addr.Hex()))
}

func buildIndexKey(prefix []byte, values ...any) []byte {
	enc := mtgpack.NewEncoder()
	if err := enc.EncodeValues(values...); err != nil {
		panic(err)
	}

	key := make([]byte, 0, len(prefix)+len(enc.Bytes()))
	key = append(key, prefix...)
	return append(key, enc.Bytes()...)
}

func decodeIndexKey(key, prefix []byte, values ...any) error {
	b := bytes.TrimPrefix(key, prefix)
	dec := mtgpack.NewDecoder(b)
	return dec.DecodeValues(values...)
}
