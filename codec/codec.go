// Package codec holds the JSON helpers used for durable shopkeeper blobs and shop
// object state.
package codec

import (
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

func Decode[T any](bz []byte) (T, error) {
	v := new(T)
	err := json.Unmarshal(bz, v)
	if err != nil {
		return *v, eris.Wrap(err, "")
	}
	return *v, nil
}

func Encode(v any) ([]byte, error) {
	bz, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "")
	}
	return bz, nil
}
