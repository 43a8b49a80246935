//go:build !sonic

package utils

import (
	"github.com/goccy/go-json"
)

// shared by the state store and the req clients
var (
	JSONMarshal   = json.Marshal
	JSONUnmarshal = json.Unmarshal
)

func JSONMarshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
