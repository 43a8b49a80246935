//go:build sonic

package utils

import (
	"github.com/bytedance/sonic"
)

// ConfigStd keeps encoding/json semantics, including case-insensitive keys
var (
	JSONMarshal   = sonic.ConfigStd.Marshal
	JSONUnmarshal = sonic.ConfigStd.Unmarshal
)

func JSONMarshalIndent(v any) ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(v, "", "  ")
}
