package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

// Numbers decode into json.Number so integers and floats stay distinguishable
// through cache and durable log round trips.
var defaultConfig = sonic.Config{
	UseNumber:   true,
	SortMapKeys: true,
	CopyString:  true,
}.Froze()

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// UnmarshalMap decodes a JSON object into a generic map.
func UnmarshalMap(data []byte) (map[string]any, error) {
	var out map[string]any
	if err := defaultConfig.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func Encode(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	return enc.Encode(v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}
