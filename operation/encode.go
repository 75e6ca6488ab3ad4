package operation

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/sluice/search"
)

// Match transport encodings.
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// EncodeMatches serializes matches for transport to another process.
// A nil list encodes as an empty array.
func EncodeMatches(format string, matches []search.ExtractedMatchValue) ([]byte, error) {
	if matches == nil {
		matches = []search.ExtractedMatchValue{}
	}
	switch format {
	case EncodingJSON, "":
		return json.Marshal(matches)
	case EncodingMsgpack:
		return msgpack.Marshal(matches)
	default:
		return nil, invalidf("unknown match encoding %q", format)
	}
}

// DecodeMatches is the inverse of EncodeMatches.
func DecodeMatches(format string, data []byte) ([]search.ExtractedMatchValue, error) {
	var out []search.ExtractedMatchValue
	var err error
	switch format {
	case EncodingJSON, "":
		err = json.Unmarshal(data, &out)
	case EncodingMsgpack:
		err = msgpack.Unmarshal(data, &out)
	default:
		return nil, invalidf("unknown match encoding %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode matches: %w", err)
	}
	return out, nil
}
