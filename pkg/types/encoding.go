package types

import (
	"fmt"
	"strings"
)

// Encoding is the compression codec of a column.
type Encoding uint8

const (
	EncodingDefault Encoding = iota
	EncodingNull
	EncodingDelta
	EncodingQuantile
	EncodingDeltaTs
	EncodingGzip
	EncodingBzip
	EncodingGorilla
	EncodingSnappy
	EncodingZstd
	EncodingZlib
	EncodingBitPack
	EncodingSDT
	EncodingDictionary
)

var encodingNames = [...]string{
	EncodingDefault:    "DEFAULT",
	EncodingNull:       "NULL",
	EncodingDelta:      "DELTA",
	EncodingQuantile:   "QUANTILE",
	EncodingDeltaTs:    "DELTATS",
	EncodingGzip:       "GZIP",
	EncodingBzip:       "BZIP",
	EncodingGorilla:    "GORILLA",
	EncodingSnappy:     "SNAPPY",
	EncodingZstd:       "ZSTD",
	EncodingZlib:       "ZLIB",
	EncodingBitPack:    "BITPACK",
	EncodingSDT:        "SDT",
	EncodingDictionary: "DICTIONARY",
}

func (e Encoding) String() string {
	if int(e) < len(encodingNames) {
		return encodingNames[e]
	}
	return fmt.Sprintf("Encoding(%d)", uint8(e))
}

// ParseEncoding parses a codec name case-insensitively.
func ParseEncoding(s string) (Encoding, bool) {
	upper := strings.ToUpper(s)
	for i, name := range encodingNames {
		if name == upper {
			return Encoding(i), true
		}
	}
	return EncodingDefault, false
}

// MarshalText implements encoding.TextMarshaler.
func (e Encoding) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Encoding) UnmarshalText(text []byte) error {
	enc, ok := ParseEncoding(string(text))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEncoding, text)
	}
	*e = enc
	return nil
}
