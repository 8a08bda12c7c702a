package types

import (
	"crypto/rand"
	"sync"
	"time"
)

// QueryID identifies a query for its whole lifetime. It is a 48-bit
// millisecond timestamp followed by 80 bits of entropy, so ids sort by
// creation time.
type QueryID [16]byte

// Crockford's Base32 alphabet (excludes I, L, O, U to avoid confusion)
const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const queryIDStringLen = 26

// QueryIDGenerator generates query ids that increase monotonically, also
// within the same millisecond.
type QueryIDGenerator struct {
	mu            sync.Mutex
	lastTimestamp uint64
	lastRandom    [10]byte
	now           func() time.Time
}

// NewQueryIDGenerator creates a generator using the wall clock.
func NewQueryIDGenerator() *QueryIDGenerator {
	return &QueryIDGenerator{now: time.Now}
}

// Next returns a new query id.
func (g *QueryIDGenerator) Next() (QueryID, error) {
	return g.NextWithTime(g.now())
}

// NextWithTime returns a new query id stamped with t.
func (g *QueryIDGenerator) NextWithTime(t time.Time) (QueryID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	timestamp := uint64(t.UnixMilli())
	// A clock step backwards keeps the previous timestamp so ids stay ordered.
	if timestamp < g.lastTimestamp {
		timestamp = g.lastTimestamp
	}

	var id QueryID
	for i := 0; i < 6; i++ {
		id[i] = byte(timestamp >> (40 - 8*i))
	}

	if timestamp == g.lastTimestamp {
		g.incrementRandom()
	} else {
		if _, err := rand.Read(g.lastRandom[:]); err != nil {
			return QueryID{}, err
		}
		g.lastTimestamp = timestamp
	}
	copy(id[6:], g.lastRandom[:])

	return id, nil
}

func (g *QueryIDGenerator) incrementRandom() {
	for i := 9; i >= 0; i-- {
		g.lastRandom[i]++
		if g.lastRandom[i] != 0 {
			break
		}
	}
}

// Timestamp returns the creation time in Unix milliseconds.
func (id QueryID) Timestamp() uint64 {
	var ts uint64
	for i := 0; i < 6; i++ {
		ts = ts<<8 | uint64(id[i])
	}
	return ts
}

// Time returns the creation time.
func (id QueryID) Time() time.Time {
	return time.UnixMilli(int64(id.Timestamp()))
}

// IsZero reports whether id is the zero value.
func (id QueryID) IsZero() bool {
	return id == QueryID{}
}

// String returns the 26 character Crockford Base32 form.
func (id QueryID) String() string {
	// 128 bits are encoded as 130 bits, with two leading zero bits.
	var buf [queryIDStringLen]byte
	for i := 0; i < queryIDStringLen; i++ {
		bit := i*5 - 2
		var v byte
		for b := 0; b < 5; b++ {
			pos := bit + b
			if pos < 0 {
				continue
			}
			v |= ((id[pos/8] >> (7 - uint(pos%8))) & 1) << (4 - uint(b))
		}
		buf[i] = crockfordBase32[v]
	}
	return string(buf[:])
}

// Compare returns -1, 0 or 1 depending on the ordering of id and other.
func (id QueryID) Compare(other QueryID) int {
	for i := range id {
		if id[i] < other[i] {
			return -1
		}
		if id[i] > other[i] {
			return 1
		}
	}
	return 0
}

// ParseQueryID parses the String form of a query id.
func ParseQueryID(s string) (QueryID, error) {
	if len(s) != queryIDStringLen {
		return QueryID{}, ErrInvalidQueryIDLength
	}
	// The first character only carries three bits.
	if decodeBase32(s[0]) > 7 {
		return QueryID{}, ErrInvalidQueryIDCharacter
	}

	var id QueryID
	for i := 0; i < queryIDStringLen; i++ {
		v := decodeBase32(s[i])
		if v == 0xFF {
			return QueryID{}, ErrInvalidQueryIDCharacter
		}
		bit := i*5 - 2
		for b := 0; b < 5; b++ {
			pos := bit + b
			if pos < 0 {
				continue
			}
			if (v>>(4-uint(b)))&1 == 1 {
				id[pos/8] |= 1 << (7 - uint(pos%8))
			}
		}
	}
	return id, nil
}

// decodeBase32 decodes a single Crockford Base32 character.
// Returns 0xFF for invalid characters.
func decodeBase32(c byte) byte {
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'H':
		return c - 'A' + 10
	case c >= 'J' && c <= 'K':
		return c - 'J' + 18
	case c >= 'M' && c <= 'N':
		return c - 'M' + 20
	case c >= 'P' && c <= 'T':
		return c - 'P' + 22
	case c >= 'V' && c <= 'Z':
		return c - 'V' + 27
	default:
		return 0xFF
	}
}

// MarshalText implements encoding.TextMarshaler.
func (id QueryID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *QueryID) UnmarshalText(text []byte) error {
	parsed, err := ParseQueryID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
