package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DatabaseSchema is a database entry of the catalog.
type DatabaseSchema struct {
	Name    string          `json:"name"`
	Options DatabaseOptions `json:"config"`
}

// NewDatabaseSchema creates a database schema with default options.
func NewDatabaseSchema(name string) DatabaseSchema {
	return DatabaseSchema{Name: name, Options: DefaultDatabaseOptions()}
}

// DatabaseOptions controls retention, sharding and timestamp precision of a database.
type DatabaseOptions struct {
	// TTL is how long data is kept
	TTL Duration `json:"ttl"`

	ShardNum uint64 `json:"shard_num"`

	// VnodeDuration is the time range covered by one shard group
	VnodeDuration Duration `json:"vnode_duration"`

	Replica uint64 `json:"replica"`

	Precision Precision `json:"precision"`
}

// DefaultDatabaseOptions returns 365 day retention and vnode duration, one
// shard, one replica and nanosecond precision.
func DefaultDatabaseOptions() DatabaseOptions {
	return DatabaseOptions{
		TTL:           Duration{TimeNum: 365, Unit: DurationUnitDay},
		ShardNum:      1,
		VnodeDuration: Duration{TimeNum: 365, Unit: DurationUnitDay},
		Replica:       1,
		Precision:     PrecisionNS,
	}
}

// Precision is the timestamp precision of a database.
type Precision uint8

const (
	PrecisionNS Precision = iota
	PrecisionUS
	PrecisionMS
)

// ParsePrecision parses MS, US or NS case-insensitively.
func ParsePrecision(text string) (Precision, bool) {
	switch strings.ToUpper(text) {
	case "MS":
		return PrecisionMS, true
	case "US":
		return PrecisionUS, true
	case "NS":
		return PrecisionNS, true
	default:
		return PrecisionNS, false
	}
}

func (p Precision) String() string {
	switch p {
	case PrecisionMS:
		return "MS"
	case PrecisionUS:
		return "US"
	default:
		return "NS"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Precision) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Precision) UnmarshalText(text []byte) error {
	v, ok := ParsePrecision(string(text))
	if !ok {
		return fmt.Errorf("invalid precision %q", text)
	}
	*p = v
	return nil
}

// DurationUnit is the unit of a Duration.
type DurationUnit uint8

const (
	DurationUnitDay DurationUnit = iota
	DurationUnitHour
	DurationUnitMinutes
)

func (u DurationUnit) String() string {
	switch u {
	case DurationUnitMinutes:
		return "Minutes"
	case DurationUnitHour:
		return "Hours"
	default:
		return "Days"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (u DurationUnit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *DurationUnit) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Minutes":
		*u = DurationUnitMinutes
	case "Hours":
		*u = DurationUnitHour
	case "Days":
		*u = DurationUnitDay
	default:
		return fmt.Errorf("invalid duration unit %q", text)
	}
	return nil
}

// Duration is a count of minutes, hours or days.
type Duration struct {
	TimeNum uint64       `json:"time_num"`
	Unit    DurationUnit `json:"unit"`
}

// ParseDuration parses "<n>", "<n>d", "<n>h" or "<n>m". A bare number is a
// count of days and the unit letter is case-insensitive. ok is false for
// empty or malformed text.
func ParseDuration(text string) (Duration, bool) {
	if text == "" {
		return Duration{}, false
	}
	if n, err := strconv.ParseUint(text, 10, 64); err == nil {
		return Duration{TimeNum: n, Unit: DurationUnitDay}, true
	}

	num, unit := text[:len(text)-1], text[len(text)-1:]
	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return Duration{}, false
	}
	switch strings.ToUpper(unit) {
	case "D":
		return Duration{TimeNum: n, Unit: DurationUnitDay}, true
	case "H":
		return Duration{TimeNum: n, Unit: DurationUnitHour}, true
	case "M":
		return Duration{TimeNum: n, Unit: DurationUnitMinutes}, true
	default:
		return Duration{}, false
	}
}

// String renders the display form, e.g. "365 Days".
func (d Duration) String() string {
	return fmt.Sprintf("%d %s", d.TimeNum, d.Unit)
}

// ToTime converts d to a time.Duration. Values that overflow saturate.
func (d Duration) ToTime() time.Duration {
	var unit time.Duration
	switch d.Unit {
	case DurationUnitMinutes:
		unit = time.Minute
	case DurationUnitHour:
		unit = time.Hour
	default:
		unit = 24 * time.Hour
	}
	if d.TimeNum > uint64(1<<63-1)/uint64(unit) {
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(d.TimeNum) * unit
}
