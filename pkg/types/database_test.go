package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input  string
		want   Duration
		wantOK bool
	}{
		{"", Duration{}, false},
		{"10", Duration{10, DurationUnitDay}, true},
		{"7d", Duration{7, DurationUnitDay}, true},
		{"7D", Duration{7, DurationUnitDay}, true},
		{"3h", Duration{3, DurationUnitHour}, true},
		{"3H", Duration{3, DurationUnitHour}, true},
		{"45m", Duration{45, DurationUnitMinutes}, true},
		{"45M", Duration{45, DurationUnitMinutes}, true},
		{"5x", Duration{}, false},
		{"abc", Duration{}, false},
		{"d", Duration{}, false},
		{"-1d", Duration{}, false},
		{"1.5h", Duration{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseDuration(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ok mismatch for %q: got %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("duration mismatch for %q: got %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDuration_String(t *testing.T) {
	tests := []struct {
		d    Duration
		want string
	}{
		{Duration{365, DurationUnitDay}, "365 Days"},
		{Duration{2, DurationUnitHour}, "2 Hours"},
		{Duration{30, DurationUnitMinutes}, "30 Minutes"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("display mismatch: got %s, want %s", got, tt.want)
		}
	}
}

func TestDuration_ToTime(t *testing.T) {
	if got := (Duration{2, DurationUnitHour}).ToTime(); got != 2*time.Hour {
		t.Errorf("conversion mismatch: got %v, want 2h", got)
	}
	if got := (Duration{1, DurationUnitDay}).ToTime(); got != 24*time.Hour {
		t.Errorf("conversion mismatch: got %v, want 24h", got)
	}
	huge := Duration{TimeNum: 1 << 62, Unit: DurationUnitDay}
	if got := huge.ToTime(); got <= 0 {
		t.Errorf("expected saturation, got %v", got)
	}
}

func TestParsePrecision(t *testing.T) {
	tests := []struct {
		input  string
		want   Precision
		wantOK bool
	}{
		{"ms", PrecisionMS, true},
		{"Us", PrecisionUS, true},
		{"NS", PrecisionNS, true},
		{"s", PrecisionNS, false},
		{"", PrecisionNS, false},
	}
	for _, tt := range tests {
		got, ok := ParsePrecision(tt.input)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("precision mismatch for %q: got %s (%v), want %s (%v)", tt.input, got, ok, tt.want, tt.wantOK)
		}
		if ok && got.String() != tt.want.String() {
			t.Errorf("display mismatch: got %s", got)
		}
	}
	if PrecisionUS.String() != "US" {
		t.Errorf("display mismatch: got %s, want US", PrecisionUS)
	}
}

func TestDefaultDatabaseOptions(t *testing.T) {
	opts := NewDatabaseSchema("db1").Options

	if opts.TTL.String() != "365 Days" || opts.VnodeDuration.String() != "365 Days" {
		t.Errorf("durations mismatch: ttl %s, vnode %s", opts.TTL, opts.VnodeDuration)
	}
	if opts.ShardNum != 1 || opts.Replica != 1 {
		t.Errorf("shard/replica mismatch: %d/%d", opts.ShardNum, opts.Replica)
	}
	if opts.Precision != PrecisionNS {
		t.Errorf("precision mismatch: got %s, want NS", opts.Precision)
	}
}

func TestDatabaseSchema_JSON(t *testing.T) {
	schema := DatabaseSchema{
		Name: "metrics",
		Options: DatabaseOptions{
			TTL:           Duration{30, DurationUnitDay},
			ShardNum:      4,
			VnodeDuration: Duration{12, DurationUnitHour},
			Replica:       3,
			Precision:     PrecisionMS,
		},
	}
	data, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded DatabaseSchema
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded != schema {
		t.Errorf("schema mismatch: got %+v, want %+v", decoded, schema)
	}
}
