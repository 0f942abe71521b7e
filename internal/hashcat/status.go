package hashcat

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// StatusPrefix starts every machine-readable status line
const StatusPrefix = "STATUS"

// Kind tags the shape of a decoded status value
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindPair
	KindSpeeds
	KindFloats
	KindInts
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindPair:
		return "pair"
	case KindSpeeds:
		return "speeds"
	case KindFloats:
		return "floats"
	case KindInts:
		return "ints"
	default:
		return "unknown"
	}
}

// Pair is a (current, total) counter such as PROGRESS or RECHASH
type Pair struct {
	Current int64 `json:"current"`
	Total   int64 `json:"total"`
}

// Percent returns Current as a percentage of Total, 0 when Total is 0
func (p Pair) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// DeviceSpeed is one device's SPEED entry: hashes computed in Millis milliseconds
type DeviceSpeed struct {
	Hashes int64   `json:"hashes"`
	Millis float64 `json:"millis"`
}

// HashesPerSecond converts the sample into H/s
func (d DeviceSpeed) HashesPerSecond() float64 {
	if d.Millis <= 0 {
		return 0
	}
	return float64(d.Hashes) / d.Millis * 1000
}

// Value is a decoded status field. Only the accessor matching Kind returns ok.
type Value struct {
	kind   Kind
	i      int64
	f      float64
	pair   Pair
	speeds []DeviceSpeed
	floats []float64
	ints   []int64
}

// Kind returns the shape of v
func (v Value) Kind() Kind { return v.kind }

// Int returns the value of an integer scalar
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Float returns the value as a float. Integers are widened.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// Pair returns a current/total value
func (v Value) Pair() (Pair, bool) { return v.pair, v.kind == KindPair }

// Speeds returns a copy of the per-device speeds
func (v Value) Speeds() ([]DeviceSpeed, bool) {
	if v.kind != KindSpeeds {
		return nil, false
	}
	return append([]DeviceSpeed(nil), v.speeds...), true
}

// Floats returns a copy of a float list
func (v Value) Floats() ([]float64, bool) {
	if v.kind != KindFloats {
		return nil, false
	}
	return append([]float64(nil), v.floats...), true
}

// Ints returns a copy of an integer list
func (v Value) Ints() ([]int64, bool) {
	if v.kind != KindInts {
		return nil, false
	}
	return append([]int64(nil), v.ints...), true
}

// MarshalJSON encodes v in its natural JSON shape
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindPair:
		return json.Marshal(v.pair)
	case KindSpeeds:
		return json.Marshal(nonNil(v.speeds))
	case KindFloats:
		return json.Marshal(nonNil(v.floats))
	default:
		return json.Marshal(nonNil(v.ints))
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// fieldKinds is the decode table for keys with a fixed shape. Keys missing
// from the table are decoded as a scalar, or as a numeric list when they carry
// more than one token.
var fieldKinds = map[string]Kind{
	"STATUS":       KindInt,
	"SPEED":        KindSpeeds,
	"EXEC_RUNTIME": KindFloats,
	"TEMP":         KindInts,
	"UTIL":         KindInts,
	"POWER":        KindInts,
	"PROGRESS":     KindPair,
	"RECHASH":      KindPair,
	"RECSALT":      KindPair,
}

var keyPattern = regexp.MustCompile(`[A-Z_]+`)

// Snapshot is one fully decoded status line. It is never modified after
// ParseStatusLine returns it.
type Snapshot struct {
	fields     map[string]Value
	keys       []string
	raw        string
	receivedAt time.Time
}

// IsZero reports whether no status line has been decoded into s
func (s Snapshot) IsZero() bool {
	return s.fields == nil
}

// Get returns the value stored under key
func (s Snapshot) Get(key string) (Value, bool) {
	v, ok := s.fields[key]
	return v, ok
}

// Keys returns field names in the order they appeared on the line
func (s Snapshot) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Raw returns the status line the snapshot was decoded from
func (s Snapshot) Raw() string {
	return s.raw
}

// ReceivedAt returns when the line was decoded
func (s Snapshot) ReceivedAt() time.Time {
	return s.receivedAt
}

// Status returns the STATUS code
func (s Snapshot) Status() (StatusCode, bool) {
	v, ok := s.fields["STATUS"]
	if !ok {
		return 0, false
	}
	n, ok := v.Int()
	return StatusCode(n), ok
}

func (s Snapshot) pair(key string) (Pair, bool) {
	v, ok := s.fields[key]
	if !ok {
		return Pair{}, false
	}
	return v.Pair()
}

// Progress returns PROGRESS as (done, total) keyspace positions
func (s Snapshot) Progress() (Pair, bool) { return s.pair("PROGRESS") }

// RecoveredHashes returns RECHASH
func (s Snapshot) RecoveredHashes() (Pair, bool) { return s.pair("RECHASH") }

// RecoveredSalts returns RECSALT
func (s Snapshot) RecoveredSalts() (Pair, bool) { return s.pair("RECSALT") }

// Speeds returns the per-device SPEED samples
func (s Snapshot) Speeds() []DeviceSpeed {
	speeds, _ := s.fields["SPEED"].Speeds()
	return speeds
}

// Temperatures returns per-device TEMP values
func (s Snapshot) Temperatures() []int64 {
	temps, _ := s.fields["TEMP"].Ints()
	return temps
}

// ExecRuntimes returns per-device EXEC_RUNTIME values
func (s Snapshot) ExecRuntimes() []float64 {
	runtimes, _ := s.fields["EXEC_RUNTIME"].Floats()
	return runtimes
}

// TotalSpeed sums the H/s of all devices
func (s Snapshot) TotalSpeed() float64 {
	var total float64
	for _, d := range s.Speeds() {
		total += d.HashesPerSecond()
	}
	return total
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.fields == nil {
		return []byte("null"), nil
	}
	return json.Marshal(s.fields)
}

// ParseStatusLine decodes a machine-readable status line. It returns false for
// lines that do not start with STATUS and for lines with a malformed field.
func ParseStatusLine(line string) (Snapshot, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, StatusPrefix) {
		return Snapshot{}, false
	}

	spans := keyPattern.FindAllStringIndex(line, -1)
	snap := Snapshot{
		fields:     make(map[string]Value, len(spans)),
		keys:       make([]string, 0, len(spans)),
		raw:        line,
		receivedAt: time.Now(),
	}

	for i, span := range spans {
		key := line[span[0]:span[1]]
		end := len(line)
		if i+1 < len(spans) {
			end = spans[i+1][0]
		}
		tokens := strings.Fields(line[span[1]:end])

		value, ok := decodeField(key, tokens)
		if !ok {
			return Snapshot{}, false
		}
		if _, seen := snap.fields[key]; !seen {
			snap.keys = append(snap.keys, key)
		}
		snap.fields[key] = value
	}

	return snap, true
}

func decodeField(key string, tokens []string) (Value, bool) {
	kind, known := fieldKinds[key]
	if !known {
		switch len(tokens) {
		case 0:
			return Value{}, false
		case 1:
			return decodeScalar(tokens[0])
		}
		kind = KindInts
		for _, tok := range tokens {
			if strings.Contains(tok, ".") {
				kind = KindFloats
				break
			}
		}
	}

	switch kind {
	case KindSpeeds:
		if len(tokens)%2 != 0 {
			return Value{}, false
		}
		speeds := make([]DeviceSpeed, 0, len(tokens)/2)
		for i := 0; i < len(tokens); i += 2 {
			hashes, err := strconv.ParseInt(tokens[i], 10, 64)
			if err != nil {
				return Value{}, false
			}
			millis, err := strconv.ParseFloat(tokens[i+1], 64)
			if err != nil {
				return Value{}, false
			}
			speeds = append(speeds, DeviceSpeed{Hashes: hashes, Millis: millis})
		}
		return Value{kind: KindSpeeds, speeds: speeds}, true

	case KindFloats:
		floats := make([]float64, 0, len(tokens))
		for _, tok := range tokens {
			f, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return Value{}, false
			}
			floats = append(floats, f)
		}
		return Value{kind: KindFloats, floats: floats}, true

	case KindInts:
		ints := make([]int64, 0, len(tokens))
		for _, tok := range tokens {
			n, err := strconv.ParseInt(tok, 10, 64)
			if err != nil {
				return Value{}, false
			}
			ints = append(ints, n)
		}
		return Value{kind: KindInts, ints: ints}, true

	case KindPair:
		if len(tokens) != 2 {
			return Value{}, false
		}
		current, err := strconv.ParseInt(tokens[0], 10, 64)
		if err != nil {
			return Value{}, false
		}
		total, err := strconv.ParseInt(tokens[1], 10, 64)
		if err != nil {
			return Value{}, false
		}
		return Value{kind: KindPair, pair: Pair{Current: current, Total: total}}, true

	default:
		if len(tokens) != 1 {
			return Value{}, false
		}
		return decodeScalar(tokens[0])
	}
}

// decodeScalar parses a float when the text has a decimal point, an int otherwise
func decodeScalar(tok string) (Value, bool) {
	if strings.Contains(tok, ".") {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return Value{}, false
		}
		return Value{kind: KindFloat, f: f}, true
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return Value{}, false
	}
	return Value{kind: KindInt, i: n}, true
}
