package squash

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// InfoField is one ordered (key, values) pair contributed by a group match.
// Ordering is preserved because spec.md requires info to serialize as an
// "ordered sequence of (key, sequence-of-string) pairs" — a plain Go map
// cannot preserve insertion order, so captures are tracked as a slice the
// way the teacher tracks field order in pkg/parse's `state.seenFields`.
type InfoField struct {
	Key    string
	Values []string
}

// Message is an immutable output record produced by a Squasher.
type Message struct {
	// Message is the final rendered string.
	Message string
	// Timestamp is the timestamp of the first contributing line.
	Timestamp time.Time
	// Info is the ordered sequence of captured (key, values) pairs. Keys
	// with an empty Values slice are dropped on serialization.
	Info []InfoField
	// Index is the first contributing line's index; used as the sort key.
	Index int
	// SourceLines is the number of input lines this Message represents.
	SourceLines int
	// IOC is the owning file's short name, injected by the global monitor
	// (spec.md §4.7); empty when a Message is produced outside monitor mode
	// (e.g. the "filter" stdin subcommand).
	IOC string
}

// Serialize turns a Message into a flat, ordered key/value representation
// suitable for JSON encoding: {"ts": ..., "msg": ..., <info keys>...}.
// Keys whose Values are empty are omitted, and a key with exactly one value
// serializes to that single string rather than a one-element list.
func (m Message) Serialize() []KV {
	out := make([]KV, 0, 3+len(m.Info))
	out = append(out, KV{Key: "ts", Value: m.Timestamp.Format(standardTimeLayout)})
	out = append(out, KV{Key: "msg", Value: m.Message})
	if m.IOC != "" {
		out = append(out, KV{Key: "ioc", Value: m.IOC})
	}
	for _, f := range m.Info {
		if len(f.Values) == 0 {
			continue
		}
		if len(f.Values) == 1 {
			out = append(out, KV{Key: f.Key, Value: f.Values[0]})
		} else {
			out = append(out, KV{Key: f.Key, Values: f.Values})
		}
	}
	return out
}

// KV is one serialized field: either a single string Value, or a list of
// Values, never both.
type KV struct {
	Key    string
	Value  string
	Values []string
}

// standardTimeLayout renders timestamps the same shape as the "standard"
// DateFormat this package parses ("%Y/%m/%d %H:%M:%S.%f").
const standardTimeLayout = "2006/01/02 15:04:05.000"

// MarshalJSONLine renders a Message as a single flat JSON object followed by
// a newline, field order preserved exactly as Serialize produced it (a plain
// map[string]any would not preserve this, same problem the teacher's
// DefaultFieldFormatFn sidesteps by writing key/value pairs directly to an
// io.Writer instead of building a map).
func (m Message) MarshalJSONLine() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range m.Serialize() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", kv.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		var value any
		if kv.Values != nil {
			value = kv.Values
		} else {
			value = kv.Value
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", kv.Key, err)
		}
		buf.Write(encoded)
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}
