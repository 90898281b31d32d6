package squash

import (
	"errors"
	"fmt"

	"github.com/itchyny/gojq"
)

// MessageFilter optionally narrows or rewrites Messages with a jq program,
// run against the serialized Message just before it is written out. This
// generalizes the teacher's FilterScheme.AddJQ/runJQ from *line to Message.
type MessageFilter struct {
	jq *gojq.Code
}

// JQOptions configures module resolution for a jq program.
type JQOptions struct {
	SearchPath []string
}

// AddJQ compiles program and attaches it to the filter. Passing an empty
// program is a no-op. A filter may only have one jq program.
func (f *MessageFilter) AddJQ(program string, opts *JQOptions) error {
	if program == "" {
		return nil
	}
	if f.jq != nil {
		return errors.New("squash: jq program already added")
	}
	var searchPath []string
	if opts != nil {
		searchPath = opts.SearchPath
	}
	q, err := gojq.Parse(program)
	if err != nil {
		return fmt.Errorf("squash: parsing jq program %q: %w", program, err)
	}
	code, err := gojq.Compile(q,
		gojq.WithModuleLoader(gojq.NewModuleLoader(searchPath)))
	if err != nil {
		return fmt.Errorf("squash: compiling jq program %q: %w", program, err)
	}
	f.jq = code
	return nil
}

// Run evaluates the filter's jq program (if any) against m's serialized
// form. It returns the possibly-rewritten fields, whether m should be
// dropped, and an error if the program produced something other than a
// single object or a boolean-select miss.
//
// select(...)-style programs that reject a Message yield no output at all;
// that is reported as filtered=true, not an error.
func (f *MessageFilter) Run(m Message) (fields map[string]interface{}, filtered bool, err error) {
	if f.jq == nil {
		return nil, false, nil
	}
	input := serializeToMap(m)
	iter := f.jq.Run(input)
	result, ok := iter.Next()
	if !ok {
		return nil, true, nil
	}
	switch v := result.(type) {
	case map[string]interface{}:
		fields = v
	case nil:
		return nil, false, errors.New("squash: jq produced nil; yield an empty object ('{}') to delete all fields")
	case error:
		return nil, false, fmt.Errorf("squash: jq: %w", v)
	default:
		return nil, false, fmt.Errorf("squash: jq produced unexpected type %T(%#v)", result, result)
	}
	if _, ok := iter.Next(); ok {
		return nil, false, errors.New("squash: jq program unexpectedly produced more than one output")
	}
	return fields, false, nil
}

// serializeToMap turns a Message's ordered KVs into the map jq programs
// operate on. jq has no notion of field order, so this conversion is only
// ever used for filtering, never for final output.
func serializeToMap(m Message) map[string]interface{} {
	out := make(map[string]interface{}, 4)
	for _, kv := range m.Serialize() {
		if kv.Values != nil {
			out[kv.Key] = kv.Values
		} else {
			out[kv.Key] = kv.Value
		}
	}
	return out
}
