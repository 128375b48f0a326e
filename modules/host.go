package modules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
)

// ErrModuleHostDisabled is returned by the default host.
var ErrModuleHostDisabled = errors.New("module host not configured")

// Host loads reducer modules and invokes their functions.
type Host interface {
	LoadModule(ctx context.Context, name, path string) error
	Call(ctx context.Context, module, function string, args []string) (json.RawMessage, error)
	Modules() []string
}

type disabledHost struct{}

func (disabledHost) LoadModule(context.Context, string, string) error { return ErrModuleHostDisabled }

func (disabledHost) Call(context.Context, string, string, []string) (json.RawMessage, error) {
	return nil, ErrModuleHostDisabled
}

func (disabledHost) Modules() []string { return nil }

// DisabledHost rejects every module operation.
func DisabledHost() Host { return disabledHost{} }

// Envelope is a reducer invocation.
type Envelope struct {
	Module   string          `json:"module"`
	Function string          `json:"function"`
	Args     json.RawMessage `json:"args"`
}

const envelopeSchema = `{
  "type": "object",
  "required": ["module", "function", "args"],
  "properties": {
    "module":   {"type": "string", "minLength": 1},
    "function": {"type": "string", "minLength": 1},
    "args":     {"type": ["array", "object"]}
  }
}`

var envelopeLoader = gojsonschema.NewStringLoader(envelopeSchema)

// ValidateEnvelope checks data against the reducer envelope shape and decodes it.
func ValidateEnvelope(data []byte) (*Envelope, error) {
	result, err := gojsonschema.Validate(envelopeLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid envelope: %s", strings.Join(msgs, "; "))
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	return &env, nil
}

// Arguments flattens Args into the string list passed to Host.Call. Object
// args are passed as a single JSON argument.
func (e *Envelope) Arguments() ([]string, error) {
	var list []any
	if err := json.Unmarshal(e.Args, &list); err != nil {
		return []string{string(e.Args)}, nil
	}
	out := make([]string, len(list))
	for i, v := range list {
		if s, ok := v.(string); ok {
			out[i] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[i] = string(b)
	}
	return out, nil
}
