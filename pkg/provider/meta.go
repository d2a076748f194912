package provider

import (
	"fmt"

	"github.com/edgeflare/dataprovider/pkg/rest"
	"github.com/mitchellh/mapstructure"
)

// Meta is the typed form of the per-call metadata bag.
type Meta struct {
	Headers    map[string]string `mapstructure:"headers"`
	Schema     *string           `mapstructure:"schema"`
	NullsFirst *bool             `mapstructure:"nullsfirst"`
	NullsLast  *bool             `mapstructure:"nullslast"`
	Columns    []string          `mapstructure:"columns"`
	Embed      []string          `mapstructure:"embed"`
	Prefetch   []string          `mapstructure:"prefetch"`
}

// DecodeMeta converts an untyped metadata bag. List values may be given as
// comma-separated strings and booleans as strings. Unknown keys are ignored.
func DecodeMeta(raw map[string]any) (*Meta, error) {
	m := &Meta{}
	if len(raw) == 0 {
		return m, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		WeaklyTypedInput: true,
		Result:           m,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: meta: %v", ErrInvalidParams, err)
	}
	return m, nil
}

// Selection returns the select-parameter inputs of m.
func (m *Meta) Selection() rest.Selection {
	if m == nil {
		return rest.Selection{}
	}
	return rest.Selection{Columns: m.Columns, Embed: m.Embed, Prefetch: m.Prefetch}
}

// NullsOverride returns the per-call null-ordering request.
func (m *Meta) NullsOverride() rest.NullsOverride {
	if m == nil {
		return rest.NullsOverride{}
	}
	return rest.NullsOverride{First: m.NullsFirst, Last: m.NullsLast}
}
