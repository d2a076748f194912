package provider

import (
	"github.com/edgeflare/dataprovider/pkg/rest"
	"go.uber.org/zap"
)

// SchemaFunc supplies the schema sent in the profile headers. An empty result sends none.
type SchemaFunc func() string

// Options configures a Provider. The zero value means: every resource keyed by [id],
// default list operator eq, no schema header, no null-ordering policy.
type Options struct {
	Logger        *zap.Logger
	PrimaryKeys   rest.Keys
	SchemaFunc    SchemaFunc
	DefaultListOp rest.Operator
	NullsOrder    rest.NullsOrder
}

// Option configures a Provider.
type Option func(*Options)

// WithPrimaryKeys sets the resource to primary key configuration. The map is copied.
func WithPrimaryKeys(keys map[string][]string) Option {
	return func(o *Options) {
		o.PrimaryKeys = make(rest.Keys, len(keys))
		for resource, cols := range keys {
			o.PrimaryKeys[resource] = append(rest.PrimaryKey(nil), cols...)
		}
	}
}

// WithDefaultListOp sets the operator used by filter keys without an @operator suffix.
func WithDefaultListOp(op rest.Operator) Option {
	return func(o *Options) { o.DefaultListOp = op }
}

// WithSchema sends schema in the profile headers of every request.
func WithSchema(schema string) Option {
	return WithSchemaFunc(func() string { return schema })
}

// WithSchemaFunc calls fn before each request to pick the schema.
func WithSchemaFunc(fn SchemaFunc) Option {
	return func(o *Options) { o.SchemaFunc = fn }
}

// WithNullsOrder sets the default null-ordering policy for sorting.
func WithNullsOrder(n rest.NullsOrder) Option {
	return func(o *Options) { o.NullsOrder = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func defaultOptions() Options {
	return Options{
		Logger:        zap.NewNop(),
		PrimaryKeys:   rest.Keys{},
		SchemaFunc:    func() string { return "" },
		DefaultListOp: rest.OpEq,
	}
}
