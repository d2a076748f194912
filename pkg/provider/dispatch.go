package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownOperation is returned by Dispatch for an operation name it does not know.
var ErrUnknownOperation = errors.New("unknown operation")

// ErrInvalidParams wraps errors decoding the raw parameters given to Dispatch.
var ErrInvalidParams = errors.New("invalid operation params")

// Dispatch decodes raw as the parameters of op and runs it against resource.
// Numbers in raw are kept as json.Number so identifiers keep their exact text.
func (p *Provider) Dispatch(ctx context.Context, op Operation, resource string, raw []byte) (any, error) {
	switch op {
	case OpGetList:
		return run(ctx, raw, resource, p.GetList)
	case OpGetOne:
		return run(ctx, raw, resource, p.GetOne)
	case OpGetMany:
		return run(ctx, raw, resource, p.GetMany)
	case OpGetManyReference:
		return run(ctx, raw, resource, p.GetManyReference)
	case OpCreate:
		return run(ctx, raw, resource, p.Create)
	case OpUpdate:
		return run(ctx, raw, resource, p.Update)
	case OpUpdateMany:
		return run(ctx, raw, resource, p.UpdateMany)
	case OpDelete:
		return run(ctx, raw, resource, p.Delete)
	case OpDeleteMany:
		return run(ctx, raw, resource, p.DeleteMany)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
}

func run[P, R any](ctx context.Context, raw []byte, resource string, fn func(context.Context, string, P) (R, error)) (any, error) {
	var params P
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	}
	return fn(ctx, resource, params)
}
