package provider

import (
	"context"
	"maps"
	"net/http"
	"reflect"
	"time"

	"github.com/edgeflare/dataprovider/pkg/rest"
)

var (
	preferCount          = &rest.Prefer{Count: "exact"}
	preferRepresentation = &rest.Prefer{Return: "representation"}
)

// GetList fetches one page of resource. The total comes from the Content-Range header,
// which the gateway must send.
func (p *Provider) GetList(ctx context.Context, resource string, params GetListParams) (_ *ListResult, err error) {
	defer observe(OpGetList, resource, time.Now(), &err)

	m, err := DecodeMeta(params.Meta)
	if err != nil {
		return nil, err
	}
	key := p.PrimaryKey(resource)

	q, err := p.listQuery(key, params.Pagination, params.Sort, params.Filter, m)
	if err != nil {
		return nil, err
	}
	return p.list(ctx, resource, key, q, m)
}

// GetManyReference fetches the page of resource whose target field references id.
func (p *Provider) GetManyReference(ctx context.Context, resource string, params GetManyReferenceParams) (_ *ListResult, err error) {
	defer observe(OpGetManyReference, resource, time.Now(), &err)

	m, err := DecodeMeta(params.Meta)
	if err != nil {
		return nil, err
	}
	key := p.PrimaryKey(resource)

	lq, err := p.listQuery(key, params.Pagination, params.Sort, params.Filter, m)
	if err != nil {
		return nil, err
	}
	q := rest.Params{}
	if params.Target != "" {
		q.Set(params.Target, string(rest.OpEq)+"."+rest.FormatValue(params.ID))
	}
	q.Merge(lq)

	return p.list(ctx, resource, key, q, m)
}

func (p *Provider) list(ctx context.Context, resource string, key rest.PrimaryKey, q rest.Params, m *Meta) (*ListResult, error) {
	resp, body, err := p.do(ctx, call{
		method:   http.MethodGet,
		resource: resource,
		query:    q,
		meta:     m,
		accept:   rest.MediaTypeJSON,
		prefer:   preferCount,
	})
	if err != nil {
		return nil, err
	}

	total, err := rest.ParseContentRange(resp.Headers.Get(rest.HeaderContentRange))
	if err != nil {
		return nil, err
	}
	records, err := toRecords(body)
	if err != nil {
		return nil, err
	}

	pf := newPrefetcher(m.Prefetch, p.opts.PrimaryKeys)
	data := make([]map[string]any, len(records))
	for i, r := range records {
		data[i] = pf.extract(rest.WithVirtualID(r, key))
	}
	return &ListResult{Data: data, Total: total, Meta: pf.meta()}, nil
}

// GetOne fetches the record identified by params.ID.
func (p *Provider) GetOne(ctx context.Context, resource string, params GetOneParams) (_ *RecordResult, err error) {
	defer observe(OpGetOne, resource, time.Now(), &err)

	m, err := DecodeMeta(params.Meta)
	if err != nil {
		return nil, err
	}
	key := p.PrimaryKey(resource)

	q, err := p.keyQuery(OpGetOne, resource, key, []any{params.ID}, m)
	if err != nil {
		return nil, err
	}
	_, body, err := p.do(ctx, call{
		method:   http.MethodGet,
		resource: resource,
		query:    q,
		meta:     m,
		accept:   rest.MediaTypeObject,
	})
	if err != nil {
		return nil, err
	}
	return p.record(body, key, m)
}

// GetMany fetches the records identified by params.IDs with one request.
func (p *Provider) GetMany(ctx context.Context, resource string, params GetManyParams) (_ *RecordsResult, err error) {
	defer observe(OpGetMany, resource, time.Now(), &err)

	if len(params.IDs) == 0 {
		skipped(OpGetMany)
		return &RecordsResult{Data: []map[string]any{}}, nil
	}

	m, err := DecodeMeta(params.Meta)
	if err != nil {
		return nil, err
	}
	key := p.PrimaryKey(resource)

	q, err := p.keyQuery(OpGetMany, resource, key, params.IDs, m)
	if err != nil {
		return nil, err
	}
	_, body, err := p.do(ctx, call{
		method:   http.MethodGet,
		resource: resource,
		query:    q,
		meta:     m,
	})
	if err != nil {
		return nil, err
	}

	records, err := toRecords(body)
	if err != nil {
		return nil, err
	}
	pf := newPrefetcher(m.Prefetch, p.opts.PrimaryKeys)
	data := make([]map[string]any, len(records))
	for i, r := range records {
		data[i] = pf.extract(rest.WithVirtualID(r, key))
	}
	return &RecordsResult{Data: data, Meta: pf.meta()}, nil
}

// Create inserts params.Data and returns the stored record.
func (p *Provider) Create(ctx context.Context, resource string, params CreateParams) (_ *RecordResult, err error) {
	defer observe(OpCreate, resource, time.Now(), &err)

	m, err := DecodeMeta(params.Meta)
	if err != nil {
		return nil, err
	}
	key := p.PrimaryKey(resource)

	q, err := p.keyQuery(OpCreate, resource, key, nil, m)
	if err != nil {
		return nil, err
	}
	_, body, err := p.do(ctx, call{
		method:   http.MethodPost,
		resource: resource,
		query:    q,
		meta:     m,
		accept:   rest.MediaTypeObject,
		prefer:   preferRepresentation,
		body:     nonNil(rest.WithoutVirtualID(params.Data, key)),
	})
	if err != nil {
		return nil, err
	}

	record, err := toRecord(body)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = maps.Clone(params.Data)
	}
	if record == nil {
		record = map[string]any{}
	}
	record[rest.VirtualIDField] = rest.EncodeID(record, key)

	pf := newPrefetcher(m.Prefetch, p.opts.PrimaryKeys)
	return &RecordResult{Data: pf.extract(record), Meta: pf.meta()}, nil
}

// Update sends only the fields of params.Data that differ from params.PreviousData.
// Changed key columns are sent too; the row is still selected by params.ID.
// Without changes no request is made and the previous data is returned.
func (p *Provider) Update(ctx context.Context, resource string, params UpdateParams) (_ *RecordResult, err error) {
	defer observe(OpUpdate, resource, time.Now(), &err)

	key := p.PrimaryKey(resource)
	delta := changes(rest.WithoutVirtualID(params.Data, key), rest.WithoutVirtualID(params.PreviousData, key))
	if len(delta) == 0 {
		skipped(OpUpdate)
		return &RecordResult{Data: maps.Clone(params.PreviousData)}, nil
	}

	m, err := DecodeMeta(params.Meta)
	if err != nil {
		return nil, err
	}
	q, err := p.keyQuery(OpUpdate, resource, key, []any{params.ID}, m)
	if err != nil {
		return nil, err
	}
	_, body, err := p.do(ctx, call{
		method:   http.MethodPatch,
		resource: resource,
		query:    q,
		meta:     m,
		accept:   rest.MediaTypeObject,
		prefer:   preferRepresentation,
		body:     delta,
	})
	if err != nil {
		return nil, err
	}
	return p.record(body, key, m)
}

// UpdateMany applies params.Data to every record in params.IDs with one request.
func (p *Provider) UpdateMany(ctx context.Context, resource string, params UpdateManyParams) (_ *IDsResult, err error) {
	defer observe(OpUpdateMany, resource, time.Now(), &err)

	if len(params.IDs) == 0 {
		skipped(OpUpdateMany)
		return &IDsResult{Data: []any{}}, nil
	}

	m, err := DecodeMeta(params.Meta)
	if err != nil {
		return nil, err
	}
	key := p.PrimaryKey(resource)

	q, err := p.keyQuery(OpUpdateMany, resource, key, params.IDs, m)
	if err != nil {
		return nil, err
	}
	_, body, err := p.do(ctx, call{
		method:   http.MethodPatch,
		resource: resource,
		query:    q,
		meta:     m,
		prefer:   preferRepresentation,
		body:     rest.WithoutVirtualID(rest.RemovePrimaryKey(params.Data, key), key),
	})
	if err != nil {
		return nil, err
	}
	return encodeIDs(body, key)
}

// Delete removes the record identified by params.ID and returns it. When the gateway
// returns no body the previous data is returned.
func (p *Provider) Delete(ctx context.Context, resource string, params DeleteParams) (_ *RecordResult, err error) {
	defer observe(OpDelete, resource, time.Now(), &err)

	m, err := DecodeMeta(params.Meta)
	if err != nil {
		return nil, err
	}
	key := p.PrimaryKey(resource)

	q, err := p.keyQuery(OpDelete, resource, key, []any{params.ID}, m)
	if err != nil {
		return nil, err
	}
	_, body, err := p.do(ctx, call{
		method:   http.MethodDelete,
		resource: resource,
		query:    q,
		meta:     m,
		accept:   rest.MediaTypeObject,
		prefer:   preferRepresentation,
	})
	if err != nil {
		return nil, err
	}
	if body == nil {
		if params.PreviousData != nil {
			return &RecordResult{Data: maps.Clone(params.PreviousData)}, nil
		}
		return &RecordResult{Data: keyRecord(key, params.ID)}, nil
	}
	return p.record(body, key, m)
}

// keyRecord rebuilds the key columns of a record from its identifier, keeping the
// component JSON types.
func keyRecord(key rest.PrimaryKey, id any) map[string]any {
	values, err := rest.DecodeValues(id, key)
	if err != nil {
		return map[string]any{}
	}
	record := make(map[string]any, len(key)+1)
	for i, col := range key {
		record[col] = values[i]
	}
	return rest.WithVirtualID(record, key)
}

// DeleteMany removes every record in params.IDs with one request.
func (p *Provider) DeleteMany(ctx context.Context, resource string, params DeleteManyParams) (_ *IDsResult, err error) {
	defer observe(OpDeleteMany, resource, time.Now(), &err)

	if len(params.IDs) == 0 {
		skipped(OpDeleteMany)
		return &IDsResult{Data: []any{}}, nil
	}

	m, err := DecodeMeta(params.Meta)
	if err != nil {
		return nil, err
	}
	key := p.PrimaryKey(resource)

	q, err := p.keyQuery(OpDeleteMany, resource, key, params.IDs, m)
	if err != nil {
		return nil, err
	}
	_, body, err := p.do(ctx, call{
		method:   http.MethodDelete,
		resource: resource,
		query:    q,
		meta:     m,
		prefer:   preferRepresentation,
	})
	if err != nil {
		return nil, err
	}
	return encodeIDs(body, key)
}

func (p *Provider) record(body any, key rest.PrimaryKey, m *Meta) (*RecordResult, error) {
	record, err := toRecord(body)
	if err != nil {
		return nil, err
	}
	pf := newPrefetcher(m.Prefetch, p.opts.PrimaryKeys)
	return &RecordResult{Data: pf.extract(rest.WithVirtualID(record, key)), Meta: pf.meta()}, nil
}

func encodeIDs(body any, key rest.PrimaryKey) (*IDsResult, error) {
	records, err := toRecords(body)
	if err != nil {
		return nil, err
	}
	ids := make([]any, len(records))
	for i, r := range records {
		ids[i] = rest.EncodeID(r, key)
	}
	return &IDsResult{Data: ids}, nil
}

// changes returns the fields of data that are not deeply equal in previous.
func changes(data, previous map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range data {
		if old, ok := previous[k]; ok && reflect.DeepEqual(v, old) {
			continue
		}
		out[k] = v
	}
	return out
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
