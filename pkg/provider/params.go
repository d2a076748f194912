package provider

// Operation names one of the nine data provider operations.
type Operation string

const (
	OpGetList          Operation = "getList"
	OpGetOne           Operation = "getOne"
	OpGetMany          Operation = "getMany"
	OpGetManyReference Operation = "getManyReference"
	OpCreate           Operation = "create"
	OpUpdate           Operation = "update"
	OpUpdateMany       Operation = "updateMany"
	OpDelete           Operation = "delete"
	OpDeleteMany       Operation = "deleteMany"
)

// Operations lists every operation in a stable order.
var Operations = []Operation{
	OpGetList, OpGetOne, OpGetMany, OpGetManyReference,
	OpCreate, OpUpdate, OpUpdateMany, OpDelete, OpDeleteMany,
}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	for _, o := range Operations {
		if o == op {
			return true
		}
	}
	return false
}

type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"perPage"`
}

type Sort struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

type GetListParams struct {
	Pagination *Pagination    `json:"pagination,omitempty"`
	Sort       *Sort          `json:"sort,omitempty"`
	Filter     map[string]any `json:"filter,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

type GetOneParams struct {
	ID   any            `json:"id"`
	Meta map[string]any `json:"meta,omitempty"`
}

type GetManyParams struct {
	IDs  []any          `json:"ids"`
	Meta map[string]any `json:"meta,omitempty"`
}

type GetManyReferenceParams struct {
	ID         any            `json:"id"`
	Pagination *Pagination    `json:"pagination,omitempty"`
	Sort       *Sort          `json:"sort,omitempty"`
	Filter     map[string]any `json:"filter,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	Target     string         `json:"target"`
}

type CreateParams struct {
	Data map[string]any `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

type UpdateParams struct {
	ID           any            `json:"id"`
	Data         map[string]any `json:"data"`
	PreviousData map[string]any `json:"previousData,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
}

type UpdateManyParams struct {
	IDs  []any          `json:"ids"`
	Data map[string]any `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

type DeleteParams struct {
	ID           any            `json:"id"`
	PreviousData map[string]any `json:"previousData,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
}

type DeleteManyParams struct {
	IDs  []any          `json:"ids"`
	Meta map[string]any `json:"meta,omitempty"`
}

// ResultMeta carries prefetched sub-resources, keyed by sub-resource name.
type ResultMeta struct {
	Prefetched map[string][]map[string]any `json:"prefetched"`
}

type ListResult struct {
	Meta  *ResultMeta      `json:"meta,omitempty"`
	Data  []map[string]any `json:"data"`
	Total int              `json:"total"`
}

type RecordResult struct {
	Meta *ResultMeta    `json:"meta,omitempty"`
	Data map[string]any `json:"data"`
}

type RecordsResult struct {
	Meta *ResultMeta      `json:"meta,omitempty"`
	Data []map[string]any `json:"data"`
}

// IDsResult lists the identifiers of the records affected by a batch write.
type IDsResult struct {
	Data []any `json:"data"`
}
