package action

import "context"

// Action types for entity record CRUD.
const (
	TypeCreateRecord = "CREATE_RECORD"
	TypeUpdateRecord = "UPDATE_RECORD"
	TypeDeleteRecord = "DELETE_RECORD"
	TypeQueryRecords = "QUERY_RECORDS"
)

// Record is an entity row as stored by the host application.
type Record map[string]any

// RecordStore is the persistence collaborator behind the record actions.
type RecordStore interface {
	Create(ctx context.Context, entityType string, data map[string]any) (Record, error)
	Update(ctx context.Context, entityType, recordID string, data map[string]any) (Record, error)
	Delete(ctx context.Context, entityType, recordID string) error
	Query(ctx context.Context, entityType string, filter map[string]any, limit int) ([]Record, error)
}

// CreateRecord is the CREATE_RECORD handler.
type CreateRecord struct {
	Store RecordStore
}

func NewCreateRecord(s RecordStore) *CreateRecord { return &CreateRecord{Store: s} }

func (h *CreateRecord) Type() string { return TypeCreateRecord }

func (h *CreateRecord) Spec() Spec {
	return Spec{Fields: []Field{
		{Name: "entityType", Type: FieldString, Required: true},
		{Name: "data", Type: FieldObject, Required: true},
	}}
}

func (h *CreateRecord) Execute(ctx context.Context, in Input) (map[string]any, error) {
	rec, err := h.Store.Create(ctx, in.String("entityType"), in.Map("data"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"record": map[string]any(rec)}, nil
}

// UpdateRecord is the UPDATE_RECORD handler.
type UpdateRecord struct {
	Store RecordStore
}

func NewUpdateRecord(s RecordStore) *UpdateRecord { return &UpdateRecord{Store: s} }

func (h *UpdateRecord) Type() string { return TypeUpdateRecord }

func (h *UpdateRecord) Spec() Spec {
	return Spec{Fields: []Field{
		{Name: "entityType", Type: FieldString, Required: true},
		{Name: "recordId", Type: FieldString, Required: true},
		{Name: "data", Type: FieldObject, Required: true},
	}}
}

func (h *UpdateRecord) Execute(ctx context.Context, in Input) (map[string]any, error) {
	rec, err := h.Store.Update(ctx, in.String("entityType"), in.String("recordId"), in.Map("data"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"record": map[string]any(rec)}, nil
}

// DeleteRecord is the DELETE_RECORD handler.
type DeleteRecord struct {
	Store RecordStore
}

func NewDeleteRecord(s RecordStore) *DeleteRecord { return &DeleteRecord{Store: s} }

func (h *DeleteRecord) Type() string { return TypeDeleteRecord }

func (h *DeleteRecord) Spec() Spec {
	return Spec{Fields: []Field{
		{Name: "entityType", Type: FieldString, Required: true},
		{Name: "recordId", Type: FieldString, Required: true},
	}}
}

func (h *DeleteRecord) Execute(ctx context.Context, in Input) (map[string]any, error) {
	recordID := in.String("recordId")
	if err := h.Store.Delete(ctx, in.String("entityType"), recordID); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": true, "recordId": recordID}, nil
}

// QueryRecords is the QUERY_RECORDS handler.
type QueryRecords struct {
	Store RecordStore
}

func NewQueryRecords(s RecordStore) *QueryRecords { return &QueryRecords{Store: s} }

func (h *QueryRecords) Type() string { return TypeQueryRecords }

func (h *QueryRecords) Spec() Spec {
	min, max := 1.0, 1000.0
	return Spec{Fields: []Field{
		{Name: "entityType", Type: FieldString, Required: true},
		{Name: "filter", Type: FieldObject},
		{Name: "limit", Type: FieldNumber, Min: &min, Max: &max},
	}}
}

func (h *QueryRecords) Execute(ctx context.Context, in Input) (map[string]any, error) {
	limit := 100
	if n, ok := asFloat(in.Params["limit"]); ok {
		limit = int(n)
	}
	records, err := h.Store.Query(ctx, in.String("entityType"), in.Map("filter"), limit)
	if err != nil {
		return nil, err
	}
	rows := make([]any, len(records))
	for i, r := range records {
		rows[i] = map[string]any(r)
	}
	return map[string]any{"records": rows, "count": len(rows)}, nil
}
