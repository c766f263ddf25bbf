package log

import (
	"maps"
	"slices"
)

// Attribute keys shared by every ledger component.
const (
	FieldComponent = "component"
	FieldError     = "error"
	FieldOperation = "operation"
	FieldUserID    = "user_id"
	FieldEntity    = "entity"
	FieldEntityID  = "entity_id"
	FieldMonth     = "month"
	FieldYear      = "year"
	FieldCount     = "count"
)

// Component names, one per process role or package family.
const (
	ComponentApp     = "app"
	ComponentLedger  = "ledger"
	ComponentRates   = "rates"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentBackend = "backend"
)

const (
	OpCreate   = "create"
	OpDelete   = "delete"
	OpExport   = "export"
	OpBackfill = "backfill"
	OpConvert  = "convert"
	OpPublish  = "publish"
)

// LogFields collects attributes for one log call.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithEntity adds the owner, kind and id of a ledger entity.
func (f LogFields) WithEntity(userID int64, kind string, id int64) LogFields {
	f[FieldUserID] = userID
	f[FieldEntity] = kind
	f[FieldEntityID] = id
	return f
}

// WithPeriod adds a reporting month.
func (f LogFields) WithPeriod(userID int64, month, year int) LogFields {
	f[FieldUserID] = userID
	f[FieldMonth] = month
	f[FieldYear] = year
	return f
}

func (f LogFields) With(key string, value any) LogFields {
	f[key] = value
	return f
}

// ToSlice flattens the fields into slog key/value arguments, keys sorted.
func (f LogFields) ToSlice() []any {
	out := make([]any, 0, len(f)*2)
	for _, k := range slices.Sorted(maps.Keys(f)) {
		out = append(out, k, f[k])
	}
	return out
}
