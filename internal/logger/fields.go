package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldOwnerID is the authenticated user owning the data being touched
	FieldOwnerID = "owner_id"

	// FieldSourceID is the ingested source being processed
	FieldSourceID = "source_id"

	// FieldStrategy is the acquisition strategy name
	FieldStrategy = "strategy"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Standard metric fields, attached per entry for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation or HTTP status
	FieldStatus = "status"
)
