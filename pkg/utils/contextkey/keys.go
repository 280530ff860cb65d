package contextkey

// key is a private type to avoid context key collisions across packages.
type key string

const (
	TraceID   key = "trace_id"
	RequestID key = "request_id"
	SessionID key = "session_id"
	ViewID    key = "view_id"
	RunID     key = "run_id"
)

// All lists every key the logger copies into structured fields, in output order.
var All = []key{TraceID, RequestID, SessionID, ViewID, RunID}

// String returns the field name used for the key.
func (k key) String() string {
	return string(k)
}
