package models

// LogEntry is the unified shape for structured log records emitted by every
// service, designed to be parsed and indexed by the log collector downstream.
type LogEntry struct {
	// ServiceName is the name of the service or component that produced the entry.
	ServiceName string `json:"service_name"`

	// TraceID ties together log lines belonging to a single request.
	TraceID string `json:"trace_id,omitempty"`

	// UserID identifies the user the event relates to, when there is one.
	UserID string `json:"user_id,omitempty"`

	// RequestInfo carries details of the HTTP request that triggered the entry.
	RequestInfo *RequestInfo `json:"request_info,omitempty"`

	// Error carries structured error details, filled at Error level and above.
	Error *ErrorInfo `json:"error,omitempty"`

	// Payload holds any other structured business data worth recording.
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// RequestInfo stores context about an HTTP request.
type RequestInfo struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	RemoteAddr string `json:"remote_addr"`
	UserAgent  string `json:"user_agent"`
}

// ErrorInfo stores structured information about an error.
type ErrorInfo struct {
	Message    string `json:"message"`
	Stack      string `json:"stack,omitempty"`
	Type       string `json:"type,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}
