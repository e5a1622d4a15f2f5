package log

const (
	// Request
	FieldMethod   = "method"
	FieldPath     = "path"
	FieldStatus   = "status"
	FieldClientIP = "client_ip"

	// Room coordination
	FieldRoomCode = "room_code"
	FieldUsername = "username"
	FieldSession  = "session_handle"
	FieldEvent    = "event"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
