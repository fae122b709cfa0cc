package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldUserID     = "user_id"
	FieldTxnID      = "txn_id"
	FieldAmount     = "amount"
	FieldType       = "type"
	FieldCategory   = "category"
	FieldAccount    = "account"
	FieldPeriod     = "period"
	FieldFromPeriod = "from_period"
	FieldToPeriod   = "to_period"
	FieldCommand    = "command"
	FieldCallback   = "callback"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldEventKind  = "event_kind"
	FieldChannelID  = "channel_id"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentStorage   = "storage"
	ComponentLedger    = "ledger"
	ComponentDialogue  = "dialogue"
	ComponentRouter    = "router"
	ComponentDiscord   = "discord"
	ComponentAMQP      = "amqp"
	ComponentHealth    = "health"
	ComponentScheduler = "scheduler"
)

// Operations defines standard operation names
const (
	OpRecord   = "record"
	OpDelete   = "delete"
	OpCarry    = "carry_forward"
	OpRollover = "rollover"
	OpSweep    = "sweep"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
