package constants

// Payment-method codes (§4.3). The payment engine's strategy registry is
// keyed by these.
const (
	PaymentCodeCash     = "01"
	PaymentCodeCashless = "11"
	PaymentCodeOther    = "12"
)

// Event topics (§6.2). Stand-ins for SQS queue names.
const (
	TopicTranLog      = "topic-tranlog"
	TopicCashLog      = "topic-cashlog"
	TopicOpenCloseLog = "topic-opencloselog"
)

// Subscriber names registered against the delivery-status ledger.
const (
	SubscriberJournal = "journal"
	SubscriberReport  = "report"
	SubscriberStock   = "stock"
)
