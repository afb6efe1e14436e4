package constants

// Transaction-type codes (§6.3). A negative code tombstones the positive
// code it mirrors (a cancelled normal sale is -101, never a new constant).
const (
	TxnTypeNormalSale    = 101
	TxnTypeCancelledSale = -101
	TxnTypeReturnSale    = 102
	TxnTypeVoidSale      = 201
	TxnTypeVoidReturn    = 202
	TxnTypeTerminalOpen  = 301
	TxnTypeTerminalClose = 302
	TxnTypeCashIn        = 401
	TxnTypeCashOut       = 402
	TxnTypeFlashReport   = 701
	TxnTypeDailyReport   = 702
)

// ReportFactor returns the signed weight a transaction-type code
// contributes to an aggregated report total (§4.6). Cancelled sales are
// excluded entirely (factor 0, and callers should skip them rather than
// rely on the zero to cancel out rounding).
func ReportFactor(txnType int) int {
	switch txnType {
	case TxnTypeNormalSale:
		return 1
	case TxnTypeReturnSale:
		return -1
	case TxnTypeVoidSale:
		return -1
	case TxnTypeVoidReturn:
		return 1
	case TxnTypeCancelledSale:
		return 0
	default:
		return 0
	}
}
