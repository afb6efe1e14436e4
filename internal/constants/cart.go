package constants

// Cart states (tagged variants of the cart FSM).
const (
	CartStateInitial      = "initial"
	CartStateIdle         = "idle"
	CartStateEnteringItem = "enteringItem"
	CartStatePaying       = "paying"
	CartStateCompleted    = "completed"
	CartStateCancelled    = "cancelled"
)

// Discount kinds.
const (
	DiscountKindPercent  = "percent"
	DiscountKindAbsolute = "absolute"
)

// Tax kinds.
const (
	TaxKindExternal = "external"
	TaxKindInternal = "internal"
	TaxKindExempt   = "exempt"
)

// Rounding modes, applied per tenant to every tax-amount and fractional
// subtotal-discount computation.
const (
	RoundingHalfUp = "half_up"
	RoundingFloor  = "floor"
	RoundingCeil   = "ceil"
)
