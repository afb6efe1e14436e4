package constants

// Terminal session states (§4.7).
const (
	TerminalStateIdle   = "idle"
	TerminalStateOpened = "opened"
	TerminalStateClosed = "closed"
)
