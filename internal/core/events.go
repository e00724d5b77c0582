package core

// Event is one bridged engine event as seen by observers of a run.
type Event struct {
	RunID     string `json:"run_id"`
	Level     string `json:"level"`
	EventType string `json:"event_type"`
	Package   string `json:"package,omitempty"`
	Test      string `json:"test,omitempty"`
	// Mocha lists the mocha events the engine event was translated into.
	Mocha   []string    `json:"mocha,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventLogger receives every bridged event. Errors are reported but never
// stop the run.
type EventLogger interface {
	Emit(event Event) error
}
