package harness

// State labels the orchestrator's position in a run. It is logged and stamped
// onto failure rows so an aborted run shows where it died.
type State string

const (
	StateInit          State = "init"
	StateLoggedIn      State = "logged_in"
	StateNavigated     State = "navigated"
	StateModelSelected State = "model_selected"
	StateAsked         State = "asked"
	StateRecorded      State = "recorded"
	StateDone          State = "done"
	StateAborted       State = "aborted"
)
