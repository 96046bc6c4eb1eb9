package pipeline

// State is the pipeline controller's state machine (spec §3 "Pipeline
// state", transitions per spec §4.5).
type State int

const (
	// Idle means no pipe is selected.
	Idle State = iota
	// Loading means the network's weights are loading in the background.
	Loading
	// Ready means all three stages are constructed and the network has
	// finished loading.
	Ready
	// RunningSync is set for the duration of one synchronous process() call.
	RunningSync
	// RunningAsyncInflight is set for the duration of one asynchronous
	// process() call; the call ends in Ready even while the inference it
	// launched is still in flight.
	RunningAsyncInflight
	// Error means the last process() call (or reconfiguration) failed; the
	// pipeline will not process further frames until reconfigured.
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Loading:
		return "Loading"
	case Ready:
		return "Ready"
	case RunningSync:
		return "RunningSync"
	case RunningAsyncInflight:
		return "RunningAsyncInflight"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}
