package bookexport

// State is a stage of the export state machine.
type State string

const (
	// StateIdle is the state before an export starts.
	StateIdle State = "Idle"

	// StateFetchingSession covers the vendor bootstrap.
	StateFetchingSession State = "FetchingSession"

	// StateFetchingContainer covers META-INF/container.xml and encryption.xml.
	StateFetchingContainer State = "FetchingContainer"

	// StateFetchingManifest covers the root package document.
	StateFetchingManifest State = "FetchingManifest"

	// StateFetchingResources covers every manifest item.
	StateFetchingResources State = "FetchingResources"

	// StateComplete means every required resource was fetched.
	StateComplete State = "Complete"

	// StateFailed means a required fetch failed; the export stopped.
	StateFailed State = "Failed"
)

// String returns the string representation of State.
func (s State) String() string {
	return string(s)
}

// IsFetching reports whether the export is waiting on the network.
func (s State) IsFetching() bool {
	switch s {
	case StateFetchingSession, StateFetchingContainer, StateFetchingManifest, StateFetchingResources:
		return true
	}
	return false
}

// IsFinished reports whether the export reached a terminal state.
func (s State) IsFinished() bool {
	return s == StateComplete || s == StateFailed
}

// StatusUpdate is an immutable snapshot of an export's progress. Sinks receive
// one after every state change, message, and counter change.
type StatusUpdate struct {
	// BookID identifies the export the update belongs to.
	BookID string

	State State

	// Message describes the current step, e.g. "Fetching OEBPS/ch01.xhtml".
	Message string

	// ItemsCount is the number of items scheduled so far.
	ItemsCount int

	// ItemsCountCompleted is the number of items finished, including
	// tolerated failures.
	ItemsCountCompleted int
}

// StatusSink receives status updates. Update is called synchronously from the
// exporting goroutine and should return quickly.
type StatusSink interface {
	Update(StatusUpdate)
}

// StatusFunc adapts a function to StatusSink.
type StatusFunc func(StatusUpdate)

// Update implements StatusSink.
func (f StatusFunc) Update(u StatusUpdate) { f(u) }

type discardSink struct{}

func (discardSink) Update(StatusUpdate) {}
