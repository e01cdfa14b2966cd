package mkimg

// EventKind identifies what an Event reports.
type EventKind int

const (
	// EventScanned is reported for every entry visited by Scan, including
	// the scan root itself.
	EventScanned EventKind = iota

	// EventWritten is reported once a file has been written into the volume.
	EventWritten

	// EventDeceived is reported once the header fields have been planned.
	EventDeceived

	// EventShrunk is reported after the image has been truncated.
	EventShrunk
)

func (k EventKind) String() string {
	switch k {
	case EventScanned:
		return "scanned"
	case EventWritten:
		return "written"
	case EventDeceived:
		return "deceived"
	case EventShrunk:
		return "shrunk"
	}
	return "unknown"
}

// Event is a progress notification. External and Internal are empty for the
// deception events, which carry Deception instead.
type Event struct {
	Kind     EventKind
	External string
	Internal string
	Size     int64

	Deception *Deception
}

// Reporter receives progress events. The package itself never prints.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(ev Event) { f(ev) }

func report(r Reporter, ev Event) {
	if r == nil {
		return
	}
	r.Report(ev)
}
