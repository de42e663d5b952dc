package trigger

import "time"

// PresentationKind is the opaque state an external renderer draws for a
// native request.
type PresentationKind int

const (
	CountingDown PresentationKind = iota
	Alerting
	Paused
)

func (k PresentationKind) String() string {
	switch k {
	case CountingDown:
		return "counting-down"
	case Alerting:
		return "alerting"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Presentation is a read-only snapshot. FireAt is set while counting down;
// Elapsed and Total while paused.
type Presentation struct {
	Kind    PresentationKind
	FireAt  time.Time
	Elapsed time.Duration
	Total   time.Duration
}

func (p Presentation) String() string {
	switch p.Kind {
	case CountingDown:
		return "counting-down(" + p.FireAt.Format(time.RFC3339) + ")"
	case Paused:
		return "paused(" + p.Elapsed.Round(time.Second).String() + "/" + p.Total.Round(time.Second).String() + ")"
	default:
		return p.Kind.String()
	}
}
