package scanner

import (
	"time"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/tmdb"
)

// Kind classifies the terminal result of one probe.
type Kind int

const (
	Found Kind = iota
	NotFound
	TransportError
)

func (k Kind) String() string {
	switch k {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case TransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Outcome is the result of probing one task. Payload is set only for Found,
// Status only for Found and NotFound, Err only for TransportError.
type Outcome struct {
	Task     tmdb.Task
	Kind     Kind
	Status   int
	Payload  []byte
	Err      error
	Duration time.Duration
}

// Classify maps a probe result onto an Outcome. Only 200 counts as found;
// every other status is an ordinary miss.
func Classify(task tmdb.Task, status int, body []byte, err error, d time.Duration) Outcome {
	switch {
	case err != nil:
		return Outcome{Task: task, Kind: TransportError, Err: err, Duration: d}
	case status == 200:
		return Outcome{Task: task, Kind: Found, Status: status, Payload: body, Duration: d}
	default:
		return Outcome{Task: task, Kind: NotFound, Status: status, Duration: d}
	}
}
