// Package notify carries ongoing-operation signals from the stores to the
// embedding UI layer. The core never presents errors itself: every
// user-visible outcome is funneled through a single event stream.
package notify

import (
	"fmt"

	"github.com/aegisdns/syncd/internal/stream"
)

type State int

const (
	// Started marks an operation as in progress (spinner on).
	Started State = iota
	// Succeeded marks completion.
	Succeeded
	// Failed marks completion with an error. Major failures should block
	// the user (alert); minor ones are background-recoverable.
	Failed
)

func (s State) String() string {
	switch s {
	case Started:
		return "started"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event describes one transition of a named operation.
type Event struct {
	Op    string
	State State
	Err   error
	Major bool
}

// Notifier publishes operation events. Safe for concurrent use.
type Notifier struct {
	src *stream.Source[Event]
}

func NewNotifier() *Notifier {
	return &Notifier{src: stream.NewSource[Event]()}
}

// Begin signals that op is now in progress.
func (n *Notifier) Begin(op string) {
	n.src.Publish(Event{Op: op, State: Started})
}

// Succeed signals that op completed.
func (n *Notifier) Succeed(op string) {
	n.src.Publish(Event{Op: op, State: Succeeded})
}

// Fail signals that op completed with err. major distinguishes user-blocking
// failures from background ones.
func (n *Notifier) Fail(op string, err error, major bool) {
	n.src.Publish(Event{Op: op, State: Failed, Err: err, Major: major})
}

// Events subscribes to the operation stream. The cancel function releases
// the subscription.
func (n *Notifier) Events() (<-chan Event, func()) {
	return n.src.Subscribe()
}
