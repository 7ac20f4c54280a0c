package broadcast

import (
	gerr "memoryd/internal/errors"
	"memoryd/internal/metrics"
	"memoryd/util"
)

// NoExclude is passed to [Broadcaster.Send] to reach every recipient.
const NoExclude = -1

// Target is anything that accepts frames for one player.  *Peer is the
// production implementation.
type Target interface {
	Enqueue(Frame) error
	Close() error
}

// Recipient pairs a roster slot with its outbound path.
type Recipient struct {
	ID     int
	Target Target
}

// Broadcaster fans frames out to a set of recipients.  It holds no
// state of its own; the caller decides who is active.
type Broadcaster struct {
	log     *util.Logger
	metrics *metrics.Collector
}

// New creates a Broadcaster.  Both arguments may be nil.
func New(logger *util.Logger, m *metrics.Collector) *Broadcaster {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	return &Broadcaster{log: logger, metrics: m}
}

// SendTo enqueues f for a single recipient.  On failure the target is
// closed and the returned error matches [gerr.ErrPeerUnreachable].
func (b *Broadcaster) SendTo(r Recipient, f Frame) error {
	if r.Target == nil {
		return gerr.Unreachable(r.ID, gerr.ErrNotConnected)
	}
	if err := r.Target.Enqueue(f); err != nil {
		r.Target.Close() //nolint:errcheck
		b.metrics.PeerDropped()
		b.log.Warn("dropping slot %d: %v", r.ID, err)
		return gerr.Unreachable(r.ID, err)
	}
	return nil
}

// Send enqueues f for every recipient except exclude and returns the
// slots that could not be reached.  A failure never stops the fan-out.
func (b *Broadcaster) Send(recipients []Recipient, f Frame, exclude int) []int {
	var dropped []int
	for _, r := range recipients {
		if r.ID == exclude {
			continue
		}
		if err := b.SendTo(r, f); err != nil {
			dropped = append(dropped, r.ID)
		}
	}
	return dropped
}
