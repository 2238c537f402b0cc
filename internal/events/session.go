package events

import (
	"github.com/kamkard/gltfview/internal/classify"
	"github.com/kamkard/gltfview/internal/metrics"
	"github.com/kamkard/gltfview/internal/session"
)

// SessionObserver publishes every session transition as a state event. The
// loading indicator is shown while the state is "loading". A loading event
// carries the attempt's object URL once it is allocated; the URL is revoked
// when the attempt settles, so later events omit it.
func SessionObserver(b *Broadcaster) session.Observer {
	return func(snap session.Snapshot) {
		metrics.SetSessionState(string(snap.State))
		e := Event{Type: EventState, Seq: snap.Seq, State: string(snap.State)}
		if snap.State == session.Loading {
			e.ActiveURL = snap.ActiveURL
		}
		if snap.Err != nil {
			e.Kind = string(snap.Err.Kind)
			e.Message = snap.Err.Message
		}
		if snap.Scene != nil {
			e.Data = snap.Scene
		}
		b.Publish(e)
	}
}

// Alerter publishes classified load errors as alert events.
type Alerter struct {
	B *Broadcaster
}

// Alert implements controller.Notifier.
func (a Alerter) Alert(seq uint64, err *classify.Error) {
	a.B.Publish(Event{
		Type:    EventAlert,
		Seq:     seq,
		Kind:    string(err.Kind),
		Message: err.Message,
	})
}
