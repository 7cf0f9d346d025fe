package querymgr

import (
	"github.com/hannahhoward/go-pubsub"
	"golang.org/x/xerrors"
)

type resultListeners struct {
	ps *pubsub.PubSub
}

type resultEvt struct {
	userIndex uint64
	state     State
	result    []byte
	err       error
}

type subscriberFn func(resultEvt)

func newResultListeners() resultListeners {
	ps := pubsub.New(func(event pubsub.Event, subFn pubsub.SubscriberFn) error {
		evt, ok := event.(resultEvt)
		if !ok {
			return xerrors.Errorf("wrong type of event")
		}
		sub, ok := subFn.(subscriberFn)
		if !ok {
			return xerrors.Errorf("wrong type of subscriber")
		}
		sub(evt)
		return nil
	})
	return resultListeners{ps: ps}
}

// onResult registers a callback for when polling of the given user index
// ends. The callback must not unsubscribe from within.
func (rl *resultListeners) onResult(userIndex uint64, cb func(resultEvt)) pubsub.Unsubscribe {
	var fn subscriberFn = func(evt resultEvt) {
		if evt.userIndex == userIndex {
			cb(evt)
		}
	}
	return rl.ps.Subscribe(fn)
}

// fireResult is called when a poll loop ends
func (rl *resultListeners) fireResult(evt resultEvt) {
	e := rl.ps.Publish(evt)
	if e != nil {
		log.Errorf("unexpected error publishing query result: %s", e)
	}
}
