package gateway

import "github.com/c360/semchat/chat"

// Notifier coalesces session change signals. Create it before the session
// and pass ChangeHandler to chat.WithChangeHandler, then give it to the
// Server with WithNotifier.
type Notifier struct {
	ch chan struct{}
}

// NewNotifier returns a Notifier with room for one pending signal.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Notify records that the list changed. It never blocks.
func (n *Notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// ChangeHandler adapts Notify to chat.WithChangeHandler.
func (n *Notifier) ChangeHandler() func([]chat.Message) {
	return func([]chat.Message) { n.Notify() }
}

// C delivers pending signals.
func (n *Notifier) C() <-chan struct{} {
	return n.ch
}
