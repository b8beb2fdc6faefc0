package eventlink

import (
	"fmt"

	"go.uber.org/multierr"
)

// ListenerHandle identifies a registered listener for removal.
type ListenerHandle uint64

// ListenerError is one failed notification.
type ListenerError struct {
	Index int
	Err   error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener #%d: %v", e.Index, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}

type listenerEntry[A any] struct {
	handle   ListenerHandle
	listener Listener[A]
}

// listenerTable is an ordered, fixed-capacity list of listeners. It is not
// synchronized with notification: mutate it only while no dispatcher runs.
type listenerTable[A any] struct {
	entries []listenerEntry[A]
	n       int
	next    ListenerHandle
}

func newListenerTable[A any](capacity int) listenerTable[A] {
	return listenerTable[A]{entries: make([]listenerEntry[A], capacity)}
}

func (t *listenerTable[A]) add(l Listener[A]) (ListenerHandle, error) {
	if t.n >= len(t.entries) {
		return 0, fmt.Errorf("%w (max=%d)", ErrListenerTableFull, len(t.entries))
	}
	t.next++
	t.entries[t.n] = listenerEntry[A]{handle: t.next, listener: l}
	t.n++
	return t.next, nil
}

func (t *listenerTable[A]) find(h ListenerHandle) int {
	for i := 0; i < t.n; i++ {
		if t.entries[i].handle == h {
			return i
		}
	}
	return -1
}

func (t *listenerTable[A]) remove(h ListenerHandle) bool {
	pos := t.find(h)
	if pos < 0 {
		return false
	}
	copy(t.entries[pos:t.n], t.entries[pos+1:t.n])
	t.n--
	t.entries[t.n] = listenerEntry[A]{}
	return true
}

func (t *listenerTable[A]) len() int {
	return t.n
}

// notify calls every listener in registration order. A failing or panicking
// listener never stops the iteration; all failures are returned combined.
func (t *listenerTable[A]) notify(arg *A) (err error) {
	for i := 0; i < t.n; i++ {
		if lerr := notifyOne(t.entries[i].listener, arg); lerr != nil {
			err = multierr.Append(err, &ListenerError{Index: i, Err: lerr})
		}
	}
	return err
}

func notifyOne[A any](l Listener[A], arg *A) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return l.Notify(arg)
}
