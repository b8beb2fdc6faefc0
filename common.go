package eventlink

// AnswerlessConsumer consumes fire-and-forget events. Each registered value is
// the context bound to one dispatcher worker, so it is never called
// concurrently with itself.
type AnswerlessConsumer[A any] interface {
	Consume(arg *A) error
}

// AnswerfullConsumer computes a reply for each event and delivers it through
// reply. Failures returned (or panics raised) before the reply is sent are
// handed to the producer waiting for the answer.
type AnswerfullConsumer[A any, R any] interface {
	Consume(arg *A, reply Reply[R]) error
}

// Listener observes events after consumption. Listeners must not modify the argument.
type Listener[A any] interface {
	Notify(arg *A) error
}

// AnswerlessFunc adapts a function to AnswerlessConsumer.
type AnswerlessFunc[A any] func(arg *A) error

func (f AnswerlessFunc[A]) Consume(arg *A) error {
	return f(arg)
}

// AnswerfullFunc adapts a function to AnswerfullConsumer.
type AnswerfullFunc[A any, R any] func(arg *A, reply Reply[R]) error

func (f AnswerfullFunc[A, R]) Consume(arg *A, reply Reply[R]) error {
	return f(arg, reply)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc[A any] func(arg *A) error

func (f ListenerFunc[A]) Notify(arg *A) error {
	return f(arg)
}
