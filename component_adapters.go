package eventlink

import "github.com/prometheus/client_golang/prometheus"

// Compile-time checks that the runtime types fit the interfaces they are
// composed through.
var (
	_ Component            = (*Group)(nil)
	_ Component            = (*Dispatcher[int, int])(nil)
	_ Component            = (*Pump[int, int])(nil)
	_ StatsSource          = (*Channel[int, int])(nil)
	_ prometheus.Collector = (*Collector)(nil)

	_ AnswerlessConsumer[int]      = AnswerlessFunc[int](nil)
	_ AnswerfullConsumer[int, int] = AnswerfullFunc[int, int](nil)
	_ Listener[int]                = ListenerFunc[int](nil)
)
