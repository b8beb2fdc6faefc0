// Package eventlink provides an in-process, bounded, multi-producer
// multi-consumer event channel with zero-copy hand-off.
//
// A Channel owns a power-of-two ring of argument slots. Producers reserve a
// slot, fill the argument in place and commit it; a Dispatcher's workers claim
// committed slots in order, hand the argument to the registered consumer and
// to every listener, and release the slot. The ring never allocates after
// construction.
//
// The main components include:
//
//   - Channel: the ring with its reserve/commit/dispatch/release protocol, blocking producers while full and consumers while empty
//   - Reply: the handle an answerfull consumer uses to write its answer into producer-owned storage
//   - Dispatcher: a fixed pool of workers running one of five loops selected by Capabilities
//   - Group: an ordered set of components stopped together, with an fx lifecycle hook
//   - Pump: forwards values from a Go channel into a Channel
//   - Collector: exports channel snapshots as Prometheus metrics
//
// Events are either answerless (fire and forget) or answerfull: the producer
// passes a reply target to ReserveForReport and blocks in WaitForAnswer until
// the consumer answers or fails. Consumer failures are never retried; they are
// logged with the serialized argument and, for answerfull events, returned to
// the producer.
//
// A typical setup:
//
//	ch, _ := eventlink.NewChannel[Order, Receipt]("orders")
//	ch.SetAnswerfullConsumer(consumers...)
//	d, _ := eventlink.NewDispatcher(ch, len(consumers), eventlink.Capabilities{ConsumeAnswerfull: true})
//	receipt, err := ch.ReportAndWait(order)
//	d.StopWhenEmpty()
package eventlink
