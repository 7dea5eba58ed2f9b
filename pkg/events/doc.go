/*
Package events provides the in-process lifecycle event broker for gpubox.

Every successful lifecycle operation, every compensated or half-completed
operation, and every orphan sweep that finds mismatches publishes an Event.
Events carry a ULID so that log lines and subscribers can be correlated and
sorted by time.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		logger := log.WithComponent("audit")
		for ev := range sub {
			logger.Info().Str("event", string(ev.Type)).Msg("Lifecycle event")
		}
	}()

Publish never blocks the caller. Events are queued (100 deep) and fanned out
to subscribers (50 deep each); when either buffer is full the event is dropped
for that hop. The broker is an audit trail, not a delivery guarantee.
*/
package events
