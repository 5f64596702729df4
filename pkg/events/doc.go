/*
Package events fans out sync, mirror, power and live-metrics notifications
to in-process subscribers.

A slow subscriber only hurts itself: each one has a 50 event buffer and a
delivery that does not fit is skipped and counted in Dropped.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.SubscribePrefix("live.")
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		fmt.Println(ev.Type, ev.Metadata["server_id"])
	}

The API forwards events to websocket clients on /ws/events; its ?type query
parameter maps onto SubscribePrefix.
*/
package events
