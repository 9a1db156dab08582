// Package event provides a synchronous pub-sub bus for run progress.
//
// Publishers never know who listens. The iteration controller publishes
// run and iteration boundaries and one [RoleInvokedEvent] per role call;
// the execution back ends publish attempts and batch job transitions.
//
//	bus := event.NewBus()
//	bus.Subscribe(event.TypeRoleInvoked, func(e event.Event) {
//	    inv := e.(event.RoleInvokedEvent)
//	    fmt.Println(inv.Role, inv.Operation)
//	})
//	bus.SubscribeAll(recordEverything)
//
// Handlers run synchronously on the publisher's goroutine, type-specific
// handlers before wildcard handlers. A panicking handler is recovered and
// logged so it cannot break the pipeline. A nil *Bus accepts and drops
// every event.
package event
