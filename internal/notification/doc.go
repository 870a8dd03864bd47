// Package notification defines the notification values carried by the
// Herald dispatch bus.
//
// A notification is an immutable value with an action code, an optional
// source, an optional resource identifier and a timestamp. Every
// notification belongs to exactly one concrete Type. Types form a closed
// hierarchy: each type enumerates its own parents, so "is-a" checks are a
// walk over declared tags rather than reflection.
//
// # Types and Interfaces
//
// Listener capabilities are expressed with Interface tags. An interface is
// bound to one or more types; a listener that declares an interface can
// receive every notification whose type is-a one of the bound types.
//
//	                 Server
//	   ┌──────┬──────┼──────────┬──────────────┐
//	Context Security Connection Enriched  ConnectorMessage ...
//	                             │
//	           ┌─────────┬───────┴────────┬──────────────┐
//	       Exception MessageProcessor ErrorHandler PipelineMessage
//
// # Action Codes
//
// Action codes are small integers scoped to disjoint ranges per family.
// Names are recorded in a Registry that is created and populated
// explicitly at process start:
//
//	reg := notification.NewRegistry()
//	if err := notification.RegisterBuiltins(reg); err != nil {
//	    return err
//	}
//	name := reg.ActionName(notification.ContextStarted) // "context started"
//
// # Blocking Notifications
//
// Notifications implementing Blocking are delivered on the caller's
// goroutine; every other notification is delivered on a worker pool.
package notification
