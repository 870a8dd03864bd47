// Package notify implements the notification bus.
//
// Producers fire notifications through a Manager. The Manager routes each
// notification to the listeners registered for its type, filtered by an
// optional resource identifier subscription.
//
// # Routing
//
// Listener interfaces are bound to notification types in a Configuration.
// A listener receives notifications of every type bound to an interface it
// implements, and of every type derived from those. Disabling an interface
// or type removes it and all its descendants from routing.
//
// The Configuration is compiled into an immutable Policy on demand. The
// Policy is rebuilt only after a mutation, so firing against an unchanged
// configuration never takes a write lock.
//
// # Delivery
//
// Notifications implementing notification.Blocking are delivered on the
// firing goroutine. Others are delivered on one of three pools chosen by
// each listener's affinity:
//
//	pool.Lite      short non-blocking callbacks (default)
//	pool.Blocking  callbacks that perform I/O
//	pool.Compute   CPU-heavy callbacks
//
// Listener errors and panics are logged and never reach the producer.
//
// # Basic Usage
//
//	reg := notification.NewRegistry()
//	_ = notification.RegisterBuiltins(reg)
//
//	m, _ := notify.NewManager(reg,
//	    notify.WithLogger(logger),
//	    notify.WithSchedulerService(pool.NewService()),
//	)
//	_ = m.Start()
//	defer m.Dispose()
//
//	l := notify.ListenerFunc(func(n notification.Notification) error {
//	    log.Println(n.Type(), n.Action())
//	    return nil
//	}, notification.TransactionListener)
//	_ = m.AddListenerSubscription(l, "order.*")
//
//	m.FireNotification(notification.NewTransactionNotification(
//	    notification.TransactionCommitted, "tx-1", "order.42"))
//
// Producers that fire one type repeatedly should go through a Helper, which
// caches the enablement check per owner.
package notify
