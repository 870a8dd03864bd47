package notify

import (
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/dshills/herald/internal/notification"
	"github.com/dshills/herald/internal/notify/wildcard"
)

// Notifier delivers one notification to one listener. The manager supplies
// an inline notifier or one that schedules delivery on a pool.
type Notifier func(l Listener, n notification.Notification) error

// Sender wraps one listener/subscription pair. It filters by resource
// identifier and isolates the producer from listener failures.
type Sender struct {
	pair   Pair
	filter *wildcard.Filter
	index  int
	logger *zap.Logger
}

func newSender(p Pair, index int, logger *zap.Logger) *Sender {
	s := &Sender{pair: p, index: index, logger: logger}
	if !p.IsNullSubscription() {
		s.filter = wildcard.Compile(p.Subscription)
	}
	return s
}

// Pair returns the pair this sender delivers for.
func (s *Sender) Pair() Pair {
	return s.pair
}

// Matches reports whether a notification with the given resource
// identifier passes the subscription filter.
func (s *Sender) Matches(resourceID string) bool {
	if s.filter == nil {
		return true
	}
	return s.filter.Accept(resourceID)
}

// Dispatch delivers n through notify if the subscription matches. Errors
// and panics are logged and never propagate.
func (s *Sender) Dispatch(n notification.Notification, notify Notifier) {
	if !s.Matches(n.ResourceIdentifier()) {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logListenerFailure(s.logger, s.pair.Listener, n,
				&ListenerPanicError{Value: r, Stack: debug.Stack()})
		}
	}()

	if err := notify(s.pair.Listener, n); err != nil {
		logListenerFailure(s.logger, s.pair.Listener, n, err)
	}
}

// logListenerFailure logs at error level. The stack, if any, is only
// written when debug logging is enabled.
func logListenerFailure(logger *zap.Logger, l Listener, n notification.Notification, err error) {
	fields := []zap.Field{
		zap.String("listener", fmt.Sprintf("%T", l)),
		zap.Stringer("type", n.Type()),
		zap.Int("action", int(n.Action())),
		zap.String("notification", n.ID()),
	}
	logger.Error("notification listener failed", append(fields, zap.String("error", err.Error()))...)

	if ce := logger.Check(zap.DebugLevel, "notification listener failure detail"); ce != nil {
		var pe *ListenerPanicError
		if errors.As(err, &pe) {
			fields = append(fields, zap.ByteString("stack", pe.Stack))
		}
		ce.Write(append(fields, zap.Error(err))...)
	}
}
