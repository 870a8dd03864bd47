package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dshills/herald/internal/config"
	"github.com/dshills/herald/internal/logging"
	"github.com/dshills/herald/internal/notification"
	"github.com/dshills/herald/internal/notify"
	"github.com/dshills/herald/internal/notify/pool"
)

const runtimeName = "herald"

type runOptions struct {
	*options
	scripts  []string
	count    int
	resource string
	watch    bool
	output   string
}

func newRunCmd(opts *options) *cobra.Command {
	ro := &runOptions{options: opts}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bus with the configured listener scripts",
		Long: `Start a notification manager, register the configured Lua listener
scripts and fire the runtime lifecycle plus --count transaction
notifications through it.

With --watch the bus keeps running until interrupted, reapplying the
configuration file whenever it changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return ro.run(ctx)
		},
	}
	cmd.Flags().StringArrayVarP(&ro.scripts, "script", "s", nil, "additional Lua listener script (repeatable)")
	cmd.Flags().IntVarP(&ro.count, "count", "n", 1, "number of transaction notifications to fire")
	cmd.Flags().StringVar(&ro.resource, "resource", "order", "resource identifier prefix of fired transactions")
	cmd.Flags().BoolVarP(&ro.watch, "watch", "w", false, "keep running and reload the configuration on change")
	cmd.Flags().StringVarP(&ro.output, "output", "o", outputText, "summary format (text or json)")
	return cmd
}

func (o *runOptions) run(ctx context.Context) (err error) {
	if o.watch && o.configPath == "" {
		return fmt.Errorf("--watch requires --config")
	}
	if err := validOutput(o.output); err != nil {
		return err
	}
	bus, err := o.loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(bus.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg, err := newBuiltinRegistry()
	if err != nil {
		return err
	}

	svc := pool.NewService(append(bus.ServiceOptions(), pool.WithLogger(logger))...)
	mopts := append(bus.ManagerOptions(),
		notify.WithLogger(logger),
		notify.WithSchedulerService(svc),
	)
	m, err := notify.NewManager(reg, mopts...)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, m.Dispose())
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Duration(bus.ShutdownTimeout))
		defer cancel()
		err = multierr.Append(err, svc.StopAll(stopCtx))
	}()

	if err := m.Reconfigure(bus.Apply); err != nil {
		return err
	}

	listeners, err := o.loadScripts(bus, reg, logger)
	defer func() {
		for _, l := range listeners {
			l.Close()
		}
	}()
	if err != nil {
		return err
	}
	for _, p := range listeners.pairs() {
		if err := m.AddListenerSubscriptionPair(p); err != nil {
			return err
		}
	}

	helper := notify.NewHelper(m, notification.TransactionType, bus.Notifications.Dynamic)

	m.FireNotification(notification.NewContextNotification(notification.ContextStarting, runtimeName))
	if err := m.Start(); err != nil {
		return err
	}
	m.FireNotification(notification.NewContextNotification(notification.ContextStarted, runtimeName))

	for i := 1; i <= o.count; i++ {
		rid := fmt.Sprintf("%s.%d", o.resource, i)
		helper.FireNotificationFor(m, notification.NewTransactionNotification(notification.TransactionBegan, fmt.Sprintf("tx-%d", i), rid))
		helper.FireNotificationFor(m, notification.NewTransactionNotification(notification.TransactionCommitted, fmt.Sprintf("tx-%d", i), rid))
	}

	if o.watch {
		if err := o.watchConfig(ctx, m, helper, logger); err != nil {
			return err
		}
	}

	m.FireNotification(notification.NewContextNotification(notification.ContextStopping, runtimeName))
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Duration(bus.ShutdownTimeout))
	defer cancel()
	if err := m.Stop(stopCtx); err != nil {
		logger.Warn("manager stop", zap.Error(err))
	}
	m.FireNotification(notification.NewContextNotification(notification.ContextStopped, runtimeName))

	return printStats(o.out, o.output, m.Stats())
}

// watchConfig reapplies the configuration file on change until ctx ends.
func (o *runOptions) watchConfig(ctx context.Context, m *notify.Manager, helper *notify.Helper, logger *zap.Logger) error {
	w, err := config.NewWatcher(o.configPath, func(b *config.Bus, err error) {
		if err != nil {
			return
		}
		if err := m.Reconfigure(b.Reapply); err != nil {
			logger.Warn("configuration not applied", zap.Error(err))
			return
		}
		helper.Forget(m)
	}, config.WithWatcherLogger(logger))
	if err != nil {
		return err
	}
	defer w.Close()

	logger.Info("watching configuration", zap.String("path", w.Path()))
	<-ctx.Done()
	return nil
}
