package mem

import (
	"context"
	"log/slog"

	"bsid.es/despertador"
)

// EventLogger writes every event of a source to a structured log.
type EventLogger struct {
	source despertador.EventSource
	logger *slog.Logger

	sub    despertador.Subscription
	cancel context.CancelFunc
}

func NewEventLogger(source despertador.EventSource, logger *slog.Logger) *EventLogger {
	return &EventLogger{
		source: source,
		logger: logger,
	}
}

func (l *EventLogger) Run(ctx context.Context) error {
	l.sub = l.source.Subscribe(ctx)
	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
	return nil
}

func (l *EventLogger) Interrupt() error {
	l.cancel()
	return nil
}

func (l *EventLogger) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.sub.Close()
			return

		case ev, ok := <-l.sub.C():
			if !ok {
				l.sub = l.source.Subscribe(ctx)
				continue
			}
			l.logger.Info("notification event",
				"type", ev.Type.String(),
				"action", string(ev.Action),
				"ticket", ev.TicketID,
				"alarm", ev.Payload.AlarmID,
				"label", ev.Payload.Display.Label,
				"at", ev.At,
			)
		}
	}
}
