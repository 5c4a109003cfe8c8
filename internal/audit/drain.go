package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"schoolconsole/internal/queue"
)

// Sink stores decoded audit events.
type Sink interface {
	Insert(ctx context.Context, evt Event) error
}

// LogSink writes events to the log when no journal database is reachable.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Insert(_ context.Context, evt Event) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("audit event",
		zap.String("id", evt.ID),
		zap.String("operator", evt.Operator),
		zap.String("action", string(evt.Action)),
		zap.Int("schedule_id", evt.ScheduleID),
		zap.Ints("student_ids", evt.StudentIDs),
		zap.Time("at", evt.At))
	return nil
}

// Drain consumes q into sink until ctx is done. Undecodable messages are
// skipped; inserts are retried a few times before the event is dropped.
func Drain(ctx context.Context, q queue.Queue, sink Sink, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		evt, err := Decode(msg)
		if err != nil {
			log.Warn("skipping message", zap.String("type", msg.Type), zap.Error(err))
			continue
		}
		if err := persist(ctx, sink, evt); err != nil {
			log.Error("audit insert failed", zap.String("id", evt.ID), zap.String("action", string(evt.Action)), zap.Error(err))
			continue
		}
		log.Debug("audit event stored", zap.String("id", evt.ID), zap.String("action", string(evt.Action)))
	}
	return nil
}

var retryBackoff = 200 * time.Millisecond

func persist(ctx context.Context, sink Sink, evt Event) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = sink.Insert(ctx, evt); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * retryBackoff):
		}
	}
	return err
}
