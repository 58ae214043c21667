package streambind

import (
	"context"

	"github.com/hugolhafner/streambind/commit"
	"github.com/hugolhafner/streambind/errorhandler"
	"github.com/hugolhafner/streambind/fanout"
	"github.com/hugolhafner/streambind/kafka"
	"golang.org/x/sync/errgroup"
)

// HandlerFunc processes one consumed record.
type HandlerFunc func(ctx context.Context, record kafka.ConsumerRecord) error

// Handle consumes every stream of the binding with fn, one goroutine per
// stream, applying the error handler's decision per failed record. Under
// Manual mode, records are acknowledged once processed (or skipped); under
// AutoCommit, batch completion is signalled so a failing batch withholds its
// commit and replays on restart. Returns when all streams close or a record
// fails terminally.
func (b *Binding) Handle(ctx context.Context, fn HandlerFunc, eh errorhandler.Handler) error {
	if eh == nil {
		eh = errorhandler.LogAndFail(b.logger)
	}

	eg, ctx := errgroup.WithContext(ctx)

	for _, stream := range b.Streams() {
		eg.Go(func() error {
			return b.consumeStream(ctx, stream, fn, eh)
		})
	}

	return eg.Wait()
}

func (b *Binding) consumeStream(
	ctx context.Context,
	stream *fanout.Stream,
	fn HandlerFunc,
	eh errorhandler.Handler,
) error {
	if stream.Mode() == commit.AutoCommit {
		for {
			select {
			case batch, ok := <-stream.Batches():
				if !ok {
					return nil
				}

				batchErr := error(nil)
				for _, record := range batch.Records() {
					if err := b.processRecord(ctx, record, nil, fn, eh); err != nil {
						batchErr = err
						break
					}
				}

				batch.Done(batchErr)
				if batchErr != nil {
					return batchErr
				}

			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	for {
		select {
		case msg, ok := <-stream.Messages():
			if !ok {
				return nil
			}
			if err := b.processRecord(ctx, msg.Record, msg.Offset, fn, eh); err != nil {
				return err
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// processRecord runs fn with the error handler's retry/skip/fail policy.
// A non-nil offset handle is acknowledged on success and on skip, so the
// position still advances past records the handler chose to drop.
func (b *Binding) processRecord(
	ctx context.Context,
	record kafka.ConsumerRecord,
	offset *commit.ReceiverOffset,
	fn HandlerFunc,
	eh errorhandler.Handler,
) error {
	ec := errorhandler.NewErrorContext(record, nil)

	for {
		err := fn(ctx, record)
		if err == nil {
			if offset != nil {
				offset.Acknowledge()
			}
			return nil
		}

		ec = ec.WithError(err)

		switch eh.Handle(ctx, ec).Type() {
		case errorhandler.ActionTypeContinue:
			b.logger.Debug("Skipping failed record", "topic", record.Topic, "offset", record.Offset)
			if offset != nil {
				offset.Acknowledge()
			}
			return nil

		case errorhandler.ActionTypeRetry:
			ec = ec.IncrementAttempt()
			continue

		default:
			return err
		}
	}
}
