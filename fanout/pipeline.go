package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugolhafner/streambind/commit"
	"github.com/hugolhafner/streambind/logger"
	"github.com/hugolhafner/streambind/receiver"
)

// Pipeline couples one receiver with one commit coordinator and drives
// records through the per-mode delivery path into its stream. Application
// handlers consume the stream on the delivery goroutine's pace: a slow
// handler directly throttles polling.
type Pipeline struct {
	receiver    *receiver.Receiver
	coordinator *commit.Coordinator
	stream      *Stream
	logger      logger.Logger
}

func newPipeline(
	rcv *receiver.Receiver,
	coordinator *commit.Coordinator,
	index int,
	l logger.Logger,
) *Pipeline {
	return &Pipeline{
		receiver:    rcv,
		coordinator: coordinator,
		stream:      newStream(coordinator.Mode()),
		logger:      l.With("component", "pipeline", "pipeline", index),
	}
}

func (p *Pipeline) Stream() *Stream {
	return p.stream
}

// run processes batches until the receiver terminates or the context is
// cancelled. Returns an error only for fatal conditions; cancellation is a
// clean stop.
func (p *Pipeline) run(ctx context.Context) error {
	defer p.stream.close()
	defer p.finalFlush()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-p.coordinator.CommitRequests():
			if err := p.coordinator.Flush(ctx); err != nil {
				return p.fatal(err)
			}

		case batch, ok := <-p.receiver.Batches():
			if !ok {
				if err := p.receiver.Err(); err != nil {
					return p.fatal(err)
				}
				return nil
			}

			if err := p.dispatch(ctx, batch); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				return p.fatal(err)
			}
		}
	}
}

func (p *Pipeline) dispatch(ctx context.Context, batch *receiver.PollBatch) error {
	switch p.coordinator.Mode() {
	case commit.AtMostOnce:
		// position is durably advanced before the application sees a record
		if err := p.coordinator.PreCommit(ctx, batch); err != nil {
			return err
		}

		for _, record := range batch.Records {
			if err := p.deliverMessage(ctx, Message{Record: record}); err != nil {
				return err
			}
		}

	case commit.Manual:
		handles := p.coordinator.Track(batch)
		for i, record := range batch.Records {
			if err := p.deliverMessage(ctx, Message{Record: record, Offset: handles[i]}); err != nil {
				return err
			}
		}

	case commit.AutoCommit:
		b := newBatch(batch)

		select {
		case p.stream.batches <- b:
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case err := <-b.done:
			if err != nil {
				p.logger.Warn(
					"Batch processing failed, withholding commit",
					"partition", batch.Partition,
					"first_offset", batch.FirstOffset(),
					"error", err,
				)
				return nil
			}
			return p.coordinator.CompleteBatch(ctx, batch)

		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// deliverMessage blocks until the application takes the message, servicing
// commit trigger requests while it waits.
func (p *Pipeline) deliverMessage(ctx context.Context, msg Message) error {
	for {
		select {
		case p.stream.messages <- msg:
			return nil

		case <-p.coordinator.CommitRequests():
			if err := p.coordinator.Flush(ctx); err != nil {
				return err
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// finalFlush commits any acknowledged-but-unflushed progress on the way out.
// Uses its own deadline since the run context is usually cancelled by then.
func (p *Pipeline) finalFlush() {
	if p.coordinator.Mode() != commit.Manual {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.coordinator.Flush(ctx); err != nil {
		p.logger.Error("Failed to flush acknowledged offsets during shutdown", "error", err)
	}
}

func (p *Pipeline) fatal(err error) error {
	p.logger.Error("Pipeline terminating", "error", err)
	return fmt.Errorf("pipeline: %w", err)
}
