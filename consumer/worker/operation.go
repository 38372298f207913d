package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tnqbao/gau-site-director/infra"
	"github.com/tnqbao/gau-site-director/infra/produce"
	"github.com/tnqbao/gau-site-director/operation"
	"github.com/tnqbao/gau-site-director/pipeline"
)

// Channel is the slice of *amqp.Channel the consumer needs.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

type OperationRunner interface {
	Run(ctx context.Context, operationID uint) error
}

type OperationConsumer struct {
	channel Channel
	infra   *infra.Infra
	runner  OperationRunner
	slots   chan struct{}
	wg      sync.WaitGroup
}

func NewOperationConsumer(channel Channel, infra *infra.Infra, runner OperationRunner, concurrency int) *OperationConsumer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &OperationConsumer{
		channel: channel,
		infra:   infra,
		runner:  runner,
		slots:   make(chan struct{}, concurrency),
	}
}

func (c *OperationConsumer) Start(ctx context.Context) error {
	// never hold more deliveries than free run slots
	if err := c.channel.Qos(cap(c.slots), 0, false); err != nil {
		return fmt.Errorf("failed to set operation consumer prefetch: %w", err)
	}

	msgs, err := c.channel.Consume(
		produce.OperationRunQueue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register operation consumer: %w", err)
	}

	c.infra.Logger.InfoWithContextf(ctx, "[Operation Consumer] Started listening for operations on queue: %s", produce.OperationRunQueue)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.infra.Logger.InfoWithContextf(ctx, "[Operation Consumer] Shutting down...")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.infra.Logger.WarningWithContextf(ctx, "[Operation Consumer] Channel closed")
					return
				}
				select {
				case c.slots <- struct{}{}:
				case <-ctx.Done():
					_ = msg.Nack(false, true)
					return
				}
				c.wg.Add(1)
				go func() {
					defer func() {
						<-c.slots
						c.wg.Done()
					}()
					c.handleRunOperation(ctx, msg)
				}()
			}
		}
	}()

	return nil
}

// Wait blocks until every in-flight operation has finished.
func (c *OperationConsumer) Wait() {
	c.wg.Wait()
}

func (c *OperationConsumer) handleRunOperation(ctx context.Context, msg amqp.Delivery) {
	var payload produce.RunOperationMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil || payload.OperationID == 0 {
		if err == nil {
			err = errors.New("missing operation_id")
		}
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Operation Consumer] Failed to unmarshal message")
		_ = msg.Nack(false, false)
		return
	}

	c.infra.Logger.InfoWithContextf(ctx, "[Operation Consumer] Running operation %d for site %d", payload.OperationID, payload.SiteID)

	err := c.runner.Run(ctx, payload.OperationID)
	var actionErr *pipeline.ActionError
	switch {
	case err == nil:
		_ = msg.Ack(false)

	case errors.Is(err, operation.ErrOperationNotFound):
		c.infra.Logger.InfoWithContextf(ctx, "[Operation Consumer] Operation %d no longer exists, dropping message", payload.OperationID)
		_ = msg.Ack(false)

	case errors.Is(err, operation.ErrAlreadyStarted):
		c.infra.Logger.WarningWithContextf(ctx, "[Operation Consumer] Operation %d was already started, dropping duplicate delivery", payload.OperationID)
		_ = msg.Ack(false)

	case errors.As(err, &actionErr):
		// the failure is recorded on the operation; the site stays locked
		_ = msg.Ack(false)

	case msg.Redelivered:
		// left unstarted; RecoverInterrupted requeues it on the next start
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Operation Consumer] Operation %d failed again, dropping message", payload.OperationID)
		_ = msg.Nack(false, false)

	default:
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Operation Consumer] Operation %d could not run, requeueing", payload.OperationID)
		_ = msg.Nack(false, true)
	}
}
