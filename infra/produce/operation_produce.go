package produce

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	OperationExchange      = "operation.exchange"
	OperationRunQueue      = "operation.run"
	OperationRunRoutingKey = "operation.run"
)

// RunOperationMessage asks a worker to run one scheduled operation.
type RunOperationMessage struct {
	OperationID uint  `json:"operation_id"`
	SiteID      uint  `json:"site_id"`
	Timestamp   int64 `json:"timestamp"`
}

// Publisher is the slice of *amqp.Channel the producers need.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type OperationService struct {
	channel Publisher
}

func InitOperationService(channel *amqp.Channel) *OperationService {
	service := &OperationService{channel: channel}

	err := channel.ExchangeDeclare(
		OperationExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		panic("Failed to declare Operation exchange: " + err.Error())
	}

	_, err = channel.QueueDeclare(
		OperationRunQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		panic("Failed to declare Operation run queue: " + err.Error())
	}

	err = channel.QueueBind(
		OperationRunQueue,
		OperationRunRoutingKey,
		OperationExchange,
		false,
		nil,
	)
	if err != nil {
		panic("Failed to bind Operation run queue: " + err.Error())
	}

	return service
}

func NewOperationService(channel Publisher) *OperationService {
	return &OperationService{channel: channel}
}

func (s *OperationService) PublishRunOperation(ctx context.Context, operationID, siteID uint) error {
	msg := RunOperationMessage{
		OperationID: operationID,
		SiteID:      siteID,
		Timestamp:   time.Now().Unix(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal run operation message: %w", err)
	}

	err = s.channel.PublishWithContext(
		ctx,
		OperationExchange,
		OperationRunRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    uuid.NewString(),
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish run operation message: %w", err)
	}
	return nil
}
