package produce

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type EmailMessage struct {
	Type          string `json:"type"`
	Recipient     string `json:"recipient"`
	RecipientName string `json:"recipientName,omitempty"`
	Content       string `json:"content"`
	ActionUrl     string `json:"actionUrl,omitempty"`
}

type EmailService struct {
	channel Publisher
}

func InitEmailService(channel *amqp.Channel) *EmailService {
	return &EmailService{
		channel: channel,
	}
}

func NewEmailService(channel Publisher) *EmailService {
	return &EmailService{channel: channel}
}

// SendOperationFailure tells the operator that an operation is stuck.
func (s *EmailService) SendOperationFailure(ctx context.Context, email, content, actionUrl string) error {
	message := EmailMessage{
		Type:          "warning",
		Recipient:     email,
		RecipientName: "Site operator",
		Content:       content,
		ActionUrl:     actionUrl,
	}

	return s.publishEmail(ctx, "email.warning", message)
}

func (s *EmailService) publishEmail(ctx context.Context, routingKey string, message EmailMessage) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal email message: %w", err)
	}

	err = s.channel.PublishWithContext(
		ctx,
		"email_exchange", // exchange
		routingKey,       // routing key
		false,            // mandatory
		false,            // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)

	if err != nil {
		return fmt.Errorf("failed to publish email message: %w", err)
	}

	return nil
}
