package produce

import amqp "github.com/rabbitmq/amqp091-go"

type Produce struct {
	EmailService     *EmailService
	OperationService *OperationService
}

var produceInstance *Produce

func InitProduce(channel *amqp.Channel) *Produce {
	if produceInstance != nil {
		return produceInstance
	}

	emailService := InitEmailService(channel)
	if emailService == nil {
		panic("Failed to initialize Email service")
	}

	operationService := InitOperationService(channel)
	if operationService == nil {
		panic("Failed to initialize Operation service")
	}

	produceInstance = &Produce{
		EmailService:     emailService,
		OperationService: operationService,
	}

	return produceInstance
}

func GetProduce() *Produce {
	if produceInstance == nil {
		panic("Produce not initialized. Call InitProduce() first.")
	}
	return produceInstance
}
