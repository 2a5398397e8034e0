package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// EnrichRequest asks the worker to enrich one search batch.
type EnrichRequest struct {
	SearchBatchID uint64 `json:"search_id"`
	MaxProfiles   int    `json:"max_profiles,omitempty"`
}

func retryQueue(queue string) string { return queue + ".retry" }
func dlqQueue(queue string) string   { return queue + ".dlq" }

// declareTopology declares the main queue plus its retry and dead-letter
// queues. Rejected messages go to the DLQ; messages in the retry queue go back
// to the main queue when their TTL expires.
func declareTopology(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(
		dlqQueue(queue),
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		retryQueue(queue),
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": queue,
		},
	); err != nil {
		return err
	}

	_, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQueue(queue),
		},
	)
	return err
}

func dial(url, queue string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := declareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}
