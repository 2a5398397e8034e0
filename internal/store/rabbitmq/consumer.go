package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const attemptHeader = "x-attempt"

// Handler processes one enrich request. A returned error schedules a retry.
type Handler func(ctx context.Context, req EnrichRequest) error

var errBadMessage = errors.New("bad message")

type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	pub         *Publisher
	queue       string
	concurrency int
	maxRetries  int
	retryDelay  time.Duration
	log         *zap.Logger

	// retry republishes a failed delivery with the given attempt number.
	retry func(ctx context.Context, d amqp.Delivery, attempt int) error
}

func NewConsumer(url, queue string, concurrency int, log *zap.Logger) (*Consumer, error) {
	if concurrency <= 0 {
		concurrency = 2
	}
	conn, ch, err := dial(url, queue)
	if err != nil {
		return nil, fmt.Errorf("rabbit consumer: %w", err)
	}
	// strict concurrency control
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit qos: %w", err)
	}
	pubCh, err := conn.Channel()
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit retry channel: %w", err)
	}

	c := newConsumer(queue, concurrency, log)
	c.conn = conn
	c.ch = ch
	c.pub = &Publisher{conn: conn, ch: pubCh, queue: queue}
	c.retry = c.publishRetry
	return c, nil
}

func newConsumer(queue string, concurrency int, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		queue:       queue,
		concurrency: concurrency,
		maxRetries:  3,
		retryDelay:  30 * time.Second,
		log:         log,
	}
}

func (c *Consumer) Close() error {
	if c.pub != nil && c.pub.ch != nil {
		_ = c.pub.ch.Close()
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Consume delivers requests to handle on a pool of goroutines until ctx is
// done, then waits for in-flight messages.
func (c *Consumer) Consume(ctx context.Context, handle Handler) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbit consume: %w", err)
	}
	c.log.Info("consumer started", zap.String("queue", c.queue), zap.Int("concurrency", c.concurrency))
	return c.serve(ctx, msgs, handle)
}

func (c *Consumer) serve(ctx context.Context, msgs <-chan amqp.Delivery, handle Handler) error {
	jobs := make(chan amqp.Delivery, c.concurrency*2)

	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.handleDelivery(ctx, workerID, d, handle)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			c.log.Info("consumer shutting down")
			close(jobs)
			wg.Wait()
			return nil

		case d, ok := <-msgs:
			if !ok {
				close(jobs)
				wg.Wait()
				return errors.New("rabbit delivery channel closed")
			}
			jobs <- d
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, workerID int, d amqp.Delivery, handle Handler) {
	req, err := decodeRequest(d.Body)
	if err != nil {
		c.log.Warn("dropping bad message", zap.Int("worker", workerID), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	err = handle(ctx, req)
	if err == nil {
		if err := d.Ack(false); err != nil {
			c.log.Warn("ack failed", zap.Uint64("search_id", req.SearchBatchID), zap.Error(err))
		}
		return
	}

	log := c.log.With(
		zap.Int("worker", workerID),
		zap.Uint64("search_id", req.SearchBatchID),
		zap.Duration("cost", time.Since(start)),
		zap.Error(err))

	if ctx.Err() != nil {
		// shutting down: hand the message back untouched
		log.Info("requeue on shutdown")
		_ = d.Nack(false, true)
		return
	}

	attempt := attemptOf(d)
	if attempt >= c.maxRetries || c.retry == nil {
		log.Error("enrich request failed, dead-lettering", zap.Int("attempt", attempt))
		_ = d.Nack(false, false)
		return
	}
	if rerr := c.retry(ctx, d, attempt+1); rerr != nil {
		log.Error("retry publish failed, dead-lettering", zap.NamedError("retry_error", rerr))
		_ = d.Nack(false, false)
		return
	}
	log.Warn("enrich request failed, retry scheduled", zap.Int("attempt", attempt+1))
	_ = d.Ack(false)
}

func (c *Consumer) publishRetry(ctx context.Context, d amqp.Delivery, attempt int) error {
	return c.pub.publish(ctx, retryQueue(c.queue), amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
		Timestamp:    time.Now(),
		Expiration:   strconv.FormatInt(c.retryDelay.Milliseconds(), 10),
		Headers:      amqp.Table{attemptHeader: int32(attempt)},
	})
}

func decodeRequest(body []byte) (EnrichRequest, error) {
	var req EnrichRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("%w: %v", errBadMessage, err)
	}
	if req.SearchBatchID == 0 {
		return req, fmt.Errorf("%w: missing search_id", errBadMessage)
	}
	if req.MaxProfiles < 0 {
		return req, fmt.Errorf("%w: negative max_profiles", errBadMessage)
	}
	return req, nil
}

func attemptOf(d amqp.Delivery) int {
	switch v := d.Headers[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
