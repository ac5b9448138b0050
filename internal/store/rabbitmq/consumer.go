package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/chatapp/internal/logging"
)

var log = logging.For("rabbitmq")

// Handler processes one message body. Returning an error wrapping
// ErrPermanent sends the message to the dead-letter queue; other errors
// schedule a retry while attempts remain.
type Handler func(ctx context.Context, body []byte) error

var ErrPermanent = errors.New("permanent failure")

const retryCountHeader = "x-retry-count"

type ConsumerOptions struct {
	Concurrency int
	MaxRetries  int
	RetryDelay  time.Duration
}

type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	pub   *Publisher
	opts  ConsumerOptions
}

func NewConsumer(url, queue string, opts ConsumerOptions) (*Consumer, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	conn, ch, err := dial(url, queue)
	if err != nil {
		return nil, err
	}
	// prefetch bounds in-flight deliveries to the pool size
	if err := ch.Qos(opts.Concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	pub, err := NewPublisher(url, queue)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, pub: pub, opts: opts}, nil
}

func (c *Consumer) Close() error {
	_ = c.pub.Close()
	_ = c.ch.Close()
	return c.conn.Close()
}

// Run dispatches deliveries to a fixed pool of workers until ctx is done or
// the broker closes the delivery channel.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	log.WithField("queue", c.queue).WithField("concurrency", c.opts.Concurrency).Info("consumer started")

	jobs := make(chan amqp.Delivery, c.opts.Concurrency*2)
	var wg sync.WaitGroup
	wg.Add(c.opts.Concurrency)
	for i := 0; i < c.opts.Concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.handle(ctx, workerID, d, h)
			}
		}(i)
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("consumer shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			jobs <- d
		}
	}
}

func (c *Consumer) handle(ctx context.Context, workerID int, d amqp.Delivery, h Handler) {
	entry := log.WithField("worker", workerID).WithField("delivery_tag", d.DeliveryTag)
	start := time.Now()

	err := h(ctx, d.Body)
	attempt := retryCount(d.Headers)

	out := decide(err, attempt, c.opts.MaxRetries)
	if out == outcomeAck {
		if err := d.Ack(false); err != nil {
			entry.WithError(err).Warn("ack failed")
		}
		return
	}

	entry = entry.WithError(err).WithField("attempt", attempt).WithField("cost", time.Since(start).String())
	if out == outcomeDeadLetter {
		entry.Error("message dead-lettered")
		_ = d.Nack(false, false)
		return
	}

	if perr := c.pub.publish(ctx, RetryQueue(c.queue), d.Body, func(m *amqp.Publishing) {
		m.Expiration = strconvMillis(c.opts.RetryDelay)
		m.Headers = amqp.Table{retryCountHeader: int32(attempt + 1)}
	}); perr != nil {
		entry.WithField("retry_error", perr.Error()).Error("retry publish failed, dead-lettering")
		_ = d.Nack(false, false)
		return
	}
	entry.Warn("message scheduled for retry")
	_ = d.Ack(false)
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

func (o outcome) String() string {
	return [...]string{"ack", "retry", "dead-letter"}[o]
}

// decide maps a handler result to what happens to the delivery. attempt is
// the number of retries already made.
func decide(err error, attempt, maxRetries int) outcome {
	switch {
	case err == nil:
		return outcomeAck
	case errors.Is(err, ErrPermanent), attempt >= maxRetries:
		return outcomeDeadLetter
	default:
		return outcomeRetry
	}
}

func retryCount(h amqp.Table) int {
	switch v := h[retryCountHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
