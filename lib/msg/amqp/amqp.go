// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/tarancss/rentguard/lib/logging"
	"github.com/tarancss/rentguard/lib/msg"
)

// Exchange is the topic exchange rent payment events are published to. Routing keys are <net>.payment.<rentalId>.
const Exchange = "rp"

// channel is the subset of *amqp.Channel used to consume payment events.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery,
		error)
	Close() error
}

// Amqp implements a connection to a broker and a publishing channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	mu   sync.Mutex
	ch   *amqp.Channel
}

// New instantiates a new amqp broker.
func New(uri string) (*Amqp, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to amqp broker: %w", err)
	}

	logging.Infof("Connected to amqp broker")

	return &Amqp{conn: conn}, nil
}

// Setup declares the rent payments exchange using a one-use channel.
func (r *Amqp) Setup() error {
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	return channel.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil)
}

// Close terminates gracefully the connection to the AMQP message broker.
func (r *Amqp) Close() error {
	r.mu.Lock()
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			logging.Warnf("Error closing amqp.Channel:%v", err)
		}

		r.ch = nil
	}
	r.mu.Unlock()

	return r.conn.Close()
}

// SendPayment publishes a payment event to the "rp" exchange. Requests publish concurrently so the shared channel
// is guarded.
func (r *Amqp) SendPayment(net string, e msg.PaymentEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return err
		}
	}

	if err = r.ch.Publish(Exchange, net+".payment."+e.RentalID, false, false, amqp.Publishing{
		Headers:      amqp.Table{"x-payment-name": net + "." + e.Hash},
		Body:         body,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
	}); err != nil {
		// the channel is closed by the broker on errors
		r.ch = nil

		return fmt.Errorf("[%s] cannot publish payment event: %w", net, err)
	}

	return nil
}

// GetPayments consumes events from the "rp" exchange for the network on a dedicated channel, pushing them to the
// returned channel.
func (r *Amqp) GetPayments(net string, mut *sync.Mutex) (<-chan msg.PaymentEvent, <-chan error, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, nil, err
	}

	msgs, err := consume(ch, net)
	if err != nil {
		return nil, nil, err
	}

	events := make(chan msg.PaymentEvent)
	errs := make(chan error)

	go func() {
		defer close(events)
		defer close(errs)

		for m := range msgs {
			var e msg.PaymentEvent
			if err := json.Unmarshal(m.Body, &e); err != nil {
				errs <- err

				_ = m.Nack(false, false)

				continue
			}

			events <- e

			mut.Lock() // wait for the receiver to finish processing the event
			_ = m.Ack(false)
		}
	}()

	return events, errs, nil
}

// consume declares the network queue, binds it to the payment events of the network and starts consuming it. ch is
// closed if any step fails.
func consume(ch channel, net string) (msgs <-chan amqp.Delivery, err error) {
	defer func() {
		if err == nil {
			return
		}

		if errC := ch.Close(); errC != nil {
			logging.Warnf("[%s] Error closing amqp.Channel:%v", net, errC)
		}
	}()

	queue := Exchange + net

	if _, err = ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("[%s] cannot declare queue %s: %w", net, queue, err)
	}

	if err = ch.QueueBind(queue, net+".payment.*", Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("[%s] cannot bind queue %s: %w", net, queue, err)
	}

	msgs, err = ch.Consume(queue, "rentguard-"+net, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("[%s] cannot consume queue %s: %w", net, queue, err)
	}

	return msgs, nil
}
