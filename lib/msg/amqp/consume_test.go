package amqp

import (
	"errors"
	"testing"

	"github.com/streadway/amqp"
)

var errBroker = errors.New("broker refused")

// fakeChannel fails the step named in fail and counts the closes.
type fakeChannel struct {
	fail   string
	closed int
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if f.fail == "declare" {
		return amqp.Queue{}, errBroker
	}

	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(_, _, _ string, _ bool, _ amqp.Table) error {
	if f.fail == "bind" {
		return errBroker
	}

	return nil
}

func (f *fakeChannel) Consume(_, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	if f.fail == "consume" {
		return nil, errBroker
	}

	return make(chan amqp.Delivery), nil
}

func (f *fakeChannel) Close() error {
	f.closed++

	return nil
}

func TestConsume(t *testing.T) {
	for _, fail := range []string{"", "declare", "bind", "consume"} {
		ch := &fakeChannel{fail: fail}

		msgs, err := consume(ch, "testnet")
		if fail == "" {
			if err != nil || msgs == nil || ch.closed != 0 {
				t.Errorf("[ok] Error consuming:%v closed:%d", err, ch.closed)
			}

			continue
		}

		if !errors.Is(err, errBroker) || ch.closed != 1 {
			t.Errorf("[%s] expected errBroker and a closed channel, got %v closed:%d", fail, err, ch.closed)
		}
	}
}
