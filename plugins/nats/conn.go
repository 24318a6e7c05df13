package nats

import "github.com/nats-io/nats.go"

// conn is the subset of *nats.Conn the broker uses.
type conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (subscription, error)
	Flush() error
	Status() nats.Status
	Drain() error
	Close()
}

type subscription interface {
	Unsubscribe() error
}

type dialFunc func(url string, opts ...nats.Option) (conn, error)

type natsConn struct {
	*nats.Conn
}

func (c natsConn) Subscribe(subject string, cb nats.MsgHandler) (subscription, error) {
	sub, err := c.Conn.Subscribe(subject, cb)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func dialNATS(url string, opts ...nats.Option) (conn, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return natsConn{nc}, nil
}
