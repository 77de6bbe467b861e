package mq

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"CareVault/model"
)

var (
	ErrPublisherClosed = errors.New("audit publisher closed")
	ErrPublishBacklog  = errors.New("audit publish backlog full")
)

const (
	defaultPublishBuffer = 256
	defaultRedialDelay   = 5 * time.Second
	publishTimeout       = 5 * time.Second
)

// Publisher hands audit events to one background goroutine that owns the
// broker connection. Publish never waits on the network.
type Publisher struct {
	events      chan model.AuditEvent
	quit        chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
	dial        func() (*Client, error)
	log         *zap.Logger
	redialDelay time.Duration
}

func NewPublisher(url string, topology Topology, log *zap.Logger) *Publisher {
	return newPublisher(func() (*Client, error) {
		return Dial(url, topology)
	}, log, defaultPublishBuffer, defaultRedialDelay)
}

func newPublisher(dial func() (*Client, error), log *zap.Logger, buffer int, redialDelay time.Duration) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 1
	}
	p := &Publisher{
		events:      make(chan model.AuditEvent, buffer),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		dial:        dial,
		log:         log,
		redialDelay: redialDelay,
	}
	go p.run()
	return p
}

// Publish queues event for delivery. It fails fast when ctx is done, the
// publisher is closed or the backlog is full.
func (p *Publisher) Publish(ctx context.Context, event model.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.quit:
		return ErrPublisherClosed
	default:
	}
	select {
	case p.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrPublishBacklog
	}
}

// Close stops accepting events, delivers what is already queued and closes
// the connection.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() { close(p.quit) })
	<-p.done
}

func (p *Publisher) run() {
	defer close(p.done)
	var (
		client   *Client
		nextDial time.Time
	)

	deliver := func(event model.AuditEvent) {
		if client == nil {
			if time.Now().Before(nextDial) {
				p.log.Warn("audit event dropped: broker unavailable",
					zap.String("event_id", event.ID), zap.String("action", string(event.Action)))
				return
			}
			c, err := p.connect()
			if err != nil {
				nextDial = time.Now().Add(p.redialDelay)
				p.log.Warn("audit broker connect failed",
					zap.String("event_id", event.ID), zap.Error(err))
				return
			}
			client = c
		}

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := client.Publish(ctx, event)
		cancel()
		if err != nil {
			p.log.Warn("audit publish failed",
				zap.String("event_id", event.ID), zap.Error(err))
			client.Close()
			client = nil
		}
	}

	for {
		select {
		case event := <-p.events:
			deliver(event)
		case <-p.quit:
			for {
				select {
				case event := <-p.events:
					deliver(event)
				default:
					client.Close()
					return
				}
			}
		}
	}
}

func (p *Publisher) connect() (*Client, error) {
	client, err := p.dial()
	if err != nil {
		return nil, err
	}
	if err := client.DeclareTopology(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
