package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/classboard/core"
)

const (
	metadataType  = "type"
	consumerGroup = "classboard-audit"
)

// Bus publishes core events to a watermill topic and feeds them to subscribed handlers.
type Bus struct {
	pub    message.Publisher
	sub    message.Subscriber
	topic  string
	logger core.Logger

	wg sync.WaitGroup
}

var _ core.EventPublisher = (*Bus)(nil) // interface compliance check

// New returns a kafka-backed Bus when brokers are configured, an in-process one otherwise.
func New(conf *core.Config, logger core.Logger) (*Bus, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(logger, "logger"),
	).Check(); err != nil {
		return nil, err
	}

	wmLogger := NewLoggerAdapter(logger)
	if len(conf.Events.KafkaBrokers) == 0 {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
		return NewBus(ch, ch, conf.Events.Topic, logger)
	}

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   conf.Events.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, wmLogger)
	if err != nil {
		return nil, errors.Wrap(err, "creating kafka publisher")
	}
	sub, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:       conf.Events.KafkaBrokers,
		Unmarshaler:   kafka.DefaultMarshaler{},
		ConsumerGroup: consumerGroup,
	}, wmLogger)
	if err != nil {
		_ = pub.Close()
		return nil, errors.Wrap(err, "creating kafka subscriber")
	}
	return NewBus(pub, sub, conf.Events.Topic, logger)
}

func NewBus(pub message.Publisher, sub message.Subscriber, topic string, logger core.Logger) (*Bus, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(pub, "pub"),
		vala.IsNotNil(sub, "sub"),
		vala.StringNotEmpty(topic, "topic"),
		vala.IsNotNil(logger, "logger"),
	).Check(); err != nil {
		return nil, err
	}
	return &Bus{pub: pub, sub: sub, topic: topic, logger: logger}, nil
}

func (b *Bus) Publish(ctx context.Context, evt core.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataType, evt.Type)
	msg.SetContext(ctx)

	if err = b.pub.Publish(b.topic, msg); err != nil {
		return errors.Wrapf(err, "publishing %s", evt.Type)
	}
	return nil
}

// Subscribe feeds every event of the topic to handle until ctx is done.
// A message is acked once handled; a handler error nacks it.
func (b *Bus) Subscribe(ctx context.Context, handle func(ctx context.Context, evt core.Event) error) error {
	msgs, err := b.sub.Subscribe(ctx, b.topic)
	if err != nil {
		return errors.Wrap(err, "subscribing")
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range msgs {
			var evt core.Event
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				b.logger.Error("events: dropping undecodable message", err, map[string]interface{}{"uuid": msg.UUID})
				msg.Ack()
				continue
			}
			if err := handle(msg.Context(), evt); err != nil {
				b.logger.Warn("events: handler failed", err, map[string]interface{}{"type": evt.Type})
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}()
	return nil
}

// Close closes the publisher and subscriber, then waits for the subscription loops to end.
// Closing a gochannel twice is a no-op, so the in-process bus may use it as both.
func (b *Bus) Close() error {
	pubErr := b.pub.Close()
	subErr := b.sub.Close()
	b.wg.Wait()
	if pubErr != nil {
		return errors.Wrap(pubErr, "closing publisher")
	}
	return errors.Wrap(subErr, "closing subscriber")
}

// Audit is a handler writing every event to logger.
func Audit(logger core.Logger) func(context.Context, core.Event) error {
	return func(_ context.Context, evt core.Event) error {
		extras := map[string]interface{}{"type": evt.Type, "time": evt.Time}
		if evt.ActorID != "" {
			extras["actor_id"] = evt.ActorID
		}
		if evt.TargetID != "" {
			extras["target_id"] = evt.TargetID
		}
		for k, v := range evt.Data {
			extras[k] = v
		}
		logger.Info("audit: "+evt.Type, extras)
		return nil
	}
}
