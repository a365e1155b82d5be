package events

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	DriverGoChannel = "gochannel"
	DriverKafka     = "kafka"
)

// Options selects and configures the message transport.
type Options struct {
	Driver        string
	Brokers       []string
	ConsumerGroup string
}

// Bus bundles the publisher and subscriber of one transport.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Logger     watermill.LoggerAdapter
}

// NewBus builds the transport. The in-process gochannel is the default.
func NewBus(opts Options, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	wlog := watermill.NewSlogLogger(logger)

	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wlog)
		return &Bus{Publisher: ch, Subscriber: ch, Logger: wlog}, nil
	case DriverKafka:
		if len(opts.Brokers) == 0 {
			return nil, fmt.Errorf("kafka events need at least one broker")
		}
		group := opts.ConsumerGroup
		if group == "" {
			group = source
		}
		pub, err := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:   opts.Brokers,
			Marshaler: kafka.DefaultMarshaler{},
		}, wlog)
		if err != nil {
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		sub, err := kafka.NewSubscriber(kafka.SubscriberConfig{
			Brokers:               opts.Brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			ConsumerGroup:         group,
			OverwriteSaramaConfig: kafka.DefaultSaramaSubscriberConfig(),
		}, wlog)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("kafka subscriber: %w", err)
		}
		return &Bus{Publisher: pub, Subscriber: sub, Logger: wlog}, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", opts.Driver)
	}
}

func (b *Bus) Close() error {
	perr := b.Publisher.Close()
	var serr error
	if any(b.Subscriber) != any(b.Publisher) {
		serr = b.Subscriber.Close()
	}
	if perr != nil {
		return perr
	}
	return serr
}
