package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giovaniif/e-commerce/inventory/domain/stock"
	"github.com/giovaniif/e-commerce/inventory/infra"
	"github.com/giovaniif/e-commerce/inventory/infra/tracing"
	"github.com/segmentio/kafka-go"
)

const (
	TopicOutOfStock   = "stock.out_of_stock"
	TopicLowStock     = "stock.low_stock"
	TopicRestocked    = "stock.restocked"
	TopicStockChanged = "stock.changed"

	eventTypeHeader = "event-type"
)

// MessageWriter is the part of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NotificationGatewayKafka publishes one message per event, keyed by product
// id so every event of a product lands on the same partition in order.
type NotificationGatewayKafka struct {
	writer      MessageWriter
	topicPrefix string
}

func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewNotificationGatewayKafka(writer MessageWriter, topicPrefix string) *NotificationGatewayKafka {
	return &NotificationGatewayKafka{writer: writer, topicPrefix: topicPrefix}
}

func (g *NotificationGatewayKafka) PublishOutOfStock(ctx context.Context, event stock.OutOfStockEvent) error {
	return g.publish(ctx, TopicOutOfStock, event.ProductID, event)
}

func (g *NotificationGatewayKafka) PublishLowStock(ctx context.Context, event stock.LowStockEvent) error {
	return g.publish(ctx, TopicLowStock, event.ProductID, event)
}

func (g *NotificationGatewayKafka) PublishRestocked(ctx context.Context, event stock.RestockedEvent) error {
	return g.publish(ctx, TopicRestocked, event.ProductID, event)
}

func (g *NotificationGatewayKafka) PublishStockChanged(ctx context.Context, event stock.StockChangedEvent) error {
	return g.publish(ctx, TopicStockChanged, event.ProductID, event)
}

func (g *NotificationGatewayKafka) Close() error {
	return g.writer.Close()
}

func (g *NotificationGatewayKafka) publish(ctx context.Context, topic, productId string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}

	carrier := map[string]string{}
	tracing.InjectMap(ctx, carrier)
	headers := []kafka.Header{{Key: eventTypeHeader, Value: []byte(topic)}}
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Topic:   g.topicPrefix + topic,
		Key:     []byte(productId),
		Value:   value,
		Headers: headers,
	}
	if err := g.writer.WriteMessages(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return infra.WrapTimeout("kafka write "+msg.Topic, err)
		}
		return infra.WrapNetwork("kafka write "+msg.Topic, err)
	}
	return nil
}
