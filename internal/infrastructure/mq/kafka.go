package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"banksystem/internal/config"
	"banksystem/internal/model"

	"github.com/IBM/sarama"
)

// KafkaPublisher 将交易事件同步发送到 Kafka
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaProducer 创建 Kafka 同步生产者
func NewKafkaProducer(cfg *config.KafkaConfig) (sarama.SyncProducer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3                    // 重试次数
	kafkaConfig.Producer.Return.Successes = true          // 返回成功消息

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	slog.Info("Kafka 生产者创建成功", "brokers", cfg.Brokers)
	return producer, nil
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish 发送事件，消息键为账号
func (p *KafkaPublisher) Publish(ctx context.Context, event model.TransactionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.Key()),
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送 Kafka 消息失败: %w", err)
	}
	slog.Debug("交易事件已发送", "event_id", event.EventID, "partition", partition, "offset", offset)
	return nil
}

// Close 关闭 Kafka 生产者
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher 未配置 Kafka 时使用，丢弃所有事件
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, model.TransactionEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
