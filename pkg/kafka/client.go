// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"kb-admin-go/internal/config"
	"kb-admin-go/pkg/log"
	"kb-admin-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
)

// EventPublisher 发布文件变更事件。
type EventPublisher interface {
	PublishFileEvent(ctx context.Context, event tasks.FileEvent) error
}

// NopPublisher 在未配置 Kafka 时使用。
type NopPublisher struct{}

func (NopPublisher) PublishFileEvent(context.Context, tasks.FileEvent) error { return nil }

// messageWriter 是 *kafka.Writer 中 Producer 用到的部分。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer 通过熔断器向 Kafka 写入文件事件，broker 不可用时快速失败。
type Producer struct {
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker[any]
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}
	log.Info("Kafka 生产者初始化成功")
	return newProducer(w)
}

func newProducer(w messageWriter) *Producer {
	settings := gobreaker.Settings{
		Name:        "kafka-producer",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnw("circuit_breaker_state_change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &Producer{writer: w, breaker: gobreaker.NewCircuitBreaker[any](settings)}
}

// PublishFileEvent 发送一个文件事件到 Kafka，以部门和文件 ID 作为分区键。
func (p *Producer) PublishFileEvent(ctx context.Context, event tasks.FileEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(event.Key()),
			Value: value,
		})
	})
	return err
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// EventHandler 处理消费到的文件事件，使消费者与具体的处理流程解耦。
type EventHandler interface {
	Handle(ctx context.Context, event tasks.FileEvent) error
}

const maxAttempts = 3

// Consumer 从 Kafka 读取文件事件并交给 EventHandler。
type Consumer struct {
	reader *kafka.Reader
	// rdb 为空时失败的消息直接提交，不做重试计数。
	rdb     *redis.Client
	handler EventHandler
}

// NewConsumer 创建消费者，rdb 用于记录单条消息的失败次数。
func NewConsumer(cfg config.KafkaConfig, rdb *redis.Client, handler EventHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, rdb: rdb, handler: handler}
}

// Run 阻塞消费直到 ctx 取消。
func (c *Consumer) Run(ctx context.Context) {
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", c.reader.Config().Topic)
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var event tasks.FileEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			c.commit(ctx, m)
			continue
		}

		if err := c.handler.Handle(ctx, event); err != nil {
			log.Errorf("处理文件事件失败: type=%s, file=%d, error: %v", event.Type, event.FileID, err)
			if c.shouldGiveUp(ctx, m) {
				log.Errorf("文件事件多次失败(>=%d)，提交 offset 终止重试: file=%d", maxAttempts, event.FileID)
				c.commit(ctx, m)
			}
			continue
		}

		if c.rdb != nil {
			_ = c.rdb.Del(ctx, attemptsKey(m)).Err()
		}
		c.commit(ctx, m)
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

// shouldGiveUp 用 Redis 计数失败次数，达到阈值后放弃重试。
func (c *Consumer) shouldGiveUp(ctx context.Context, m kafka.Message) bool {
	if c.rdb == nil {
		return true
	}
	key := attemptsKey(m)
	attempts, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
		return false
	}
	_ = c.rdb.Expire(ctx, key, 24*time.Hour).Err()
	return attempts >= maxAttempts
}

func attemptsKey(m kafka.Message) string {
	return fmt.Sprintf("kafka:attempts:%s:%d:%d", m.Topic, m.Partition, m.Offset)
}
