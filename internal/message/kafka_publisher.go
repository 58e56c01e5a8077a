package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/charging-platform/charge-point-simulator/internal/domain/events"
)

// FleetEvent 发布到消息总线的机群事件格式
type FleetEvent struct {
	EventID     string      `json:"eventId"`
	EventType   string      `json:"eventType"`
	StationID   string      `json:"stationId"`
	SimulatorID string      `json:"simulatorId"`
	Timestamp   string      `json:"timestamp"`
	Payload     interface{} `json:"payload"`
}

// KafkaPublisher 将模拟器事件镜像到Kafka，供外部监控拉测进度。
// 可选组件，未配置broker时整个发布链路不启用。
type KafkaPublisher struct {
	producer    sarama.AsyncProducer
	topic       string
	simulatorID string
}

// NewKafkaPublisher 创建异步Kafka发布器
func NewKafkaPublisher(brokers []string, topic, simulatorID string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka async producer: %w", err)
	}

	p := &KafkaPublisher{
		producer:    producer,
		topic:       topic,
		simulatorID: simulatorID,
	}
	go p.handleErrors()

	return p, nil
}

// PublishEvent 发布一条机群事件
func (p *KafkaPublisher) PublishEvent(event events.Event) error {
	fleetEvent := &FleetEvent{
		EventID:     event.GetID(),
		EventType:   string(event.GetType()),
		StationID:   event.GetStationID(),
		SimulatorID: p.simulatorID,
		Timestamp:   fmt.Sprintf("%d", event.GetTimestamp().UnixMilli()),
		Payload:     event,
	}

	data, err := json.Marshal(fleetEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal fleet event: %w", err)
	}

	// 站点ID作为Key，同一站点的事件落入同一分区保持有序
	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.GetStationID()),
		Value: sarama.ByteEncoder(data),
	}
	return nil
}

// Close 关闭发布器
func (p *KafkaPublisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) handleErrors() {
	for err := range p.producer.Errors() {
		log.Error().
			Err(err).
			Str("topic", err.Msg.Topic).
			Msg("Failed to publish fleet event")
	}
}
