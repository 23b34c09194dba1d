package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TrendingEvent is the Kafka record published for each trending post.
type TrendingEvent struct {
	Type          string    `json:"type"`
	PostID        uint64    `json:"postId"`
	Author        string    `json:"author"`
	Content       string    `json:"content"`
	Likes         uint64    `json:"likes"`
	Replies       uint64    `json:"replies"`
	Reputation    int       `json:"reputation"`
	TrendingScore float64   `json:"trendingScore"`
	PublishedAt   time.Time `json:"publishedAt"`
}

// Kafka publishes one record per post, keyed by post id.
type Kafka struct {
	writer messageWriter
	topic  string
}

// NewKafka creates a publisher for topic on brokers.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka notifier requires at least one broker")
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Send(ctx context.Context, n *Notification) error {
	if len(n.Posts) == 0 {
		return nil
	}
	now := time.Now().UTC()
	msgs := make([]kafka.Message, 0, len(n.Posts))
	for _, p := range n.Posts {
		value, err := json.Marshal(TrendingEvent{
			Type:          "post.trending",
			PostID:        p.ID,
			Author:        p.Author.String(),
			Content:       p.Content,
			Likes:         p.Likes,
			Replies:       p.Replies,
			Reputation:    p.Reputation,
			TrendingScore: p.TrendingScore,
			PublishedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("marshal trending event %d: %w", p.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Topic: k.topic,
			Key:   []byte(strconv.FormatUint(p.ID, 10)),
			Value: value,
			Time:  now,
		})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write kafka messages: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
