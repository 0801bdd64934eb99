// Package events provides Redis pub/sub for analysis events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BV-BRC/sheet-analyst/internal/config"
)

// DefaultChannel carries analysis events when no channel is configured.
const DefaultChannel = "analysis_events"

// Event types
const (
	TypeCompleted = "analysis_completed"
	TypeRejected  = "analysis_rejected"
	TypeFailed    = "analysis_failed"
)

// Event describes one finished pipeline run. It never carries code text:
// CodeHash identifies the executed snapshot instead.
type Event struct {
	Type       string   `json:"type"`
	RequestID  string   `json:"request_id"`
	Outcome    string   `json:"outcome"`
	Reason     string   `json:"reason,omitempty"`
	FaultKind  string   `json:"fault_kind,omitempty"`
	ResultKind string   `json:"result_kind,omitempty"`
	Mode       string   `json:"mode,omitempty"`
	Tables     []string `json:"tables,omitempty"`
	CodeHash   string   `json:"code_hash,omitempty"`
	GenerateMS int64    `json:"generate_ms,omitempty"`
	ExecuteMS  int64    `json:"execute_ms,omitempty"`
	Timestamp  int64    `json:"time"`
}

// Handler handles incoming events.
type Handler interface {
	HandleAnalysis(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) HandleAnalysis(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscriber subscribes to the analysis channel and dispatches events.
type Subscriber struct {
	redis    *redis.Client
	channel  string
	logger   *zap.Logger
	handlers []Handler
	ready    chan struct{}
	once     sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewSubscriber creates a new event subscriber.
func NewSubscriber(redisClient *redis.Client, channel string, logger *zap.Logger) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		redis:   redisClient,
		channel: channel,
		logger:  logger.With(zap.String("component", "events")),
		ready:   make(chan struct{}),
	}
}

// AddHandler adds an event handler.
func (s *Subscriber) AddHandler(handler Handler) {
	s.handlers = append(s.handlers, handler)
}

// Ready is closed once the subscription is confirmed.
func (s *Subscriber) Ready() <-chan struct{} {
	return s.ready
}

// Start listens for events until ctx is done or Stop is called.
func (s *Subscriber) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	pubsub := s.redis.Subscribe(s.ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(s.ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	s.once.Do(func() { close(s.ready) })
	s.logger.Info("subscribed", zap.String("channel", s.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if msg == nil {
				continue
			}
			if err := s.processMessage(msg); err != nil {
				s.logger.Warn("error processing message", zap.Error(err))
			}
		}
	}
}

// Stop stops the subscriber.
func (s *Subscriber) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Subscriber) processMessage(msg *redis.Message) error {
	var event Event
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	for _, handler := range s.handlers {
		if err := handler.HandleAnalysis(s.ctx, event); err != nil {
			s.logger.Warn("handler error", zap.String("request_id", event.RequestID), zap.Error(err))
		}
	}
	return nil
}

// Publisher publishes events to Redis.
type Publisher struct {
	redis   *redis.Client
	channel string
}

// NewPublisher creates a new event publisher.
func NewPublisher(redisClient *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{redis: redisClient, channel: channel}
}

// PublishAnalysis publishes an analysis event, stamping its time.
func (p *Publisher) PublishAnalysis(ctx context.Context, event Event) error {
	event.Timestamp = time.Now().Unix()
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, p.channel, string(data)).Err()
}

// ConnectRedis creates a Redis client from config.
func ConnectRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
