package alert

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// defaultRedisTarget is the pub/sub channel used when none is configured.
const defaultRedisTarget = "churchbridge:alerts"

// Publisher publishes pub/sub messages. *redis.Client satisfies it.
type Publisher interface {
	// Publish posts message to channel.
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// redisChannel publishes alerts for other services to consume.
type redisChannel struct {
	name       string
	priorities SeverityMap
	publisher  Publisher
	target     string
}

func newRedisChannel(cfg ChannelConfig, severities SeverityMap, deps ChannelDeps) (Channel, error) {
	publisher := deps.Publisher
	if publisher == nil {
		if err := requireFields(map[string]string{"addr": cfg.Addr}); err != nil {
			return nil, err
		}
		publisher = redis.NewClient(&redis.Options{Addr: cfg.Addr})
	}

	target := cfg.Target
	if target == "" {
		target = defaultRedisTarget
	}

	return &redisChannel{
		name:       cfg.Name,
		priorities: severities,
		publisher:  publisher,
		target:     target,
	}, nil
}

// Name implements Channel.
func (r *redisChannel) Name() string {
	return r.name
}

// Send implements Channel.
func (r *redisChannel) Send(ctx context.Context, a Alert) error {
	data, err := json.Marshal(webhookPayload{Alert: a, Priority: r.priorities.Lookup(a.Severity)})
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}

	if err := r.publisher.Publish(ctx, r.target, data).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", r.target, err)
	}

	return nil
}
