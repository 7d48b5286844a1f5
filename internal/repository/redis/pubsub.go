package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RouteChanged is broadcast whenever a route's seat availability moves.
type RouteChanged struct {
	Type           string `json:"type"`
	RouteID        string `json:"route_id"`
	AvailableSeats int    `json:"available_seats"`
	TsUnix         int64  `json:"ts_unix"`
}

type RoutesPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewRoutesPubSub(rdb *redis.Client) *RoutesPubSub {
	return &RoutesPubSub{
		rdb:     rdb,
		channel: ChannelRoutesChanged(),
	}
}

func (p *RoutesPubSub) PublishRouteChanged(ctx context.Context, routeID string, available int) error {
	msg := RouteChanged{
		Type:           "route_changed",
		RouteID:        routeID,
		AvailableSeats: available,
		TsUnix:         time.Now().Unix(),
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe delivers route changes to handler until ctx is done.
func (p *RoutesPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, msg RouteChanged)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev RouteChanged
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.RouteID != "" {
				handler(ctx, ev)
			}
		}
	}
}
