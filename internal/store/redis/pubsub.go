package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const boardChannelPrefix = "plank:board:"

type PubSub struct {
	client *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &PubSub{client: client}, nil
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

func (ps *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ps.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Publish: %w", err)
	}
	return nil
}

// PublishBoard publishes payload on the board's channel.
func (ps *PubSub) PublishBoard(ctx context.Context, boardID uuid.UUID, payload []byte) error {
	return ps.Publish(ctx, BoardChannel(boardID), payload)
}

// SubscribeBoards pattern-subscribes to every board channel and calls handle
// for each message until ctx is done. It returns nil on cancellation.
func (ps *PubSub) SubscribeBoards(ctx context.Context, handle func(boardID uuid.UUID, payload []byte)) error {
	sub := ps.client.PSubscribe(ctx, boardChannelPrefix+"*")
	defer func() { _ = sub.Close() }()

	// Wait for subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis.PubSub.SubscribeBoards: receive confirmation: %w", err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("redis.PubSub.SubscribeBoards: subscription closed")
			}
			boardID, err := BoardIDFromChannel(msg.Channel)
			if err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("redis: ignoring message on unexpected channel")
				continue
			}
			handle(boardID, []byte(msg.Payload))
		}
	}
}

// BoardChannel returns the Redis channel name for a board.
func BoardChannel(boardID uuid.UUID) string {
	return boardChannelPrefix + boardID.String()
}

// BoardIDFromChannel is the inverse of BoardChannel.
func BoardIDFromChannel(channel string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(channel, boardChannelPrefix)
	if !ok {
		return uuid.Nil, fmt.Errorf("redis.BoardIDFromChannel: %q is not a board channel", channel)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("redis.BoardIDFromChannel: %w", err)
	}
	return id, nil
}
