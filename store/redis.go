package store

import (
	"context"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/chatmodel"
	"github.com/coyaSONG/coya-mcp-client/config"
	"github.com/redis/go-redis/v9"
)

// The redis store keeps each record as a JSON blob. The key namespace:
// - `/<prefix>/mcpclient/conversation/<id>` for one conversation
// - `/<prefix>/mcpclient/conversations` for the set of conversation IDs
// - `/<prefix>/mcpclient/providers` for the provider list
// - `/<prefix>/mcpclient/settings` for the settings

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store backed by the given Redis client.
func NewRedisStore(client *redis.Client, prefix string) Store {
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

func (m *redisStore) conversationKey(id string) string {
	return path.Join(m.prefix, "mcpclient", "conversation", id)
}

func (m *redisStore) conversationListKey() string {
	return path.Join(m.prefix, "mcpclient", "conversations")
}

func (m *redisStore) providersKey() string {
	return path.Join(m.prefix, "mcpclient", "providers")
}

func (m *redisStore) settingsKey() string {
	return path.Join(m.prefix, "mcpclient", "settings")
}

func (m *redisStore) SaveConversation(ctx context.Context, conv *chatmodel.Conversation) error {
	bs, err := encodeConversation(conv)
	if err != nil {
		return err
	}

	pipe := m.client.Pipeline()
	pipe.Set(ctx, m.conversationKey(conv.ID), bs, 0)
	pipe.SAdd(ctx, m.conversationListKey(), conv.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to store conversation in Redis")
	}
	return nil
}

func (m *redisStore) GetConversation(ctx context.Context, id string) (*chatmodel.Conversation, error) {
	bs, err := m.client.Get(ctx, m.conversationKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.WithMessagef(ErrNotFound, "conversation %s", id)
		}
		return nil, errors.Wrap(err, "failed to get conversation from Redis")
	}
	return decodeConversation(bs)
}

func (m *redisStore) ListConversations(ctx context.Context) ([]string, error) {
	ids, err := m.client.SMembers(ctx, m.conversationListKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to list conversations from Redis")
	}
	return ids, nil
}

func (m *redisStore) DeleteConversation(ctx context.Context, id string) error {
	pipe := m.client.Pipeline()
	pipe.Del(ctx, m.conversationKey(id))
	pipe.SRem(ctx, m.conversationListKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to delete conversation from Redis")
	}
	return nil
}

func (m *redisStore) SaveProviders(ctx context.Context, providers []*config.Provider) error {
	bs, err := marshalProviders(providers)
	if err != nil {
		return err
	}
	if err := m.client.Set(ctx, m.providersKey(), bs, 0).Err(); err != nil {
		return errors.Wrap(err, "failed to store providers in Redis")
	}
	return nil
}

func (m *redisStore) GetProviders(ctx context.Context) ([]*config.Provider, error) {
	bs, err := m.client.Get(ctx, m.providersKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get providers from Redis")
	}
	return unmarshalProviders(bs)
}

func (m *redisStore) SaveSettings(ctx context.Context, settings *config.Settings) error {
	bs, err := marshalSettings(settings)
	if err != nil {
		return err
	}
	if err := m.client.Set(ctx, m.settingsKey(), bs, 0).Err(); err != nil {
		return errors.Wrap(err, "failed to store settings in Redis")
	}
	return nil
}

func (m *redisStore) GetSettings(ctx context.Context) (*config.Settings, error) {
	bs, err := m.client.Get(ctx, m.settingsKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.WithMessage(ErrNotFound, "settings")
		}
		return nil, errors.Wrap(err, "failed to get settings from Redis")
	}
	return unmarshalSettings(bs)
}
