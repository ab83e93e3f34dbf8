package store

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/chatmodel"
	"github.com/coyaSONG/coya-mcp-client/config"
)

type inMemory struct {
	mu            sync.RWMutex
	conversations map[string][]byte
	providers     []byte
	settings      []byte
}

// NewMemoryStore creates a process-local store.
func NewMemoryStore() Store {
	return &inMemory{
		conversations: make(map[string][]byte),
	}
}

func (m *inMemory) SaveConversation(_ context.Context, conv *chatmodel.Conversation) error {
	bs, err := encodeConversation(conv)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conv.ID] = bs
	return nil
}

func (m *inMemory) GetConversation(_ context.Context, id string) (*chatmodel.Conversation, error) {
	m.mu.RLock()
	bs, ok := m.conversations[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.WithMessagef(ErrNotFound, "conversation %s", id)
	}
	return decodeConversation(bs)
}

func (m *inMemory) ListConversations(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.conversations))
	for id := range m.conversations {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *inMemory) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, id)
	return nil
}

func (m *inMemory) SaveProviders(_ context.Context, providers []*config.Provider) error {
	bs, err := marshalProviders(providers)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = bs
	return nil
}

func (m *inMemory) GetProviders(_ context.Context) ([]*config.Provider, error) {
	m.mu.RLock()
	bs := m.providers
	m.mu.RUnlock()
	if bs == nil {
		return nil, nil
	}
	return unmarshalProviders(bs)
}

func (m *inMemory) SaveSettings(_ context.Context, settings *config.Settings) error {
	bs, err := marshalSettings(settings)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = bs
	return nil
}

func (m *inMemory) GetSettings(_ context.Context) (*config.Settings, error) {
	m.mu.RLock()
	bs := m.settings
	m.mu.RUnlock()
	if bs == nil {
		return nil, errors.WithMessage(ErrNotFound, "settings")
	}
	return unmarshalSettings(bs)
}
