// Package store persists the client's durable state: conversations
// with their transcripts, the configured provider list, and settings.
// Implementations are an in-memory store and a Redis-backed store.
package store

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/chatmodel"
	"github.com/coyaSONG/coya-mcp-client/config"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store persists conversations, the provider list, and settings.
type Store interface {
	SaveConversation(ctx context.Context, conv *chatmodel.Conversation) error
	GetConversation(ctx context.Context, id string) (*chatmodel.Conversation, error)
	ListConversations(ctx context.Context) ([]string, error)
	DeleteConversation(ctx context.Context, id string) error

	SaveProviders(ctx context.Context, providers []*config.Provider) error
	GetProviders(ctx context.Context) ([]*config.Provider, error)

	SaveSettings(ctx context.Context, settings *config.Settings) error
	GetSettings(ctx context.Context) (*config.Settings, error)
}

// conversationRecord is the serialized form: the metadata plus the
// transcript messages, which Conversation itself does not marshal.
type conversationRecord struct {
	chatmodel.Conversation
	Messages []chatmodel.Message `json:"messages,omitempty"`
}

func encodeConversation(conv *chatmodel.Conversation) ([]byte, error) {
	rec := conversationRecord{Conversation: *conv}
	if conv.Transcript != nil {
		rec.Messages = conv.Transcript.Messages()
	}
	bs, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal conversation")
	}
	return bs, nil
}

func decodeConversation(bs []byte) (*chatmodel.Conversation, error) {
	var rec conversationRecord
	if err := json.Unmarshal(bs, &rec); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal conversation")
	}
	t, err := chatmodel.RestoreTranscript(rec.Messages)
	if err != nil {
		return nil, errors.WithMessage(err, "corrupted transcript")
	}
	conv := rec.Conversation
	conv.Transcript = t
	return &conv, nil
}

func marshalProviders(providers []*config.Provider) ([]byte, error) {
	bs, err := json.Marshal(providers)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal providers")
	}
	return bs, nil
}

func unmarshalProviders(bs []byte) ([]*config.Provider, error) {
	var providers []*config.Provider
	if err := json.Unmarshal(bs, &providers); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal providers")
	}
	return providers, nil
}

func marshalSettings(settings *config.Settings) ([]byte, error) {
	bs, err := json.Marshal(settings)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal settings")
	}
	return bs, nil
}

func unmarshalSettings(bs []byte) (*config.Settings, error) {
	var settings config.Settings
	if err := json.Unmarshal(bs, &settings); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal settings")
	}
	return &settings, nil
}
