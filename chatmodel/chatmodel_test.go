package chatmodel_test

import (
	"testing"

	"github.com/coyaSONG/coya-mcp-client/chatmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_MessageValidate(t *testing.T) {
	t.Parallel()

	tcases := []struct {
		name   string
		msg    chatmodel.Message
		expErr string
	}{
		{name: "system", msg: chatmodel.SystemMessage("be helpful")},
		{name: "user", msg: chatmodel.UserMessage("hi")},
		{name: "assistant", msg: chatmodel.AssistantMessage("hello")},
		{
			name: "assistant_with_calls",
			msg: chatmodel.AssistantToolCalls("",
				chatmodel.ToolCall{ID: "1", Name: "search", Arguments: `{"q":"x"}`}),
		},
		{name: "tool", msg: chatmodel.ToolResponse("1", "search", "y")},
		{
			name:   "unknown_role",
			msg:    chatmodel.Message{Role: "narrator", Content: "x"},
			expErr: "unexpected role",
		},
		{
			name:   "tool_without_call_id",
			msg:    chatmodel.Message{Role: chatmodel.RoleTool, Content: "y"},
			expErr: "tool message requires a tool call ID",
		},
		{
			name: "user_with_calls",
			msg: chatmodel.Message{
				Role:      chatmodel.RoleUser,
				Content:   "hi",
				ToolCalls: []chatmodel.ToolCall{{ID: "1", Name: "t"}},
			},
			expErr: "must not carry tool call fields",
		},
		{
			name: "incomplete_call",
			msg: chatmodel.Message{
				Role:      chatmodel.RoleAssistant,
				ToolCalls: []chatmodel.ToolCall{{ID: "", Name: "t"}},
			},
			expErr: "incomplete tool call",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.expErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.expErr)
			}
		})
	}
}

func Test_TranscriptSystemAtHead(t *testing.T) {
	t.Parallel()

	tr := chatmodel.NewTranscript()
	require.True(t, tr.EnsureSystem("be helpful"))
	require.NoError(t, tr.Append(chatmodel.UserMessage("hi")))

	// a second insertion attempt is a no-op
	assert.False(t, tr.EnsureSystem("be helpful"))
	assert.Error(t, tr.Append(chatmodel.SystemMessage("another")))

	msgs := tr.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, chatmodel.RoleSystem, msgs[0].Role)
	assert.Equal(t, chatmodel.RoleUser, msgs[1].Role)
}

func Test_TranscriptEnsureSystemEmptyPrompt(t *testing.T) {
	t.Parallel()

	tr := chatmodel.NewTranscript()
	assert.False(t, tr.EnsureSystem(""))
	assert.Equal(t, 0, tr.Len())
}

func Test_TranscriptUnansweredToolCalls(t *testing.T) {
	t.Parallel()

	tr := chatmodel.NewTranscript()
	require.NoError(t, tr.Append(chatmodel.UserMessage("hi")))
	require.NoError(t, tr.Append(chatmodel.AssistantToolCalls("",
		chatmodel.ToolCall{ID: "1", Name: "a", Arguments: "{}"},
		chatmodel.ToolCall{ID: "2", Name: "b", Arguments: "{}"},
	)))
	assert.Equal(t, []string{"1", "2"}, tr.UnansweredToolCalls())

	require.NoError(t, tr.Append(chatmodel.ToolResponse("1", "a", "ok")))
	assert.Equal(t, []string{"2"}, tr.UnansweredToolCalls())

	require.NoError(t, tr.Append(chatmodel.ToolResponse("2", "b", "Error: failed")))
	assert.Empty(t, tr.UnansweredToolCalls())
}

func Test_TranscriptToolCallCorrelation(t *testing.T) {
	t.Parallel()

	tr := chatmodel.NewTranscript()
	require.NoError(t, tr.Append(chatmodel.UserMessage("hi")))

	// no assistant message requested this call
	err := tr.Append(chatmodel.ToolResponse("orphan", "search", "y"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not answer a pending tool call")

	require.NoError(t, tr.Append(chatmodel.AssistantToolCalls("",
		chatmodel.ToolCall{ID: "1", Name: "search", Arguments: "{}"})))
	require.NoError(t, tr.Append(chatmodel.ToolResponse("1", "search", "y")))

	// a call cannot be answered twice
	err = tr.Append(chatmodel.ToolResponse("1", "search", "again"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not answer a pending tool call")
}

func Test_RestoreTranscript(t *testing.T) {
	t.Parallel()

	msgs := []chatmodel.Message{
		chatmodel.SystemMessage("be helpful"),
		chatmodel.UserMessage("hi"),
		chatmodel.AssistantMessage("hello"),
	}
	tr, err := chatmodel.RestoreTranscript(msgs)
	require.NoError(t, err)
	assert.Equal(t, msgs, tr.Messages())

	// corrupted blob: system message not at the head
	_, err = chatmodel.RestoreTranscript([]chatmodel.Message{
		chatmodel.UserMessage("hi"),
		chatmodel.SystemMessage("late"),
	})
	assert.Error(t, err)

	// corrupted blob: tool message without the requesting assistant message
	_, err = chatmodel.RestoreTranscript([]chatmodel.Message{
		chatmodel.UserMessage("hi"),
		chatmodel.ToolResponse("1", "search", "y"),
	})
	assert.Error(t, err)
}

func Test_TranscriptLast(t *testing.T) {
	t.Parallel()

	tr := chatmodel.NewTranscript()
	_, ok := tr.Last()
	assert.False(t, ok)

	require.NoError(t, tr.Append(chatmodel.UserMessage("hi")))
	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, "hi", last.Content)
}

func Test_NewConversation(t *testing.T) {
	t.Parallel()

	conv := chatmodel.NewConversation("")
	assert.Equal(t, "New Chat", conv.Title)
	assert.NotEmpty(t, conv.ID)
	assert.NotNil(t, conv.Transcript)

	conv2 := chatmodel.NewConversation("Weather").WithProvider("local")
	assert.Equal(t, "Weather", conv2.Title)
	assert.Equal(t, "local", conv2.ProviderID)
	assert.NotEqual(t, conv.ID, conv2.ID)
}
