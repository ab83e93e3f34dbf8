package local_test

import (
	"context"
	"testing"
	"time"

	"github.com/coyaSONG/coya-mcp-client/mcp/transport"
	"github.com/coyaSONG/coya-mcp-client/mcp/transport/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_PipeDelivery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, b := local.Pipe()

	got := make(chan *transport.Message, 1)
	b.SetMessageHandler(func(_ context.Context, msg *transport.Message) {
		got <- msg
	})
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	req := &transport.Request{Jsonrpc: "2.0", ID: 1, Method: "tools/list"}
	require.NoError(t, a.Send(ctx, transport.NewRequestMessage(req)))

	select {
	case msg := <-got:
		require.Equal(t, transport.MessageTypeRequest, msg.Type)
		assert.Equal(t, "tools/list", msg.Request.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func Test_SendBeforeStart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, b := local.Pipe()

	n := transport.NewNotificationMessage(&transport.Notification{Jsonrpc: "2.0", Method: "x"})
	assert.Error(t, a.Send(ctx, n))

	require.NoError(t, a.Start(ctx))
	// peer not started yet
	assert.Error(t, a.Send(ctx, n))

	require.NoError(t, b.Start(ctx))
	b.SetMessageHandler(func(context.Context, *transport.Message) {})
	assert.NoError(t, a.Send(ctx, n))
}

func Test_ClosePropagates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, b := local.Pipe()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	aClosed := make(chan struct{})
	bClosed := make(chan struct{})
	a.SetCloseHandler(func() { close(aClosed) })
	b.SetCloseHandler(func() { close(bClosed) })

	require.NoError(t, a.Close())

	for name, ch := range map[string]chan struct{}{"a": aClosed, "b": bClosed} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("close handler for %s not invoked", name)
		}
	}

	// closing again is a no-op
	require.NoError(t, a.Close())
	assert.Error(t, a.Send(ctx, transport.NewNotificationMessage(&transport.Notification{Jsonrpc: "2.0", Method: "x"})))
}
