package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/fault"
	"github.com/roach88/lifeline/internal/inference"
)

// echoReplier answers "re: <message>" and records the history it saw.
type echoReplier struct {
	mu        sync.Mutex
	histories [][]api.ChatMessage
}

func (e *echoReplier) Reply(_ context.Context, _ string, history []api.ChatMessage, message string) (string, error) {
	e.mu.Lock()
	e.histories = append(e.histories, history)
	e.mu.Unlock()
	return "re: " + message, nil
}

// gateReplier blocks each reply until released or cancelled.
type gateReplier struct {
	started chan string
	release chan struct{}
}

func newGateReplier() *gateReplier {
	return &gateReplier{started: make(chan string, 16), release: make(chan struct{})}
}

func (g *gateReplier) Reply(ctx context.Context, _ string, _ []api.ChatMessage, message string) (string, error) {
	g.started <- message
	select {
	case <-g.release:
		return "late: " + message, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type failReplier struct{}

func (failReplier) Reply(context.Context, string, []api.ChatMessage, string) (string, error) {
	return "", fault.New(fault.KindNetworkUnreachable, "chat", "down")
}

func wait(t *testing.T, ch <-chan Turn) Turn {
	t.Helper()
	select {
	case turn := <-ch:
		return turn
	case <-time.After(5 * time.Second):
		t.Fatal("turn never resolved")
		return Turn{}
	}
}

func TestRepliesInSubmissionOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	rep := &echoReplier{}
	c := NewConversation(ConversationOptions{SubjectID: "p1", Replier: rep})
	defer c.Close()

	var chans []<-chan Turn
	for i := 0; i < 5; i++ {
		ch, err := c.Send(fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		chans = append(chans, ch)
	}
	for i, ch := range chans {
		turn := wait(t, ch)
		assert.Equal(t, TurnAnswered, turn.Status)
		assert.Equal(t, fmt.Sprintf("re: m%d", i), turn.Reply)
	}
	assert.False(t, c.Thinking())

	// Every reply lands after its own request.
	entries := c.Entries()
	assert.Equal(t, Greeting, entries[0].Content)
	pos := map[string]int{}
	for i, e := range entries {
		pos[e.Content] = i
	}
	for i := 0; i < 5; i++ {
		assert.Less(t, pos[fmt.Sprintf("m%d", i)], pos[fmt.Sprintf("re: m%d", i)])
	}
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].Seq, entries[i-1].Seq)
	}

	// The last reply saw the four earlier exchanges.
	rep.mu.Lock()
	defer rep.mu.Unlock()
	assert.Len(t, rep.histories[4], 8)
}

func TestThinkingIndicator(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := newGateReplier()
	c := NewConversation(ConversationOptions{Replier: g})
	defer c.Close()

	assert.False(t, c.Thinking())
	ch, err := c.Send("hello")
	require.NoError(t, err)
	assert.True(t, c.Thinking())
	<-g.started
	assert.True(t, c.Thinking())

	close(g.release)
	turn := wait(t, ch)
	assert.Equal(t, "late: hello", turn.Reply)
	assert.False(t, c.Thinking())
}

func TestFailureBecomesVisibleReply(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewConversation(ConversationOptions{Replier: failReplier{}})
	defer c.Close()

	ch, err := c.Send("help")
	require.NoError(t, err)
	turn := wait(t, ch)
	assert.Equal(t, TurnFailed, turn.Status)
	assert.True(t, fault.IsNetworkUnreachable(turn.Err))
	assert.Equal(t, UnreachableReply, turn.Reply)

	entries := c.Entries()
	last := entries[len(entries)-1]
	assert.True(t, last.Failed)
	assert.Equal(t, UnreachableReply, last.Content)
	assert.False(t, c.Thinking())
}

func TestResetDropsInFlightAndQueued(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := newGateReplier()
	c := NewConversation(ConversationOptions{Replier: g})
	defer c.Close()

	first, err := c.Send("first")
	require.NoError(t, err)
	second, err := c.Send("second")
	require.NoError(t, err)
	<-g.started

	c.Reset()
	assert.False(t, c.Thinking())
	assert.Equal(t, TurnDiscarded, wait(t, first).Status)
	assert.Equal(t, TurnDiscarded, wait(t, second).Status)

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Greeting, entries[0].Content)

	// New submissions work after a reset.
	third, err := c.Send("third")
	require.NoError(t, err)
	assert.Equal(t, "third", <-g.started)
	close(g.release)
	assert.Equal(t, TurnAnswered, wait(t, third).Status)
}

func TestCloseStopsWorker(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := newGateReplier()
	c := NewConversation(ConversationOptions{Replier: g})
	ch, err := c.Send("pending")
	require.NoError(t, err)
	<-g.started

	c.Close()
	assert.Equal(t, TurnDiscarded, wait(t, ch).Status)

	_, err = c.Send("after")
	assert.ErrorIs(t, err, ErrClosed)
	c.Close()
}

func TestEmptyMessage(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewConversation(ConversationOptions{Replier: &echoReplier{}})
	defer c.Close()
	_, err := c.Send("   ")
	assert.True(t, errors.Is(err, ErrEmptyMessage))
	assert.False(t, c.Thinking())
}

func TestLocalProvider(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewConversation(ConversationOptions{Replier: Local{Provider: inference.Offline{}}})
	defer c.Close()
	ch, err := c.Send("someone is choking")
	require.NoError(t, err)
	turn := wait(t, ch)
	assert.Contains(t, turn.Reply, "back blows")
}
