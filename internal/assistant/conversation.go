package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/clock"
	"github.com/roach88/lifeline/internal/inference"
)

// UnreachableReply is shown in place of a reply that never came.
const UnreachableReply = "Unable to reach the AI service. Please check your connection and try again."

// Greeting opens every conversation.
const Greeting = "Hello! I'm your AI health assistant. How can I support you today?"

var (
	// ErrEmptyMessage rejects blank submissions.
	ErrEmptyMessage = errors.New("assistant: message is empty")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("assistant: conversation closed")
)

// Replier produces a reply. history holds completed exchanges, oldest
// first.
type Replier interface {
	Reply(ctx context.Context, subjectID string, history []api.ChatMessage, message string) (string, error)
}

// Local answers with an in-process provider.
type Local struct {
	Provider inference.Provider
}

func (l Local) Reply(ctx context.Context, _ string, history []api.ChatMessage, message string) (string, error) {
	return l.Provider.Reply(ctx, history, message)
}

// TurnStatus is how a submission ended.
type TurnStatus string

const (
	TurnAnswered  TurnStatus = "answered"
	TurnFailed    TurnStatus = "failed"
	TurnDiscarded TurnStatus = "discarded"
)

// Turn is the outcome of one Send.
type Turn struct {
	Seq     int64
	Message string
	Reply   string
	Status  TurnStatus
	Err     error
}

// Entry is one line of the visible transcript.
type Entry struct {
	Seq     int64
	Role    string
	Content string
	Failed  bool
}

type job struct {
	seq     int64
	epoch   uint64
	message string
	done    chan Turn
}

// ConversationOptions configures a Conversation.
type ConversationOptions struct {
	SubjectID string
	Replier   Replier
	// Timeout bounds each reply. Zero means one minute.
	Timeout time.Duration
	Seq     *clock.Seq
	Logger  *zap.Logger
	// OnChange, if set, is called after every transcript or indicator
	// change. It runs on the caller's or the worker's goroutine and must
	// not call back into the Conversation.
	OnChange func()
}

// Conversation serializes chat submissions for one subject.
type Conversation struct {
	subjectID string
	replier   Replier
	timeout   time.Duration
	seq       *clock.Seq
	logger    *zap.Logger
	onChange  func()

	queue      *jobQueue
	base       context.Context
	baseCancel context.CancelFunc
	done       chan struct{}

	mu        sync.Mutex
	epoch     uint64
	pending   int
	cancel    context.CancelFunc
	entries   []Entry
	exchanges []api.ChatMessage
	closed    bool
}

// NewConversation starts the worker. Call Close to stop it.
func NewConversation(opts ConversationOptions) *Conversation {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	seq := opts.Seq
	if seq == nil {
		seq = clock.NewSeq()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	c := &Conversation{
		subjectID:  opts.SubjectID,
		replier:    opts.Replier,
		timeout:    timeout,
		seq:        seq,
		logger:     logger,
		onChange:   opts.OnChange,
		queue:      newJobQueue(),
		base:       base,
		baseCancel: cancel,
		done:       make(chan struct{}),
	}
	c.entries = []Entry{{Seq: seq.Next(), Role: api.ChatRoleAssistant, Content: Greeting}}
	go c.run()
	return c
}

// Send queues message. The user entry is appended and the thinking
// indicator raised immediately; the returned channel yields the Turn once
// the reply (or failure) has been appended.
func (c *Conversation) Send(message string) (<-chan Turn, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	j := &job{
		seq:     c.seq.Next(),
		epoch:   c.epoch,
		message: message,
		done:    make(chan Turn, 1),
	}
	c.entries = append(c.entries, Entry{Seq: j.seq, Role: api.ChatRoleUser, Content: message})
	c.pending++
	c.mu.Unlock()

	if !c.queue.Enqueue(j) {
		c.mu.Lock()
		c.pending--
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.changed()
	return j.done, nil
}

// Thinking reports whether a submission is waiting for its reply.
func (c *Conversation) Thinking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending > 0
}

// Entries returns a copy of the visible transcript.
func (c *Conversation) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Reset abandons queued and in-flight submissions and clears the
// transcript. Their turns resolve as discarded; a reply that arrives later
// is dropped.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.epoch++
	if c.cancel != nil {
		c.cancel()
	}
	c.pending = 0
	c.exchanges = nil
	c.entries = []Entry{{Seq: c.seq.Next(), Role: api.ChatRoleAssistant, Content: Greeting}}
	c.mu.Unlock()

	for _, j := range c.queue.Drain() {
		j.done <- Turn{Seq: j.seq, Message: j.message, Status: TurnDiscarded}
	}
	c.changed()
}

// Close stops the worker and waits for it. Pending turns resolve as
// discarded.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.baseCancel()
	c.queue.Close()
	<-c.done
}

func (c *Conversation) run() {
	defer close(c.done)
	for {
		if j, ok := c.queue.TryDequeue(); ok {
			c.process(j)
			continue
		}
		if c.queue.Done() {
			return
		}
		<-c.queue.Wait()
	}
}

func (c *Conversation) process(j *job) {
	c.mu.Lock()
	if j.epoch != c.epoch || c.base.Err() != nil {
		c.mu.Unlock()
		j.done <- Turn{Seq: j.seq, Message: j.message, Status: TurnDiscarded}
		return
	}
	ctx, cancel := context.WithTimeout(c.base, c.timeout)
	c.cancel = cancel
	history := make([]api.ChatMessage, len(c.exchanges))
	copy(history, c.exchanges)
	c.mu.Unlock()

	reply, err := c.replier.Reply(ctx, c.subjectID, history, j.message)
	cancel()

	c.mu.Lock()
	c.cancel = nil
	if j.epoch != c.epoch || c.base.Err() != nil {
		c.mu.Unlock()
		c.logger.Debug("dropping reply for abandoned message", zap.Int64("seq", j.seq))
		j.done <- Turn{Seq: j.seq, Message: j.message, Status: TurnDiscarded}
		return
	}

	turn := Turn{Seq: j.seq, Message: j.message}
	entry := Entry{Seq: c.seq.Next(), Role: api.ChatRoleAssistant}
	if err != nil {
		c.logger.Warn("assistant reply failed", zap.Int64("seq", j.seq), zap.Error(err))
		turn.Status, turn.Err, turn.Reply = TurnFailed, err, UnreachableReply
		entry.Content, entry.Failed = UnreachableReply, true
	} else {
		turn.Status, turn.Reply = TurnAnswered, reply
		entry.Content = reply
		c.exchanges = append(c.exchanges,
			api.ChatMessage{Role: api.ChatRoleUser, Content: j.message},
			api.ChatMessage{Role: api.ChatRoleAssistant, Content: reply},
		)
	}
	c.entries = append(c.entries, entry)
	c.pending--
	c.mu.Unlock()

	c.changed()
	j.done <- turn
}

func (c *Conversation) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}
