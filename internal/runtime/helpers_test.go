package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	loggingpkg "github.com/drblury/routeflow/internal/runtime/logging"
)

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

type testPublisher struct {
	mu        sync.Mutex
	published []*message.Message
	topics    []string
	err       error
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for _, msg := range messages {
		p.topics = append(p.topics, topic)
		p.published = append(p.published, msg)
	}
	return nil
}

func (p *testPublisher) Close() error { return nil }

func (p *testPublisher) Messages() []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*message.Message(nil), p.published...)
}

type testSubscriber struct {
	err error
}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error { return nil }

type loggedEntry struct {
	level  string
	msg    string
	fields loggingpkg.LogFields
	err    error
}

// recordingLogger shares its entries with every child created by With.
type recordingLogger struct {
	mu      *sync.Mutex
	entries []loggedEntry
	parent  *recordingLogger
}

func (r *recordingLogger) root() *recordingLogger {
	if r.parent != nil {
		return r.parent.root()
	}
	if r.mu == nil {
		r.mu = &sync.Mutex{}
	}
	return r
}

func (r *recordingLogger) add(e loggedEntry) {
	root := r.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.entries = append(root.entries, e)
}

func (r *recordingLogger) messages() []string {
	root := r.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	out := make([]string, 0, len(root.entries))
	for _, e := range root.entries {
		out = append(out, e.msg)
	}
	return out
}

func (r *recordingLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	r.root()
	return &recordingLogger{parent: r}
}

func (r *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) {
	r.add(loggedEntry{level: "debug", msg: msg, fields: fields})
}

func (r *recordingLogger) Info(msg string, fields loggingpkg.LogFields) {
	r.add(loggedEntry{level: "info", msg: msg, fields: fields})
}

func (r *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	r.add(loggedEntry{level: "error", msg: msg, fields: fields, err: err})
}

func (r *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) {
	r.add(loggedEntry{level: "trace", msg: msg, fields: fields})
}
