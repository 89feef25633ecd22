package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dmw-rewrite/dmw/internal/platform"
)

const (
	// forwardQueueMax bounds the in-memory log queue. On overflow the oldest
	// lines are dropped and the drop is counted into the next flush.
	forwardQueueMax = 200
	// forwardTailLines is how many queued lines one terminal message shows.
	forwardTailLines = 30
	// forwardContentMax keeps the rendered block under the platform's
	// message size limit.
	forwardContentMax = 1900
)

// LogForwarder mirrors engine log lines into one chat message that gets
// edited in place, terminal-style. Losing lines is acceptable; blocking the
// engine on the gateway is not.
type LogForwarder struct {
	mu      sync.Mutex
	queue   []string // rolling tail, capped at forwardQueueMax
	dropped int      // lines evicted since the last flush
	dirty   bool
	msgID   uint64

	safe    *platform.Safe
	channel uint64
}

// NewLogForwarder targets the given log channel. A zero channel disables
// forwarding entirely.
func NewLogForwarder(client platform.Client, channel uint64, log *slog.Logger) *LogForwarder {
	return &LogForwarder{safe: platform.NewSafe(client, log), channel: channel}
}

// Enqueue appends a line, dropping the oldest when the queue is full.
func (f *LogForwarder) Enqueue(line string) {
	if f.channel == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) >= forwardQueueMax {
		f.queue = f.queue[1:]
		f.dropped++
	}
	f.queue = append(f.queue, line)
	f.dirty = true
}

// Flush renders the queue tail into the terminal message, editing the
// previous one when it still exists and posting fresh otherwise.
func (f *LogForwarder) Flush(ctx context.Context) error {
	if f.channel == 0 {
		return nil
	}
	f.mu.Lock()
	if !f.dirty {
		f.mu.Unlock()
		return nil
	}
	lines := append([]string(nil), f.queue...)
	dropped := f.dropped
	f.dropped = 0
	f.dirty = false
	f.mu.Unlock()

	if len(lines) > forwardTailLines {
		lines = lines[len(lines)-forwardTailLines:]
	}
	var b strings.Builder
	b.WriteString("```\n")
	if dropped > 0 {
		fmt.Fprintf(&b, "… %d Zeilen verworfen\n", dropped)
	}
	for _, l := range lines {
		if b.Len()+len(l)+5 > forwardContentMax {
			break
		}
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString("```")
	content := b.String()

	if f.msgID != 0 {
		if f.safe.Edit(ctx, platform.Message{ChannelID: f.channel, MessageID: f.msgID}, content, nil) {
			return nil
		}
	}
	msg := f.safe.Send(ctx, f.channel, content, nil)
	if msg == nil {
		return fmt.Errorf("log forward send failed")
	}
	f.mu.Lock()
	f.msgID = msg.MessageID
	f.mu.Unlock()
	return nil
}

// Handler is a slog.Handler that mirrors records at or above a level into a
// LogForwarder while delegating to the inner handler.
type Handler struct {
	inner   slog.Handler
	forward *LogForwarder
	min     slog.Level
	attrs   []slog.Attr
}

// NewHandler wraps inner; records below min are not mirrored.
func NewHandler(inner slog.Handler, forward *LogForwarder, min slog.Level) *Handler {
	return &Handler{inner: inner, forward: forward, min: min}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	if rec.Level >= h.min {
		var b strings.Builder
		fmt.Fprintf(&b, "%s %-5s %s", rec.Time.Format(time.TimeOnly), rec.Level, rec.Message)
		for _, a := range h.attrs {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		}
		rec.Attrs(func(a slog.Attr) bool {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
			return true
		})
		h.forward.Enqueue(b.String())
	}
	return h.inner.Handle(ctx, rec)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		inner:   h.inner.WithAttrs(attrs),
		forward: h.forward,
		min:     h.min,
		attrs:   append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), forward: h.forward, min: h.min, attrs: h.attrs}
}
