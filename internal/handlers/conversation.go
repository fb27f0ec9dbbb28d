package handlers

import (
	"context"
	"fmt"
	"html/template"
	"slices"
	"sync"
	"time"

	"github.com/cloudband/ignis-admin/internal/inquiry"
	"github.com/cloudband/ignis-admin/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/tmaxmax/go-sse"
	"go.uber.org/zap"
)

// conversation is the inquiry state of one session: the consumer holding the messages and the
// document types the next inquiry is scoped to.
type conversation struct {
	consumer *inquiry.Consumer
	// epoch offsets the consumer revisions so a conversation that replaces an expired one still
	// renders newer than anything the page shows.
	epoch uint64

	mu        sync.Mutex
	selection *inquiry.Selection
}

type conversationView struct {
	Messages []messageView
	Busy     bool
	Error    string
	// Revision orders renderings of one conversation; the page drops fragments older than the
	// one it shows.
	Revision uint64
}

type messageView struct {
	ID        string
	Role      string
	Content   template.HTML
	Timestamp time.Time
	Pending   bool
}

type typeToggleView struct {
	Value    string
	Label    string
	Included bool
}

// SSE event types for conversation updates.
var (
	conversationSSEType = sse.Type("conversation")
	closeSSEType        = sse.Type("closeConversation")
)

// conversation returns the conversation of a session, creating it on first use. Creating one
// fetches the public document types, which all start out included.
func (m Main) conversation(ctx context.Context, sessionID string) (*conversation, error) {
	if v, ok := m.conversations.Get(sessionID); ok {
		conv := v.(*conversation)
		// Refresh the idle expiry.
		m.conversations.SetDefault(sessionID, conv)
		return conv, nil
	}

	types, err := m.types.Public(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load document types: %w", err)
	}

	conv := &conversation{
		epoch:     uint64(time.Now().UnixMicro()),
		selection: inquiry.NewSelection(types),
	}
	conv.consumer = inquiry.NewConsumer(m.backend,
		inquiry.WithLogger(m.logger),
		inquiry.WithDefaultK(m.cfg.InquiryK),
		inquiry.WithOnChange(func(snap inquiry.Snapshot) {
			m.publishConversation(sessionID, conv.epoch, snap)
		}),
	)

	if err := m.conversations.Add(sessionID, conv, cache.DefaultExpiration); err != nil {
		// A concurrent request of the same session won the race.
		conv.consumer.Close()
		if v, ok := m.conversations.Get(sessionID); ok {
			return v.(*conversation), nil
		}
		return nil, fmt.Errorf("failed to register conversation: %w", err)
	}
	return conv, nil
}

func (c *conversation) selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.Selected()
}

// toggle flips t and reports whether t is a known type.
func (c *conversation) toggle(t string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !slices.Contains(c.selection.Types(), t) {
		return false
	}
	c.selection.Toggle(t)
	return true
}

func (c *conversation) toggles() []typeToggleView {
	c.mu.Lock()
	defer c.mu.Unlock()

	types := c.selection.Types()
	views := make([]typeToggleView, len(types))
	for i, t := range types {
		views[i] = typeToggleView{
			Value:    t,
			Label:    models.DocumentTypeLabel(t),
			Included: c.selection.Included(t),
		}
	}
	return views
}

func (m Main) conversationView(epoch uint64, snap inquiry.Snapshot) conversationView {
	view := conversationView{
		Messages: make([]messageView, len(snap.Messages)),
		Busy:     snap.Busy(),
		Error:    snap.Error,
		Revision: epoch + snap.Revision,
	}

	for i, msg := range snap.Messages {
		mv := messageView{
			ID:        msg.ID,
			Role:      string(msg.Role),
			Timestamp: msg.Timestamp,
		}
		switch {
		case msg.Role == models.RoleUser:
			mv.Content = template.HTML(template.HTMLEscapeString(msg.Content))
		case msg.Content == "":
			// Only the last assistant message can still be waiting for its first chunk.
			mv.Pending = view.Busy && i == len(snap.Messages)-1
		default:
			mv.Content = m.renderMarkdown(msg.Content)
		}
		view.Messages[i] = mv
	}
	return view
}

// publishConversation pushes the re-rendered conversation to the session's SSE topic.
func (m Main) publishConversation(sessionID string, epoch uint64, snap inquiry.Snapshot) {
	html, err := m.renderString("conversation", m.conversationView(epoch, snap))
	if err != nil {
		m.logger.Error("Failed to render conversation",
			zap.String("sessionID", sessionID),
			zap.Error(err))
		return
	}

	msg := sse.Message{Type: conversationSSEType}
	msg.AppendData(html)

	if err := m.sseSrv.Publish(&msg, conversationTopic(sessionID)); err != nil {
		m.logger.Error("Failed to publish conversation",
			zap.String("sessionID", sessionID),
			zap.Error(err))
	}
}
