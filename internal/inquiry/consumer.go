// Package inquiry runs question-and-answer exchanges against the inquire endpoint and keeps the
// resulting conversation, updating the assistant message as the answer streams in.
package inquiry

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cloudband/ignis-admin/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport sends an inquiry to the backend. A non-success status must be reported as an error
// implementing StatusError.
type Transport interface {
	Inquire(ctx context.Context, req models.InquiryRequest) (models.InquiryResponse, error)
}

// State is the position of a Consumer in its exchange lifecycle.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

// Snapshot is an immutable view of a Consumer. Revision increases with every state change, so of
// two snapshots of one Consumer the one with the higher Revision is the newer.
type Snapshot struct {
	Messages []models.Message
	State    State
	Error    string
	Revision uint64
}

// Busy reports whether new submissions are currently refused.
func (s Snapshot) Busy() bool {
	return s.State != StateIdle
}

// Consumer owns one conversation. It accepts one inquiry at a time, appends the user message and an
// assistant placeholder, and replaces the placeholder content with the decoded answer after every
// chunk. On failure the placeholder is removed and the error text is kept until the next
// submission.
type Consumer struct {
	transport Transport
	validate  *validator.Validate
	logger    *zap.Logger
	defaultK  int
	onChange  func(Snapshot)

	mu       sync.Mutex
	messages []models.Message
	state    State
	errText  string
	revision uint64
	closed   bool
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithLogger sets the logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithDefaultK sets the result-count hint used when a submission passes zero.
func WithDefaultK(k int) Option {
	return func(c *Consumer) {
		c.defaultK = k
	}
}

// WithOnChange registers fn to receive a snapshot after every state change. Calls are made from
// the goroutine that caused the change and never overlap for a single exchange.
func WithOnChange(fn func(Snapshot)) Option {
	return func(c *Consumer) {
		c.onChange = fn
	}
}

// NewConsumer creates an idle Consumer sending inquiries through transport.
func NewConsumer(transport Transport, opts ...Option) *Consumer {
	c := &Consumer{
		transport: transport,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("module", "inquiry"))
	return c
}

// Submit starts an inquiry for query over the given document types. k is the result-count hint;
// zero falls back to the configured default.
//
// Validation failures (*Error of KindValidation), ErrBusy and ErrClosed are returned without
// touching the conversation. Otherwise the user message and the assistant placeholder are appended
// before Submit returns, the answer streams on a separate goroutine, and the returned channel
// delivers nil or the *Error that ended the exchange.
func (c *Consumer) Submit(ctx context.Context, query string, types []string, k int) (<-chan error, error) {
	if k == 0 {
		k = c.defaultK
	}
	req := models.InquiryRequest{
		Query:         strings.TrimSpace(query),
		DocumentTypes: slices.Clone(types),
		K:             k,
	}
	if err := c.validate.Struct(req); err != nil {
		return nil, &Error{
			Kind:    KindValidation,
			Message: validationMessage(err),
			Err:     err,
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, ErrBusy
	}

	now := time.Now()
	c.messages = append(c.messages,
		models.Message{
			ID:        uuid.New().String(),
			Role:      models.RoleUser,
			Content:   req.Query,
			Timestamp: now,
		},
		models.Message{
			ID:        uuid.New().String(),
			Role:      models.RoleAssistant,
			Timestamp: now,
		},
	)
	idx := len(c.messages) - 1
	c.errText = ""
	c.state = StateSending
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)

	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- c.run(ctx, req, idx)
	}()

	return done, nil
}

func (c *Consumer) run(ctx context.Context, req models.InquiryRequest, idx int) error {
	c.logger.Debug("Sending inquiry",
		zap.Int("queryLength", len(req.Query)),
		zap.Strings("documentTypes", req.DocumentTypes))

	if err := c.stream(ctx, req, idx); err != nil {
		ierr := classify(err)
		c.logger.Error("Inquiry failed",
			zap.Stringer("kind", ierr.Kind),
			zap.Int("status", ierr.Status),
			zap.Error(err))
		c.rollback(idx, ierr.Message)
		return ierr
	}

	c.finish()
	return nil
}

func (c *Consumer) stream(ctx context.Context, req models.InquiryRequest, idx int) error {
	res, err := c.transport.Inquire(ctx, req)
	if err != nil {
		return err
	}

	dec := newChunkDecoder()

	if res.Chunks == nil {
		c.replace(idx, dec.decode(res.Body, true))
		return nil
	}

	var answer strings.Builder
	for chunk, err := range res.Chunks {
		if err != nil {
			return err
		}
		answer.WriteString(dec.decode(chunk, false))
		if !c.replace(idx, answer.String()) {
			return nil
		}
	}

	if tail := dec.decode(nil, true); tail != "" {
		answer.WriteString(tail)
		c.replace(idx, answer.String())
	}
	return nil
}

// replace sets the content of the message at idx. It reports false once the consumer is closed.
func (c *Consumer) replace(idx int, content string) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if idx < len(c.messages) {
		c.messages[idx].Content = content
	}
	c.state = StateStreaming
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return true
}

func (c *Consumer) rollback(idx int, errText string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if idx < len(c.messages) && c.messages[idx].Role == models.RoleAssistant {
		c.messages = slices.Delete(c.messages, idx, idx+1)
	}
	c.errText = errText
	c.state = StateIdle
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

func (c *Consumer) finish() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.revision++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// Snapshot returns the current conversation state.
func (c *Consumer) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Messages returns a copy of the conversation.
func (c *Consumer) Messages() []models.Message {
	return c.Snapshot().Messages
}

// Close stops all further state updates and notifications. An inquiry in flight is not aborted,
// its remaining output is discarded.
func (c *Consumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Consumer) snapshotLocked() Snapshot {
	return Snapshot{
		Messages: slices.Clone(c.messages),
		State:    c.state,
		Error:    c.errText,
		Revision: c.revision,
	}
}

func (c *Consumer) notify(snap Snapshot) {
	if c.onChange != nil {
		c.onChange(snap)
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid inquiry."
	}

	switch verrs[0].Field() {
	case "Query":
		return "Enter a question to ask."
	case "DocumentTypes":
		return "Select at least one document type."
	default:
		return "Invalid inquiry."
	}
}
