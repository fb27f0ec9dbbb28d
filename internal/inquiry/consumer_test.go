package inquiry_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/cloudband/ignis-admin/internal/inquiry"
	"github.com/cloudband/ignis-admin/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	chunks    [][]byte
	body      []byte
	whole     bool
	streamErr error
	err       error
	block     chan struct{}

	mu    sync.Mutex
	calls int
	reqs  []models.InquiryRequest
}

type mockStatusError struct {
	status  int
	message string
}

type recorder struct {
	mu    sync.Mutex
	snaps []inquiry.Snapshot
}

func TestConsumerStreamsChunks(t *testing.T) {
	tr := &mockTransport{chunks: textChunks("Hel", "lo, ", "world")}
	rec := &recorder{}
	c := inquiry.NewConsumer(tr, inquiry.WithOnChange(rec.record))

	done, err := c.Submit(context.Background(), "greet me", []string{"policy"}, 0)
	require.NoError(t, err)
	require.NoError(t, <-done)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "greet me", msgs[0].Content)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello, world", msgs[1].Content)

	snaps := rec.all()
	require.Len(t, snaps, 5, "submit, three chunks, finish")

	first, last := snaps[0], snaps[len(snaps)-1]
	assert.Equal(t, inquiry.StateSending, first.State)
	assert.Equal(t, "", first.Messages[1].Content)
	assert.False(t, last.Busy())

	var intermediate []string
	for _, s := range snaps[1 : len(snaps)-1] {
		assert.True(t, s.Busy())
		intermediate = append(intermediate, s.Messages[1].Content)
	}
	assert.Equal(t, []string{"Hel", "Hello, ", "Hello, world"}, intermediate)

	prev := ""
	for _, s := range snaps {
		require.Len(t, s.Messages, 2)
		cur := s.Messages[1].Content
		assert.True(t, strings.HasPrefix(cur, prev), "content shrank from %q to %q", prev, cur)
		prev = cur
	}
}

func TestConsumerRevisionIncreases(t *testing.T) {
	tr := &mockTransport{chunks: textChunks("a", "b")}
	rec := &recorder{}
	c := inquiry.NewConsumer(tr, inquiry.WithOnChange(rec.record))
	assert.Zero(t, c.Snapshot().Revision)

	for range 2 {
		done, err := c.Submit(context.Background(), "q", []string{"faq"}, 0)
		require.NoError(t, err)
		require.NoError(t, <-done)
	}

	_, err := c.Submit(context.Background(), " ", []string{"faq"}, 0)
	require.Error(t, err)

	snaps := rec.all()
	require.Len(t, snaps, 8)
	for i := 1; i < len(snaps); i++ {
		assert.Greater(t, snaps[i].Revision, snaps[i-1].Revision)
	}
	assert.Equal(t, snaps[len(snaps)-1].Revision, c.Snapshot().Revision, "validation failure changes nothing")
}

func TestConsumerWholeBody(t *testing.T) {
	tr := &mockTransport{whole: true, body: []byte("The policy covers remote work.")}
	c := inquiry.NewConsumer(tr)

	done, err := c.Submit(context.Background(), "what does it cover?", []string{"policy"}, 0)
	require.NoError(t, err)
	require.NoError(t, <-done)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "The policy covers remote work.", msgs[1].Content)
	assert.Equal(t, inquiry.StateIdle, c.Snapshot().State)
}

func TestConsumerSplitMultibyte(t *testing.T) {
	const answer = "Résumé: 世界 🚀 done"

	// One byte per chunk splits every multi-byte sequence.
	var chunks [][]byte
	for _, b := range []byte(answer) {
		chunks = append(chunks, []byte{b})
	}

	tr := &mockTransport{chunks: chunks}
	rec := &recorder{}
	c := inquiry.NewConsumer(tr, inquiry.WithOnChange(rec.record))

	done, err := c.Submit(context.Background(), "q", []string{"manual"}, 0)
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, answer, c.Messages()[1].Content)
	for _, s := range rec.all() {
		assert.NotContains(t, s.Messages[len(s.Messages)-1].Content, "�")
	}
}

func TestConsumerEmptyStream(t *testing.T) {
	tr := &mockTransport{}
	c := inquiry.NewConsumer(tr)

	done, err := c.Submit(context.Background(), "anything?", []string{"policy"}, 0)
	require.NoError(t, err)
	require.NoError(t, <-done)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Empty(t, msgs[1].Content)
	assert.Empty(t, c.Snapshot().Error)
}

func TestConsumerFailures(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
		wantKind  inquiry.Kind
		wantText  string
	}{
		{
			name:      "Connection refused before any chunk",
			transport: &mockTransport{err: errors.New("dial tcp: connection refused")},
			wantKind:  inquiry.KindTransport,
			wantText:  inquiry.FallbackTransportMessage,
		},
		{
			name: "Connection reset mid-stream",
			transport: &mockTransport{
				chunks:    textChunks("partial ", "answer"),
				streamErr: errors.New("read: connection reset by peer"),
			},
			wantKind: inquiry.KindTransport,
			wantText: inquiry.FallbackTransportMessage,
		},
		{
			name:      "Non-success status with message",
			transport: &mockTransport{err: mockStatusError{status: 429, message: "quota exceeded"}},
			wantKind:  inquiry.KindResponse,
			wantText:  "quota exceeded",
		},
		{
			name:      "Non-success status with unparsable body",
			transport: &mockTransport{err: fmt.Errorf("inquire: %w", mockStatusError{status: 502})},
			wantKind:  inquiry.KindResponse,
			wantText:  inquiry.FallbackResponseMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := inquiry.NewConsumer(tt.transport)
			before := len(c.Messages())

			done, err := c.Submit(context.Background(), "why?", []string{"policy"}, 0)
			require.NoError(t, err)

			err = <-done
			var ierr *inquiry.Error
			require.ErrorAs(t, err, &ierr)
			assert.Equal(t, tt.wantKind, ierr.Kind)
			assert.Equal(t, tt.wantText, ierr.Error())

			msgs := c.Messages()
			require.Len(t, msgs, before+1)
			assert.Equal(t, models.RoleUser, msgs[0].Role)

			snap := c.Snapshot()
			assert.Equal(t, tt.wantText, snap.Error)
			assert.False(t, snap.Busy())
		})
	}
}

func TestConsumerErrorClearedOnNextSubmit(t *testing.T) {
	tr := &mockTransport{err: errors.New("offline")}
	c := inquiry.NewConsumer(tr)

	done, err := c.Submit(context.Background(), "first", []string{"policy"}, 0)
	require.NoError(t, err)
	require.Error(t, <-done)
	require.NotEmpty(t, c.Snapshot().Error)

	tr.mu.Lock()
	tr.err = nil
	tr.chunks = textChunks("ok")
	tr.mu.Unlock()

	done, err = c.Submit(context.Background(), "second", []string{"policy"}, 0)
	require.NoError(t, err)
	assert.Empty(t, c.Snapshot().Error)
	require.NoError(t, <-done)

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, "ok", msgs[2].Content)
}

func TestConsumerValidation(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		types    []string
		wantText string
	}{
		{name: "Blank query", query: "   \t\n", types: []string{"policy"}, wantText: "Enter a question to ask."},
		{name: "No types", query: "hello", types: nil, wantText: "Select at least one document type."},
		{name: "Empty types", query: "hello", types: []string{}, wantText: "Select at least one document type."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &mockTransport{chunks: textChunks("never")}
			rec := &recorder{}
			c := inquiry.NewConsumer(tr, inquiry.WithOnChange(rec.record))

			done, err := c.Submit(context.Background(), tt.query, tt.types, 0)
			assert.Nil(t, done)

			var ierr *inquiry.Error
			require.ErrorAs(t, err, &ierr)
			assert.Equal(t, inquiry.KindValidation, ierr.Kind)
			assert.Equal(t, tt.wantText, ierr.Message)

			assert.Empty(t, c.Messages())
			assert.Empty(t, rec.all())
			assert.Equal(t, 0, tr.callCount())
		})
	}
}

func TestConsumerBusy(t *testing.T) {
	tr := &mockTransport{chunks: textChunks("answer"), block: make(chan struct{})}
	c := inquiry.NewConsumer(tr)

	done, err := c.Submit(context.Background(), "first", []string{"policy"}, 0)
	require.NoError(t, err)
	assert.True(t, c.Snapshot().Busy())

	second, err := c.Submit(context.Background(), "second", []string{"policy"}, 0)
	assert.Nil(t, second)
	require.ErrorIs(t, err, inquiry.ErrBusy)
	assert.Len(t, c.Messages(), 2)

	close(tr.block)
	require.NoError(t, <-done)

	assert.Equal(t, 1, tr.callCount())
	assert.False(t, c.Snapshot().Busy())
}

func TestConsumerRequest(t *testing.T) {
	tr := &mockTransport{}
	c := inquiry.NewConsumer(tr, inquiry.WithDefaultK(5))

	done, err := c.Submit(context.Background(), "  padded question  ", []string{"policy", "manual"}, 0)
	require.NoError(t, err)
	require.NoError(t, <-done)

	done, err = c.Submit(context.Background(), "explicit", []string{"manual"}, 2)
	require.NoError(t, err)
	require.NoError(t, <-done)

	reqs := tr.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, models.InquiryRequest{
		Query:         "padded question",
		DocumentTypes: []string{"policy", "manual"},
		K:             5,
	}, reqs[0])
	assert.Equal(t, 2, reqs[1].K)
	assert.Equal(t, "padded question", c.Messages()[0].Content)
}

func TestConsumerClose(t *testing.T) {
	release := make(chan struct{})
	first := make(chan struct{})
	tr := &chanTransport{chunks: func(yield func([]byte, error) bool) {
		if !yield([]byte("before close"), nil) {
			return
		}
		close(first)
		<-release
		yield([]byte(" after close"), nil)
	}}

	rec := &recorder{}
	c := inquiry.NewConsumer(tr, inquiry.WithOnChange(rec.record))

	done, err := c.Submit(context.Background(), "q", []string{"policy"}, 0)
	require.NoError(t, err)

	<-first
	c.Close()
	seen := len(rec.all())
	close(release)
	require.NoError(t, <-done)

	assert.Len(t, rec.all(), seen)
	assert.Equal(t, "before close", c.Messages()[1].Content)

	_, err = c.Submit(context.Background(), "again", []string{"policy"}, 0)
	require.ErrorIs(t, err, inquiry.ErrClosed)
}

type chanTransport struct {
	chunks iter.Seq2[[]byte, error]
}

func (c *chanTransport) Inquire(context.Context, models.InquiryRequest) (models.InquiryResponse, error) {
	return models.InquiryResponse{Chunks: c.chunks}, nil
}

func textChunks(parts ...string) [][]byte {
	res := make([][]byte, len(parts))
	for i, p := range parts {
		res[i] = []byte(p)
	}
	return res
}

func (m *mockTransport) Inquire(_ context.Context, req models.InquiryRequest) (models.InquiryResponse, error) {
	m.mu.Lock()
	m.calls++
	m.reqs = append(m.reqs, req)
	chunks, body, whole, streamErr, err, block := m.chunks, m.body, m.whole, m.streamErr, m.err, m.block
	m.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return models.InquiryResponse{}, err
	}
	if whole {
		return models.InquiryResponse{Body: body}, nil
	}

	return models.InquiryResponse{
		Chunks: func(yield func([]byte, error) bool) {
			for _, ch := range chunks {
				if !yield(ch, nil) {
					return
				}
			}
			if streamErr != nil {
				yield(nil, streamErr)
			}
		},
	}, nil
}

func (m *mockTransport) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockTransport) requests() []models.InquiryRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reqs
}

func (e mockStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

func (e mockStatusError) StatusCode() int {
	return e.status
}

func (e mockStatusError) PayloadMessage() string {
	return e.message
}

func (r *recorder) record(s inquiry.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []inquiry.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]inquiry.Snapshot(nil), r.snaps...)
}
