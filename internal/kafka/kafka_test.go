package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
	fail   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broker unavailable")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func TestProducer_FlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, 16, zerolog.Nop())
	p.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.True(t, p.Publish([]byte("o-1"), []byte(`{}`), Headers("OrderAccepted", "1")...))
	}
	p.Close()
	p.WaitClosed()

	assert.Equal(t, 5, w.count())
	assert.True(t, w.closed)
	assert.False(t, p.Publish([]byte("o-1"), []byte(`{}`)), "publish after close is dropped")
}

func TestProducer_FlushesOnContextCancel(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, 16, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	p.Publish([]byte("k"), []byte("v"))
	cancel()
	p.WaitClosed()

	assert.Equal(t, 1, w.count())
	assert.True(t, w.closed)
}

func TestProducer_PublishNeverBlocksWhenFull(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, 1, zerolog.Nop())
	// loop not started: the inbox fills up

	assert.True(t, p.Publish([]byte("k"), []byte("1")))
	done := make(chan bool, 1)
	go func() { done <- p.Publish([]byte("k"), []byte("2")) }()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full inbox")
	}

	p.Start(context.Background())
	p.Close()
	p.WaitClosed()
}

func TestProducer_WriteErrorsAreSwallowed(t *testing.T) {
	w := &fakeWriter{fail: true}
	p := NewProducerWithWriter(w, 4, zerolog.Nop())
	p.Start(context.Background())

	assert.True(t, p.Publish([]byte("k"), []byte("v")))
	p.Close()
	p.WaitClosed()
	assert.Equal(t, 0, w.count())
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		r.mu.Lock()
		if len(r.queue) > 0 {
			m := r.queue[0]
			r.queue = r.queue[1:]
			r.mu.Unlock()
			return m, nil
		}
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumer_CommitsOnlySuccessfulMessages(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}}}
	c := NewConsumerWithReader(r, 2, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var handled sync.WaitGroup
	handled.Add(3)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Start(ctx, func(_ context.Context, m kafka.Message) error {
			defer handled.Done()
			if m.Offset == 2 {
				return errors.New("poison")
			}
			return nil
		})
	}()

	handled.Wait()
	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	assert.ElementsMatch(t, []int64{1, 3}, r.commits())
	assert.True(t, r.closed)
}

func TestHeaders_RoundTrip(t *testing.T) {
	m := kafka.Message{Headers: Headers("OrderPaid", "1")}
	assert.Equal(t, "OrderPaid", HeaderValue(m, "x-event-type"))
	assert.Equal(t, "1", HeaderValue(m, "x-event-version"))
	assert.Equal(t, "", HeaderValue(m, "missing"))
}

func TestUnwrapPayload(t *testing.T) {
	type p struct {
		OrderID string `json:"order_id"`
	}
	got, err := UnwrapPayload[p]([]byte(`{"order_id":"o-9"}`))
	require.NoError(t, err)
	assert.Equal(t, "o-9", got.OrderID)

	_, err = UnwrapPayload[p]([]byte(`{`))
	assert.ErrorContains(t, err, "decode payload")
}
