package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	lists  map[string][][]byte
	zsets  map[string]map[string]time.Time
	pinged bool
}

func newMemStore() *memStore {
	return &memStore{lists: map[string][][]byte{}, zsets: map[string]map[string]time.Time{}}
}

func (s *memStore) ping(context.Context) error {
	s.pinged = true
	return nil
}

func (s *memStore) push(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = append([][]byte{data}, s.lists[key]...)
	return nil
}

func (s *memStore) pop(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		l := s.lists[key]
		if n := len(l); n > 0 {
			v := l[n-1]
			s.lists[key] = l[:n-1]
			s.mu.Unlock()
			return v, nil
		}
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return nil, errEmpty
}

func (s *memStore) schedule(_ context.Context, key string, data []byte, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.zsets[key] == nil {
		s.zsets[key] = map[string]time.Time{}
	}
	s.zsets[key][string(data)] = at
	return nil
}

func (s *memStore) due(_ context.Context, key string, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for m, at := range s.zsets[key] {
		if !at.After(now) {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memStore) promote(_ context.Context, from, to, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zsets[from][member]; !ok {
		return nil
	}
	delete(s.zsets[from], member)
	s.lists[to] = append([][]byte{[]byte(member)}, s.lists[to]...)
	return nil
}

func (s *memStore) length(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.lists[key])), nil
}

type payload struct {
	Symbol string `json:"symbol"`
}

type recordingJob struct {
	mu    sync.Mutex
	seen  []string
	fail  int
	calls int
}

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "record" }

func (j *recordingJob) Handle(_ context.Context, raw json.RawMessage) error {
	p, err := ParsePayload[payload](raw)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls++
	if j.calls <= j.fail {
		return errors.New("boom")
	}
	j.seen = append(j.seen, p.Symbol)
	return nil
}

func (j *recordingJob) snapshot() ([]string, int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.seen...), j.calls
}

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload[payload](json.RawMessage(`{"symbol":"BTCUSDT"}`))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", p.Symbol)

	_, err = ParsePayload[payload](nil)
	assert.Error(t, err)

	_, err = ParsePayload[payload](json.RawMessage(`[`))
	assert.Error(t, err)
}

func TestEnqueueRequiresRegisteredJob(t *testing.T) {
	q := newQueue(nil, Config{}, newMemStore())
	_, err := q.Enqueue(context.Background(), "unknown", payload{})
	assert.Error(t, err)
}

func TestWorkerProcessesMessages(t *testing.T) {
	st := newMemStore()
	q := newQueue(nil, Config{Workers: 2, PollTimeout: 20 * time.Millisecond}, st)
	job := &recordingJob{}
	q.RegisterJob(job)
	q.RegisterJob(job)

	ctx := context.Background()
	id, err := q.Enqueue(ctx, "record", payload{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.NoError(t, q.Start(ctx))
	assert.True(t, st.pinged)
	assert.Error(t, q.Start(ctx))

	assert.Eventually(t, func() bool {
		seen, _ := job.snapshot()
		return len(seen) == 1
	}, time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, q.Stop(stopCtx))
	require.NoError(t, q.Stop(stopCtx))
}

func TestFailedMessageIsRetriedThenDeadLettered(t *testing.T) {
	st := newMemStore()
	q := newQueue(nil, Config{RetryLimit: 1, RetryDelay: time.Second}, st)
	job := &recordingJob{fail: 10}
	q.RegisterJob(job)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }
	ctx := context.Background()

	msg := Message{ID: "m1", Type: "record", Payload: json.RawMessage(`{"symbol":"ETHUSDT"}`)}
	q.processMessage(ctx, msg)

	due, _ := st.due(ctx, q.retryKey(), now)
	assert.Empty(t, due, "retry must wait for the delay")

	now = now.Add(2 * time.Second)
	q.promoteDue(ctx)
	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, depth)

	data, err := st.pop(ctx, q.queueKey(), 10*time.Millisecond)
	require.NoError(t, err)
	q.handleRaw(ctx, data)

	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, dead)
	_, calls := job.snapshot()
	assert.Equal(t, 2, calls)
}

func TestUnknownTypeGoesToDeadLetters(t *testing.T) {
	st := newMemStore()
	q := newQueue(nil, Config{}, st)
	q.processMessage(context.Background(), Message{ID: "x", Type: "nope"})
	dead, _ := q.DeadLetters(context.Background())
	assert.EqualValues(t, 1, dead)
}
