package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-chat-be/internal/dto"
	"multimodal-chat-be/pkg/embedding/sparse"
	"multimodal-chat-be/pkg/vectorindex"
)

func newTestEncoder(t *testing.T) *sparse.TfidfEncoder {
	t.Helper()
	return sparse.NewTfidfEncoder(filepath.Join(t.TempDir(), "vocab.json"))
}

type recordingStore struct {
	mu      sync.Mutex
	deleted []string
	failKey string
}

func (r *recordingStore) PutTemp(ctx context.Context, sessionID, filename string, body io.Reader, contentType string) (string, error) {
	return "tmp/" + sessionID + "/" + filename, nil
}

func (r *recordingStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (r *recordingStore) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key == r.failKey {
		return errors.New("object store unavailable")
	}
	r.deleted = append(r.deleted, key)
	return nil
}

func (r *recordingStore) URL(key string) string { return "http://store.local/" + key }

func (r *recordingStore) deletedKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.deleted...)
}

func TestCleanupService_DeletesTempAssets(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	store := &recordingStore{failKey: "tmp/s1/broken.png"}
	svc := NewCleanupService(pubSub, "SESSION_CLEANUP", store, noopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Consume(ctx))

	payload, err := json.Marshal(dto.CleanupSessionMessage{
		SessionID: "s1",
		Keys:      []string{"tmp/s1/a.png", "tmp/s1/broken.png", "", "tmp/s1/b.mp3"},
	})
	require.NoError(t, err)
	require.NoError(t, pubSub.Publish("SESSION_CLEANUP", message.NewMessage(watermill.NewUUID(), payload)))

	// One key fails, one is empty; the rest are deleted and the message
	// is still acked.
	assert.Eventually(t, func() bool {
		keys := store.deletedKeys()
		return len(keys) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"tmp/s1/a.png", "tmp/s1/b.mp3"}, store.deletedKeys())
}

func TestCleanupService_MalformedMessageDoesNotStallConsumer(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	store := &recordingStore{}
	svc := NewCleanupService(pubSub, "SESSION_CLEANUP", store, noopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Consume(ctx))

	require.NoError(t, pubSub.Publish("SESSION_CLEANUP", message.NewMessage(watermill.NewUUID(), []byte("not json"))))

	payload, err := json.Marshal(dto.CleanupSessionMessage{SessionID: "s2", Keys: []string{"tmp/s2/a.png"}})
	require.NoError(t, err)
	require.NoError(t, pubSub.Publish("SESSION_CLEANUP", message.NewMessage(watermill.NewUUID(), payload)))

	// The malformed message is dropped and the consumer keeps going.
	assert.Eventually(t, func() bool {
		return len(store.deletedKeys()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"tmp/s2/a.png"}, store.deletedKeys())
}

type scrollIndex struct {
	points []vectorindex.Point
	err    error
}

func (s *scrollIndex) Query(ctx context.Context, q vectorindex.Query) ([]vectorindex.Point, error) {
	return nil, nil
}

func (s *scrollIndex) Scroll(ctx context.Context, collection string, limit int) ([]vectorindex.Point, error) {
	return s.points, s.err
}

func (s *scrollIndex) Capabilities() vectorindex.Capabilities {
	return vectorindex.Capabilities{Sparse: true}
}

func TestSparseAdminService_Bootstrap(t *testing.T) {
	idx := &scrollIndex{points: []vectorindex.Point{
		{ID: "1", Payload: map[string]any{"text": "alpha deployment runbook"}},
		{ID: "2", Payload: map[string]any{"text": "beta incident report"}},
		{ID: "3", Payload: map[string]any{"text": ""}},
		{ID: "4", Payload: map[string]any{}},
	}}
	enc := newTestEncoder(t)
	svc := NewSparseAdminService(idx, enc, noopLogger{})

	resp, err := svc.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, resp.DocumentCount)
	assert.True(t, enc.IsFitted())

	// A second bootstrap is rejected.
	_, err = svc.Bootstrap(context.Background())
	require.Error(t, err)
}

func TestSparseAdminService_EmptyCorpus(t *testing.T) {
	idx := &scrollIndex{}
	svc := NewSparseAdminService(idx, newTestEncoder(t), noopLogger{})

	_, err := svc.Bootstrap(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No text chunks")
}
