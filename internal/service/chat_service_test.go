package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-chat-be/internal/dto"
	"multimodal-chat-be/internal/pkg/serverutils"
	"multimodal-chat-be/pkg/asr"
	"multimodal-chat-be/pkg/embedding/clip"
	"multimodal-chat-be/pkg/embedding/sparse"
	"multimodal-chat-be/pkg/llm"
	"multimodal-chat-be/pkg/rag/normalize"
	"multimodal-chat-be/pkg/rag/rerank"
	"multimodal-chat-be/pkg/rag/response"
	"multimodal-chat-be/pkg/rag/retriever"
	"multimodal-chat-be/pkg/rag/router"
	"multimodal-chat-be/pkg/rag/session"
	"multimodal-chat-be/pkg/vectorindex"
)

type noopLogger struct{}

func (noopLogger) Debug(module, message string, details map[string]interface{}) {}
func (noopLogger) Info(module, message string, details map[string]interface{})  {}
func (noopLogger) Warn(module, message string, details map[string]interface{})  {}
func (noopLogger) Error(module, message string, details map[string]interface{}) {}
func (noopLogger) Sync() error                                                  { return nil }

type countingIndex struct {
	mu      sync.Mutex
	count   int
	results map[string][]vectorindex.Point
}

func (f *countingIndex) Query(ctx context.Context, q vectorindex.Query) ([]vectorindex.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return f.results[q.Collection+"/"+q.Using], nil
}

func (f *countingIndex) Scroll(ctx context.Context, collection string, limit int) ([]vectorindex.Point, error) {
	return nil, nil
}

func (f *countingIndex) Capabilities() vectorindex.Capabilities {
	return vectorindex.Capabilities{}
}

func (f *countingIndex) queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

type constEmbedder struct{}

func (constEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (constEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (constEmbedder) Dimension() int { return 2 }

type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
	answer  string
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, history[len(history)-1].Content)
	return f.answer, nil
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}})
}

type chatFixture struct {
	svc      IChatService
	sessions session.Store
	index    *countingIndex
	llm      *fakeLLM
	pubSub   *gochannel.GoChannel
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding": [1.0, 0.0]}`))
	}))
	t.Cleanup(srv.Close)

	idx := &countingIndex{results: map[string][]vectorindex.Point{
		"text_collection/dense": {
			{ID: "t1", Score: 0.9, Payload: map[string]any{"text": "audit found two findings", "filename": "audit.pdf"}},
			{ID: "t2", Score: 0.8, Payload: map[string]any{"text": "remediation completed in june", "filename": "remediation.pdf"}},
		},
	}}

	emb := constEmbedder{}
	enc := sparse.NewTfidfEncoder(filepath.Join(t.TempDir(), "vocab.json"))
	clipEnc := clip.NewEncoder(srv.URL, nil, emb)
	ret := retriever.NewRetriever(idx, emb, enc, clipEnc, rerank.NewReranker(emb))
	rt := router.NewRouter(ret, noopLogger{})

	sessions := session.NewMemoryStore()
	normalizer := normalize.NewNormalizer(nil, clipEnc, nil, noopLogger{})
	provider := &fakeLLM{answer: "canned answer"}
	generator := response.NewGenerator(provider)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))

	svc := NewChatService(sessions, normalizer, rt, generator, pubSub, "SESSION_CLEANUP", nil, noopLogger{})
	return &chatFixture{svc: svc, sessions: sessions, index: idx, llm: provider, pubSub: pubSub}
}

func TestChat_KnowledgeTurn(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Chat(ctx, "owner-1", &dto.ChatTurnRequest{
		Message: "what were the findings of the safety audit",
	}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "canned answer", resp.Answer)
	assert.Equal(t, "knowledge", resp.Intent)
	assert.False(t, resp.LowConfidence)
	require.Len(t, resp.Citations, 2)
	assert.Equal(t, 1, resp.Citations[0].ID)
	assert.Equal(t, "audit.pdf", resp.Citations[0].FileID)

	// History and reusable context persisted on the session.
	sess, err := f.sessions.Get(ctx, resp.SessionID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Len(t, sess.History, 2)
	assert.Equal(t, "user", sess.History[0].Role)
	assert.True(t, sess.CanReuseContext())
}

func TestChat_ChitchatSkipsRetrieval(t *testing.T) {
	f := newChatFixture(t)

	resp, err := f.svc.Chat(context.Background(), "owner-1", &dto.ChatTurnRequest{
		Message: "hello there",
	}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "chitchat", resp.Intent)
	assert.Empty(t, resp.Citations)
	assert.Zero(t, f.index.queries())
}

func TestChat_ElaborateReusesContextExactlyOnce(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	first, err := f.svc.Chat(ctx, "owner-1", &dto.ChatTurnRequest{
		Message: "what were the findings of the safety audit",
	}, nil, nil)
	require.NoError(t, err)
	afterFirst := f.index.queries()
	require.Positive(t, afterFirst)

	// Reuse turn: no new retrieval, previous citations carried over.
	second, err := f.svc.Chat(ctx, "owner-1", &dto.ChatTurnRequest{
		Message:   "tell me more about the second finding",
		SessionID: first.SessionID,
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, afterFirst, f.index.queries())
	assert.Equal(t, len(first.Citations), len(second.Citations))
	assert.False(t, second.LowConfidence)

	// The allowance is spent; the next elaborate turn retrieves again.
	_, err = f.svc.Chat(ctx, "owner-1", &dto.ChatTurnRequest{
		Message:   "tell me more about the first finding",
		SessionID: first.SessionID,
	}, nil, nil)
	require.NoError(t, err)
	assert.Greater(t, f.index.queries(), afterFirst)
}

func TestChat_EmptyTurnReturnsFallback(t *testing.T) {
	f := newChatFixture(t)

	resp, err := f.svc.Chat(context.Background(), "owner-1", &dto.ChatTurnRequest{}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "I couldn't understand your query. Please try again.", resp.Answer)
	assert.Empty(t, resp.Citations)
	assert.Zero(t, f.index.queries())
}

func TestChat_RejectsForeignSession(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	owned, err := f.sessions.GetOrCreate(ctx, "owner-1", "")
	require.NoError(t, err)

	_, err = f.svc.Chat(ctx, "owner-2", &dto.ChatTurnRequest{
		Message:   "what is in my documents",
		SessionID: owned.ID,
	}, nil, nil)
	require.Error(t, err)

	apiErr, ok := err.(*serverutils.ApiError)
	require.True(t, ok)
	assert.Equal(t, 403, apiErr.Status)
}

func TestEndSession_PublishesCleanupAndDeletes(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	sess, err := f.sessions.GetOrCreate(ctx, "owner-1", "")
	require.NoError(t, err)
	sess.TempAssets.Images = []string{"tmp/s/img.png"}
	sess.TempAssets.Audio = []string{"tmp/s/memo.mp3"}
	require.NoError(t, f.sessions.Save(ctx, sess))

	messages, err := f.pubSub.Subscribe(ctx, "SESSION_CLEANUP")
	require.NoError(t, err)

	require.NoError(t, f.svc.EndSession(ctx, "owner-1", sess.ID))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Contains(t, string(msg.Payload), "tmp/s/img.png")
		assert.Contains(t, string(msg.Payload), "tmp/s/memo.mp3")
	case <-time.After(2 * time.Second):
		t.Fatal("no cleanup message published")
	}

	gone, err := f.sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	// Ending again is a no-op.
	assert.NoError(t, f.svc.EndSession(ctx, "owner-1", sess.ID))
}

func TestEndSession_RejectsForeignSession(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	sess, err := f.sessions.GetOrCreate(ctx, "owner-1", "")
	require.NoError(t, err)

	err = f.svc.EndSession(ctx, "owner-2", sess.ID)
	require.Error(t, err)
}

func TestCitation(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Chat(ctx, "owner-1", &dto.ChatTurnRequest{
		Message: "what were the findings of the safety audit",
	}, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Citations)

	got, err := f.svc.Citation(ctx, "owner-1", resp.SessionID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ID)

	_, err = f.svc.Citation(ctx, "owner-1", resp.SessionID, 99)
	require.Error(t, err)

	_, err = f.svc.Citation(ctx, "owner-2", resp.SessionID, 1)
	require.Error(t, err)

	_, err = f.svc.Citation(ctx, "owner-1", "missing-session", 1)
	require.Error(t, err)
}

func TestCitation_ConcurrentWithTurns(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Chat(ctx, "owner-1", &dto.ChatTurnRequest{
		Message: "what were the findings of the safety audit",
	}, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Citations)

	// Turns rewrite the session's citations under the lock; concurrent
	// citation lookups must serialize against them instead of reading the
	// live slice.
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.Chat(ctx, "owner-1", &dto.ChatTurnRequest{
				SessionID: resp.SessionID,
				Message:   "what were the findings of the safety audit",
			}, nil, nil)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, _ = f.svc.Citation(ctx, "owner-1", resp.SessionID, 1)
		}()
	}
	wg.Wait()

	got, err := f.svc.Citation(ctx, "owner-1", resp.SessionID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ID)
}

// copyStore mimics the Redis store's marshal/unmarshal boundary: callers get
// a fresh copy on every read and only Save persists mutations.
type copyStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	locks    map[string]*sync.Mutex
}

func newCopyStore() *copyStore {
	return &copyStore{
		sessions: map[string][]byte{},
		locks:    map[string]*sync.Mutex{},
	}
}

func (s *copyStore) GetOrCreate(_ context.Context, ownerID, sessionID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if raw, ok := s.sessions[sessionID]; ok {
		var sess session.Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			return nil, err
		}
		return &sess, nil
	}
	sess := &session.Session{ID: sessionID, OwnerID: ownerID, History: []session.Message{}}
	raw, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	s.sessions[sessionID] = raw
	return sess, nil
}

func (s *copyStore) Get(_ context.Context, sessionID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *copyStore) Save(_ context.Context, sess *session.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = raw
	return nil
}

func (s *copyStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *copyStore) Lock(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

type failingTranscriber struct{}

func (failingTranscriber) Transcribe(ctx context.Context, audioRef string) (*asr.Transcription, error) {
	return nil, errors.New("asr unavailable")
}

func TestChat_NormalizeErrorStillPersistsUploadHandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding": [1.0, 0.0]}`))
	}))
	t.Cleanup(srv.Close)

	idx := &countingIndex{results: map[string][]vectorindex.Point{}}
	emb := constEmbedder{}
	enc := sparse.NewTfidfEncoder(filepath.Join(t.TempDir(), "vocab.json"))
	clipEnc := clip.NewEncoder(srv.URL, nil, emb)
	ret := retriever.NewRetriever(idx, emb, enc, clipEnc, rerank.NewReranker(emb))
	rt := router.NewRouter(ret, noopLogger{})

	sessions := newCopyStore()
	store := &recordingStore{}
	normalizer := normalize.NewNormalizer(store, clipEnc, failingTranscriber{}, noopLogger{})
	generator := response.NewGenerator(&fakeLLM{answer: "canned answer"})
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))

	svc := NewChatService(sessions, normalizer, rt, generator, pubSub, "SESSION_CLEANUP", nil, noopLogger{})

	// Audio-only turn: the blob is stored before transcription fails, and
	// the session copy carrying the new key must still be persisted or the
	// object can never be cleaned up.
	_, err := svc.Chat(context.Background(), "owner-1", &dto.ChatTurnRequest{SessionID: "s-audio"}, nil, &normalize.Upload{
		Filename:    "memo.mp3",
		ContentType: "audio/mpeg",
		Body:        strings.NewReader("audio bytes"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcribe")

	sess, err := sessions.Get(context.Background(), "s-audio")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, []string{"tmp/s-audio/memo.mp3"}, sess.TempAssets.Audio)
}
