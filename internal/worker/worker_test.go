// Package worker_test tests the NATS render worker.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/picotts/internal/playback"
	"github.com/book-expert/picotts/internal/voice"
	"github.com/book-expert/picotts/internal/worker"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSubject = "test_subject"

var (
	errMockDownload = errors.New("mock download error")
	errMockUpload   = errors.New("mock upload error")
	errMockRender   = errors.New("mock render error")
)

// mockObjectStore is a mock implementation of the ObjectStore interface.
type mockObjectStore struct {
	mu                 sync.Mutex
	downloadShouldFail bool
	uploadShouldFail   bool
	text               string
	downloadedKey      string
	uploadedKey        string
	uploadedData       []byte
}

func (m *mockObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	if m.downloadShouldFail {
		return nil, errMockDownload
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.downloadedKey = key

	return []byte(m.text), nil
}

func (m *mockObjectStore) Upload(_ context.Context, key string, data []byte) error {
	if m.uploadShouldFail {
		return errMockUpload
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.uploadedKey = key
	m.uploadedData = data

	return nil
}

func (m *mockObjectStore) downloaded() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.downloadedKey
}

func (m *mockObjectStore) uploaded() (string, []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.uploadedKey, m.uploadedData
}

// mockRenderer writes a fixed audio file for every request.
type mockRenderer struct {
	mu               sync.Mutex
	renderShouldFail bool
	dir              string
	renderedText     string
	renderedLanguage string
}

func (m *mockRenderer) Render(_ context.Context, text, language string) (*playback.Rendition, error) {
	if m.renderShouldFail {
		return nil, errMockRender
	}

	m.mu.Lock()
	m.renderedText = text
	m.renderedLanguage = language
	m.mu.Unlock()

	path := filepath.Join(m.dir, "prompt.wav16")

	err := os.WriteFile(path, []byte("sample audio"), 0o600)
	if err != nil {
		return nil, err
	}

	selected, _ := voice.Lookup(language)

	return &playback.Rendition{Path: path, Cached: true, Voice: selected}, nil
}

func (m *mockRenderer) rendered() (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.renderedText, m.renderedLanguage
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	return natsConnection
}

type harness struct {
	store    *mockObjectStore
	renderer *mockRenderer
	conn     *nats.Conn
	cancel   context.CancelFunc
	done     chan error
}

func startWorker(t *testing.T, store *mockObjectStore, renderer *mockRenderer) *harness {
	t.Helper()

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	workerInstance := worker.NewNatsWorker(natsConnection, testSubject, store, renderer, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- workerInstance.Run(ctx)
	}()

	return &harness{store: store, renderer: renderer, conn: natsConnection, cancel: cancel, done: done}
}

func (h *harness) stop(t *testing.T) {
	t.Helper()

	h.cancel()
	assert.NoError(t, <-h.done, "worker.Run should not error on graceful shutdown")
}

func newEvent(textKey, language string) *events.TextProcessedEvent {
	return &events.TextProcessedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		TextKey:           textKey,
		PNGKey:            "",
		PageNumber:        3,
		TotalPages:        9,
		Voice:             language,
		Seed:              0,
		NGL:               0,
		TopP:              0,
		RepetitionPenalty: 0,
		Temperature:       0,
	}
}

// request retries until the worker's subscription is live.
func request(t *testing.T, conn *nats.Conn, event *events.TextProcessedEvent, timeout time.Duration) (*nats.Msg, error) {
	t.Helper()

	eventData, err := json.Marshal(event)
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)

	for {
		msg, reqErr := conn.Request(testSubject, eventData, timeout)
		if !errors.Is(reqErr, nats.ErrNoResponders) || time.Now().After(deadline) {
			return msg, reqErr
		}

		time.Sleep(20 * time.Millisecond)
	}
}

func TestMessageHandler_Success(t *testing.T) {
	t.Parallel()

	store := &mockObjectStore{text: "  Bienvenido a la central  "}
	renderer := &mockRenderer{dir: t.TempDir()}
	h := startWorker(t, store, renderer)

	testEvent := newEvent("greetings/welcome.txt", "es-ES")

	replyMsg, err := request(t, h.conn, testEvent, 5*time.Second)
	require.NoError(t, err, "Request should succeed and receive a reply")

	var replyEvent events.AudioChunkCreatedEvent

	require.NoError(t, json.Unmarshal(replyMsg.Data, &replyEvent))

	uploadedKey, uploadedData := store.uploaded()

	renderedText, renderedLanguage := renderer.rendered()

	assert.Equal(t, "greetings/welcome.txt", store.downloaded())
	assert.Equal(t, "Bienvenido a la central", renderedText)
	assert.Equal(t, "es-ES", renderedLanguage)
	assert.True(t, strings.HasSuffix(uploadedKey, ".wav16"))
	assert.Equal(t, []byte("sample audio"), uploadedData)

	assert.Equal(t, uploadedKey, replyEvent.AudioKey)
	assert.Equal(t, testEvent.Header.WorkflowID, replyEvent.Header.WorkflowID)
	assert.EqualValues(t, 3, replyEvent.PageNumber)
	assert.EqualValues(t, 9, replyEvent.TotalPages)

	h.stop(t)
}

func TestMessageHandler_Failures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		store    *mockObjectStore
		renderer *mockRenderer
		event    *events.TextProcessedEvent
	}{
		{
			name:     "download fails",
			store:    &mockObjectStore{downloadShouldFail: true, text: "hola"},
			renderer: &mockRenderer{},
			event:    newEvent("key", "es-ES"),
		},
		{
			name:     "render fails",
			store:    &mockObjectStore{text: "hola"},
			renderer: &mockRenderer{renderShouldFail: true},
			event:    newEvent("key", "es-ES"),
		},
		{
			name:     "upload fails",
			store:    &mockObjectStore{uploadShouldFail: true, text: "hola"},
			renderer: &mockRenderer{},
			event:    newEvent("key", "es-ES"),
		},
		{
			name:     "blank text",
			store:    &mockObjectStore{text: "   "},
			renderer: &mockRenderer{},
			event:    newEvent("key", "es-ES"),
		},
		{
			name:     "missing text key",
			store:    &mockObjectStore{text: "hola"},
			renderer: &mockRenderer{},
			event:    newEvent("", "es-ES"),
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			testCase.renderer.dir = t.TempDir()
			h := startWorker(t, testCase.store, testCase.renderer)

			_, err := request(t, h.conn, testCase.event, 300*time.Millisecond)

			require.ErrorIs(t, err, nats.ErrTimeout, "no reply is sent for a failed job")

			uploadedKey, _ := testCase.store.uploaded()
			assert.Empty(t, uploadedKey)

			h.stop(t)
		})
	}
}

func TestMessageHandler_InvalidJSON(t *testing.T) {
	t.Parallel()

	store := &mockObjectStore{text: "hola"}
	h := startWorker(t, store, &mockRenderer{dir: t.TempDir()})

	var err error

	deadline := time.Now().Add(2 * time.Second)

	for {
		_, err = h.conn.Request(testSubject, []byte("{not json"), 300*time.Millisecond)
		if !errors.Is(err, nats.ErrNoResponders) || time.Now().After(deadline) {
			break
		}

		time.Sleep(20 * time.Millisecond)
	}

	require.ErrorIs(t, err, nats.ErrTimeout)
	assert.Empty(t, store.downloaded())

	h.stop(t)
}
