// Package worker renders prompts on request over NATS, so that other
// services can obtain cached speech without an Asterisk channel.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/picotts/internal/core"
	"github.com/book-expert/picotts/internal/playback"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const handleMessageTimeout = 60 * time.Second

var (
	// ErrTextKeyEmpty indicates that the event carries no text key.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrTextEmpty indicates that the downloaded text is blank.
	ErrTextEmpty = errors.New("text cannot be empty")
)

// Renderer produces a playable file for text in a language.
type Renderer interface {
	Render(ctx context.Context, text, language string) (*playback.Rendition, error)
}

// NatsWorker listens for render requests on a NATS subject and answers each
// with the key of the uploaded audio.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	renderer       Renderer
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	renderer Renderer,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		renderer:       renderer,
		log:            log,
	}
}

// Run subscribes and serves requests until ctx is cancelled.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Render worker listening on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	audioKey, processErr := w.processRenderJob(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to render prompt for workflow %s: %v", event.Header.WorkflowID, processErr)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processRenderJob downloads the text, renders it through the cache and
// uploads the audio under a fresh key.
func (w *NatsWorker) processRenderJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	text := strings.TrimSpace(string(textData))
	if text == "" {
		return "", fmt.Errorf("%w: key '%s'", ErrTextEmpty, event.TextKey)
	}

	rendition, err := w.renderer.Render(ctx, text, event.Voice)
	if err != nil {
		return "", fmt.Errorf("failed to render text: %w", err)
	}

	defer rendition.Release()

	audioData, err := os.ReadFile(rendition.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read rendered audio '%s': %w", rendition.Path, err)
	}

	audioKey := uuid.NewString() + filepath.Ext(rendition.Path)

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	w.log.Info("Rendered %s in %s as %s (cached=%t)", event.TextKey, rendition.Voice.Locale, audioKey, rendition.Cached)

	return audioKey, nil
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	return &event, nil
}
