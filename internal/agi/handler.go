package agi

import (
	"context"
	"errors"

	"github.com/book-expert/logger"
	"github.com/book-expert/picotts/internal/core"
	"github.com/book-expert/picotts/internal/playback"
)

// Channel variables set after every request.
const (
	VarStatus = "PICOTTS_STATUS"
	VarDigit  = "PICOTTS_DIGIT"
)

// Player runs one playback request on a channel.
type Player interface {
	Play(ctx context.Context, ch core.Channel, req playback.Request) (playback.Result, error)
}

// Handler serves one AGI session: it reads the dialplan arguments, plays the
// request and reports the outcome through channel variables.
type Handler struct {
	player Player
	log    *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(player Player, log *logger.Logger) *Handler {
	return &Handler{player: player, log: log}
}

// Serve runs the request carried by session. The session environment must
// already have been read.
func (h *Handler) Serve(ctx context.Context, session *Session) playback.Result {
	args := session.Args()
	request := playback.Request{
		Text:      args[0],
		Language:  args[1],
		Interrupt: args[2],
	}

	ch := NewChannel(session)

	result, err := h.player.Play(ctx, ch, request)
	if errors.Is(err, ErrHangup) {
		h.log.Info("Caller on %s hung up during playback", ch.Name())

		return result
	}

	digit := ""
	if result.Digit != 0 {
		digit = string(result.Digit)
	}

	setErr := session.SetVariable(ctx, VarStatus, string(result.Status))
	if setErr == nil {
		setErr = session.SetVariable(ctx, VarDigit, digit)
	}

	if setErr != nil {
		h.log.Warn("Failed to report status on %s: %v", ch.Name(), setErr)
	}

	return result
}
