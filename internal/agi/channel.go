package agi

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/book-expert/picotts/internal/fsutil"
)

// Channel adapts a Session to the playback controller. AGI has no
// asynchronous playback, so Stream only records the file and
// WaitForInterrupt runs STREAM FILE, which returns when the file ends or a
// listed digit is pressed.
type Channel struct {
	session *Session
	pending string
}

// NewChannel wraps a session whose environment has been read.
func NewChannel(session *Session) *Channel {
	return &Channel{session: session}
}

// Name returns the Asterisk channel name.
func (c *Channel) Name() string {
	name := c.session.Env(envChannel)
	if name == "" {
		return "agi"
	}

	return name
}

// Answered reports whether CHANNEL STATUS says the line is up.
func (c *Channel) Answered(ctx context.Context) (bool, error) {
	reply, err := c.session.Command(ctx, "CHANNEL STATUS")
	if err != nil {
		return false, err
	}

	return reply.Result == channelStatusUp, nil
}

// Answer answers the channel.
func (c *Channel) Answer(ctx context.Context) error {
	reply, err := c.session.Command(ctx, "ANSWER")
	if err != nil {
		return err
	}

	if reply.Result == resultFailure {
		return fmt.Errorf("%w: ANSWER", ErrCommand)
	}

	return nil
}

// Stream queues path for playback.
func (c *Channel) Stream(_ context.Context, path string) error {
	if !fsutil.FileExists(path) {
		return fmt.Errorf("%w: no audio at %s", ErrCommand, path)
	}

	c.pending = path

	return nil
}

// WaitForInterrupt plays the queued file. Asterisk picks the format from the
// extension, so the extension is stripped from the path it is given.
func (c *Channel) WaitForInterrupt(ctx context.Context, digits string) (rune, error) {
	if c.pending == "" {
		return 0, nil
	}

	file := fsutil.TrimExt(filepath.Clean(c.pending))
	command := "STREAM FILE " + quote(file) + " " + quote(digits)

	reply, err := c.session.Command(ctx, command)
	if err != nil {
		return 0, err
	}

	switch {
	case reply.Result == resultFailure:
		return 0, fmt.Errorf("%w: STREAM FILE %s", ErrCommand, file)
	case reply.Result > 0 && strings.ContainsRune(digits, rune(reply.Result)):
		return rune(reply.Result), nil
	default:
		return 0, nil
	}
}

// Stop clears the queued file. Playback has already ended by the time
// STREAM FILE returns.
func (c *Channel) Stop(_ context.Context) error {
	c.pending = ""

	return nil
}
