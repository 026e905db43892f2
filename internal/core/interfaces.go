// Package core defines the capability interfaces shared by the picotts pipeline.
package core

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by an ObjectStore when the key is absent.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// ProcessInvoker runs an external program with an argument vector and
// returns its combined output. Implementations never go through a shell.
type ProcessInvoker interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Channel is the telephony side of a playback: one call leg that can be
// answered, fed an audio file and listened to for DTMF.
type Channel interface {
	// Name identifies the channel in logs.
	Name() string

	// Answered reports whether the channel is already up.
	Answered(ctx context.Context) (bool, error)

	// Answer brings the channel up.
	Answer(ctx context.Context) error

	// Stream starts playback of the artifact at path.
	Stream(ctx context.Context, path string) error

	// WaitForInterrupt blocks until playback ends or a digit contained in
	// digits is pressed. It returns 0 on natural completion.
	WaitForInterrupt(ctx context.Context, digits string) (rune, error)

	// Stop ends any playback still in progress.
	Stop(ctx context.Context) error
}
