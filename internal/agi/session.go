// Package agi speaks the Asterisk Gateway Interface, both as a FastAGI TCP
// server and over stdin/stdout when started by the AGI() application.
package agi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Reply codes sent by Asterisk.
const (
	codeWidth         = 3
	codeSuccess       = 200
	codeDeadChannel   = 511
	codeUsage         = 520
	hangupLine        = "HANGUP"
	resultPrefix      = "result="
	argPrefix         = "agi_arg_"
	envChannel        = "agi_channel"
	envRequest        = "agi_request"
	envSeparator      = ": "
	maxDialplanArgs   = 3
	usageTerminator   = "520 End of proper usage."
	channelStatusUp   = 6
	resultFailure     = -1
	variableQuoteChar = `"`
)

var (
	// ErrHangup is returned when the caller hung up during a command.
	ErrHangup = errors.New("channel hung up")
	// ErrCommand is returned when Asterisk rejects a command.
	ErrCommand = errors.New("agi command failed")
	// ErrMalformedReply is returned for replies that do not parse.
	ErrMalformedReply = errors.New("malformed agi reply")
)

// Reply is the parsed answer to one AGI command.
type Reply struct {
	Code   int
	Result int
	// Data holds the parenthesized suffix, if any.
	Data string
}

// Session is one AGI conversation. Commands are serialized.
type Session struct {
	mu     sync.Mutex
	reader *bufio.Reader
	writer io.Writer
	env    map[string]string
	// argOffset is the number of leading agi_arg_N values that are not
	// dialplan arguments.
	argOffset int
}

// NewSession wraps a reader and writer. Call ReadEnv before sending commands.
func NewSession(r io.Reader, w io.Writer) *Session {
	return &Session{
		reader: bufio.NewReader(r),
		writer: w,
		env:    make(map[string]string),
	}
}

// ReadEnv consumes the "agi_key: value" header block that Asterisk sends
// before the first command.
func (s *Session) ReadEnv() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		line, err := s.readLine()
		if err != nil {
			return fmt.Errorf("failed to read agi environment: %w", err)
		}

		if line == "" {
			return nil
		}

		key, value, found := strings.Cut(line, envSeparator)
		if !found {
			key, value, _ = strings.Cut(line, ":")
		}

		s.env[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
}

// Env returns one environment value.
func (s *Session) Env(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.env[key]
}

// Args returns the dialplan arguments agi_arg_1..agi_arg_3. Missing
// arguments are empty strings.
func (s *Session) Args() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	args := make([]string, maxDialplanArgs)
	for i := range args {
		args[i] = s.env[argPrefix+strconv.Itoa(i+1+s.argOffset)]
	}

	return args
}

// SkipArgs drops the first n arguments from Args.
func (s *Session) SkipArgs(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.argOffset = n
}

// Command sends one command line and waits for its reply.
func (s *Session) Command(ctx context.Context, command string) (Reply, error) {
	err := ctx.Err()
	if err != nil {
		return Reply{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = io.WriteString(s.writer, command+"\n")
	if err != nil {
		return Reply{}, fmt.Errorf("failed to send %q: %w", command, err)
	}

	for {
		line, readErr := s.readLine()
		if readErr != nil {
			return Reply{}, fmt.Errorf("failed to read reply to %q: %w", command, readErr)
		}

		// FastAGI announces a hangup out of band before the real reply.
		if line == hangupLine {
			continue
		}

		return s.parseReply(command, line)
	}
}

func (s *Session) parseReply(command, line string) (Reply, error) {
	if len(line) < codeWidth {
		return Reply{}, fmt.Errorf("%w: %q", ErrMalformedReply, line)
	}

	code, err := strconv.Atoi(line[:codeWidth])
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %q", ErrMalformedReply, line)
	}

	// "520-" opens a multi-line usage block; everything else uses a space.
	rest := strings.TrimLeft(line[codeWidth:], " -")

	switch code {
	case codeSuccess:
		return parseSuccess(rest)
	case codeDeadChannel:
		return Reply{Code: code, Result: resultFailure}, fmt.Errorf("%w: %s", ErrHangup, rest)
	case codeUsage:
		s.skipUsage()

		return Reply{Code: code, Result: resultFailure}, fmt.Errorf("%w: %q: invalid usage", ErrCommand, command)
	default:
		return Reply{Code: code, Result: resultFailure}, fmt.Errorf("%w: %q: %s", ErrCommand, command, rest)
	}
}

// skipUsage drains the multi-line usage text that follows a "520-" reply.
func (s *Session) skipUsage() {
	for {
		line, err := s.readLine()
		if err != nil || line == usageTerminator {
			return
		}
	}
}

func parseSuccess(rest string) (Reply, error) {
	reply := Reply{Code: codeSuccess}

	if !strings.HasPrefix(rest, resultPrefix) {
		return reply, fmt.Errorf("%w: %q", ErrMalformedReply, rest)
	}

	resultText, data, _ := strings.Cut(strings.TrimPrefix(rest, resultPrefix), " ")

	result, err := strconv.Atoi(resultText)
	if err != nil {
		return reply, fmt.Errorf("%w: %q", ErrMalformedReply, rest)
	}

	reply.Result = result

	if start := strings.Index(data, "("); start >= 0 {
		if end := strings.Index(data[start:], ")"); end > 0 {
			reply.Data = data[start+1 : start+end]
		}
	}

	return reply, nil
}

func (s *Session) readLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line == "" {
			return "", ErrHangup
		}

		if !errors.Is(err, io.EOF) {
			return "", err
		}
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// SetVariable sets a channel variable.
func (s *Session) SetVariable(ctx context.Context, name, value string) error {
	_, err := s.Command(ctx, "SET VARIABLE "+name+" "+quote(value))

	return err
}

// Verbose writes a message to the Asterisk console at level.
func (s *Session) Verbose(ctx context.Context, message string, level int) error {
	_, err := s.Command(ctx, "VERBOSE "+quote(message)+" "+strconv.Itoa(level))

	return err
}

// quote wraps an argument in double quotes, escaping embedded quotes and
// flattening newlines that would end the command early.
func quote(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", " ", "\r", " ")

	return variableQuoteChar + replacer.Replace(value) + variableQuoteChar
}
