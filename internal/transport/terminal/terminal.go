// ABOUTME: Terminal transport: reads lines from stdin and prints the assistant's replies
// ABOUTME: Input is NFKC-normalised and validated before it reaches the hub
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/runtime"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxMessageLength is the longest accepted input, in characters
	MaxMessageLength = 10_000
	// MaxExitWait caps the N in /exit_N, in seconds
	MaxExitWait = 120
	// DisplayName is the name given to users created from the terminal
	DisplayName = "cli"

	prompt = "> "
)

var (
	errEmpty   = errors.New("please type your message")
	errControl = errors.New("no control characters allowed")
)

// Session is one interactive terminal conversation
type Session struct {
	hub     *runtime.Hub
	pending *runtime.Pending
	userID  uuid.UUID
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger
}

// NewSession binds a user to the hub. Responses arrive through pending,
// which the caller must pass to runtime.Listen.
func NewSession(hub *runtime.Hub, pending *runtime.Pending, userID uuid.UUID, in io.Reader, out io.Writer) *Session {
	return &Session{
		hub:     hub,
		pending: pending,
		userID:  userID,
		in:      in,
		out:     out,
		logger:  slog.Default().With("component", "terminal"),
	}
}

// EnsureUser returns the user with id, creating it in auto mode if missing
func EnsureUser(ctx context.Context, db *sqlite.DB, id uuid.UUID) (*models.User, error) {
	err := db.Transaction(ctx, func(r *sqlite.Repos) error {
		_, err := r.Users.CreateIfNotExists(ctx, &models.User{ID: id, Name: DisplayName, Mode: models.ModeAuto})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	user, err := db.Repos().Users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return user, nil
}

// Run reads input until /exit, EOF or ctx is cancelled, then sets the
// hub's shutdown flag
func (s *Session) Run(ctx context.Context) error {
	defer s.hub.Shutdown.Set()

	s.logger.Info("starting terminal session", "user_id", s.userID)
	fmt.Fprintf(s.out, "User: %s\nType /help for commands.\n\n", s.userID)

	stop := make(chan struct{})
	defer close(stop)
	lines := readLines(s.in, stop)
	for {
		fmt.Fprint(s.out, prompt)
		var line string
		select {
		case <-ctx.Done():
			return nil
		case <-s.hub.Shutdown.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		if wait, ok := ParseExit(line); ok {
			if wait > 0 {
				fmt.Fprintf(s.out, "Waiting %ds for background tasks...\n", wait)
				timer := time.NewTimer(time.Duration(wait) * time.Second)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
				}
			}
			return nil
		}

		if err := s.handle(ctx, line); err != nil {
			return err
		}
	}
}

func (s *Session) handle(ctx context.Context, line string) error {
	text, err := Validate(line)
	if err != nil {
		s.logger.Info("rejected user input", "length", utf8.RuneCountInString(text))
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return nil
	}
	reply, err := s.hub.Ask(ctx, s.pending, s.userID, runtime.TextPayload(text))
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("send request: %w", err)
	}
	fmt.Fprintln(s.out, reply)
	return nil
}

// Validate normalises text to NFKC and rejects empty, oversized or
// control-character input. The normalised text is returned either way.
func Validate(text string) (string, error) {
	text = strings.TrimSpace(norm.NFKC.String(text))
	if text == "" {
		return text, errEmpty
	}
	if n := utf8.RuneCountInString(text); n > MaxMessageLength {
		return text, fmt.Errorf("message too long: %d/%d chars", n, MaxMessageLength)
	}
	for _, r := range text {
		if r < ' ' && r != '\n' && r != '\r' && r != '\t' {
			return text, errControl
		}
	}
	return text, nil
}

// ParseExit recognises /exit and /exit_N, returning the wait in seconds
func ParseExit(text string) (int, bool) {
	if text == "/exit" {
		return 0, true
	}
	rest, ok := strings.CutPrefix(text, "/exit_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return min(n, MaxExitWait), true
}

// readLines feeds lines from r into a channel closed at EOF, so the
// session loop can also watch for cancellation
func readLines(r io.Reader, stop <-chan struct{}) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		reader := bufio.NewReader(r)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				select {
				case out <- line:
				case <-stop:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}
