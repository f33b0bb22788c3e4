// Package queue serializes sync commands. Commands run one at a time in
// submission order on a single worker.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what a command does.
type Kind int

const (
	DownloadAll Kind = iota + 1
	DownloadOne
	UploadAll
	UploadOne
	Quit
)

func (k Kind) String() string {
	switch k {
	case DownloadAll:
		return "download-all"
	case DownloadOne:
		return "download-one"
	case UploadAll:
		return "upload-all"
	case UploadOne:
		return "upload-one"
	case Quit:
		return "quit"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Command is one unit of sync work. Name is set for DownloadOne and Path
// for UploadOne.
type Command struct {
	ID          uuid.UUID
	Kind        Kind
	Name        string
	Path        string
	SubmittedAt time.Time
}

func (c Command) String() string {
	switch c.Kind {
	case DownloadOne:
		return fmt.Sprintf("%s %q", c.Kind, c.Name)
	case UploadOne:
		return fmt.Sprintf("%s %q", c.Kind, c.Path)
	default:
		return c.Kind.String()
	}
}

// Handler executes a command. It may submit follow-up commands; they run
// after everything already queued.
type Handler func(ctx context.Context, cmd Command) error

// Queue is an unbounded FIFO of commands. Submit never blocks.
type Queue struct {
	mu      sync.Mutex
	pending []Command
	closed  bool
	signal  chan struct{}
	logger  *slog.Logger
}

// New returns an empty queue.
func New(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Queue{signal: make(chan struct{}, 1), logger: logger}
}

// Submit appends a command and returns its assigned ID. Commands
// submitted after Quit has been processed are dropped.
func (q *Queue) Submit(cmd Command) uuid.UUID {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}

	if cmd.SubmittedAt.IsZero() {
		cmd.SubmittedAt = time.Now()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("queue closed, dropping command", slog.String("command", cmd.String()))

		return cmd.ID
	}

	q.pending = append(q.pending, cmd)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return cmd.ID
}

// Len returns the number of commands waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

func (q *Queue) next() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return Command{}, false
	}

	cmd := q.pending[0]
	q.pending[0] = Command{}
	q.pending = q.pending[1:]

	return cmd, true
}

func (q *Queue) close() {
	q.mu.Lock()
	q.closed = true
	dropped := len(q.pending)
	q.pending = nil
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Info("discarding queued commands", slog.Int("count", dropped))
	}
}

// Run processes commands until ctx is cancelled or a Quit command is
// taken. With stopWhenIdle it also returns once the queue drains, which
// one-shot commands use to wait for follow-up work.
//
// A failed command is logged and does not stop the worker.
func (q *Queue) Run(ctx context.Context, handle Handler, stopWhenIdle bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cmd, ok := q.next()
		if !ok {
			if stopWhenIdle {
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.signal:
			}

			continue
		}

		if cmd.Kind == Quit {
			q.logger.Info("quit requested", slog.String("id", cmd.ID.String()))
			q.close()

			return nil
		}

		start := time.Now()
		log := q.logger.With(slog.String("command", cmd.String()), slog.String("id", cmd.ID.String()))
		log.Debug("command started", slog.Duration("waited", start.Sub(cmd.SubmittedAt)))

		if err := handle(ctx, cmd); err != nil {
			log.Error("command failed", slog.String("error", err.Error()), slog.Duration("took", time.Since(start)))
			continue
		}

		log.Debug("command finished", slog.Duration("took", time.Since(start)))
	}
}
