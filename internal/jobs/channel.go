package jobs

import "blank-subtitles/internal/domain"

// DefaultChannelCapacity bounds each stream of a Channel.
const DefaultChannelCapacity = 64

// Sink receives the three message streams a job emits.
type Sink interface {
	Progress(p domain.Progress)
	Error(message string)
	Result(ok bool)
}

// Batch is everything drained from a Channel in one poll.
type Batch struct {
	Progress []domain.Progress
	Errors   []string
	Result   *bool
}

// Empty reports whether the batch carries no messages.
func (b Batch) Empty() bool {
	return len(b.Progress) == 0 && len(b.Errors) == 0 && b.Result == nil
}

// Channel carries progress, error and result streams from a running job to its controller.
// Each stream is FIFO. Pushes buffer; Drain never blocks.
type Channel struct {
	progress chan domain.Progress
	errors   chan string
	results  chan bool
}

// NewChannel creates a channel whose streams each buffer capacity messages.
func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	return &Channel{
		progress: make(chan domain.Progress, capacity),
		errors:   make(chan string, capacity),
		results:  make(chan bool, 1),
	}
}

// Progress pushes a milestone.
func (c *Channel) Progress(p domain.Progress) {
	c.progress <- p
}

// Error pushes a human-readable error message.
func (c *Channel) Error(message string) {
	c.errors <- message
}

// Result pushes the terminal outcome.
func (c *Channel) Result(ok bool) {
	c.results <- ok
}

// Drain collects every message currently available without blocking.
//
// The result stream is read first. A writer pushes its result last, so once a result
// is seen every progress and error message that preceded it is already buffered and
// is collected by the same call.
func (c *Channel) Drain() Batch {
	var batch Batch

	select {
	case ok := <-c.results:
		batch.Result = &ok
	default:
	}

	for {
		select {
		case p := <-c.progress:
			batch.Progress = append(batch.Progress, p)
			continue
		default:
		}
		break
	}

	for {
		select {
		case msg := <-c.errors:
			batch.Errors = append(batch.Errors, msg)
			continue
		default:
		}
		break
	}

	return batch
}
