package jobs

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"blank-subtitles/internal/domain"
)

// Stream names a message stream on the wire.
type Stream string

const (
	StreamProgress Stream = "progress"
	StreamError    Stream = "error"
	StreamResult   Stream = "result"
)

// WireMessage is one JSON line written by a worker process.
type WireMessage struct {
	Stream   Stream `json:"stream"`
	Progress string `json:"progress,omitempty"`
	Message  string `json:"message,omitempty"`
	OK       *bool  `json:"ok,omitempty"`
}

// WireSink encodes job messages as JSON lines.
type WireSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewWireSink writes messages to w, one JSON object per line.
func NewWireSink(w io.Writer) *WireSink {
	return &WireSink{enc: json.NewEncoder(w)}
}

// Progress writes a progress message.
func (s *WireSink) Progress(p domain.Progress) {
	s.write(WireMessage{Stream: StreamProgress, Progress: p.String()})
}

// Error writes an error message.
func (s *WireSink) Error(message string) {
	s.write(WireMessage{Stream: StreamError, Message: message})
}

// Result writes the terminal result.
func (s *WireSink) Result(ok bool) {
	s.write(WireMessage{Stream: StreamResult, OK: &ok})
}

// Err returns the first write failure, if any.
func (s *WireSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *WireSink) write(msg WireMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	s.err = s.enc.Encode(msg)
}

// DecodeLine parses one wire line and forwards it to sink.
// Blank lines are ignored.
func DecodeLine(line string, sink Sink) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var msg WireMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return fmt.Errorf("decode wire line: %w", err)
	}

	switch msg.Stream {
	case StreamProgress:
		p, err := domain.ParseProgress(msg.Progress)
		if err != nil {
			return err
		}
		sink.Progress(p)
	case StreamError:
		sink.Error(msg.Message)
	case StreamResult:
		if msg.OK == nil {
			return fmt.Errorf("result message without outcome")
		}
		sink.Result(*msg.OK)
	default:
		return fmt.Errorf("unknown stream %q", msg.Stream)
	}
	return nil
}
