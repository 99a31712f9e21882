package diarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mudler/xlog"

	"blank-subtitles/internal/command"
	"blank-subtitles/internal/domain"
)

// DefaultHelper is the helper binary that wraps the pretrained pipeline.
const DefaultHelper = "pyannote-diarize"

// TokenEnv carries the access token to helper processes.
const TokenEnv = "HF_TOKEN"

// ExecBackend drives a helper binary that prints speaker turns as JSON.
type ExecBackend struct {
	helper   string
	resolver command.Resolver
	runner   command.Runner
	environ  func() []string
}

// NewExecBackend builds a backend for the named helper.
func NewExecBackend(helper string, resolver command.Resolver) *ExecBackend {
	if helper == "" {
		helper = DefaultHelper
	}
	return &ExecBackend{
		helper:   helper,
		resolver: resolver,
		runner:   command.NewExecRunner(),
		environ:  os.Environ,
	}
}

// Available checks that the helper binary can be located.
func (b *ExecBackend) Available(ctx context.Context) error {
	_, err := b.resolver.Resolve(b.helper)
	return err
}

// Load prefetches model weights into the helper's cache.
func (b *ExecBackend) Load(ctx context.Context, modelID, token string) (Model, error) {
	bin, err := b.resolver.Resolve(b.helper)
	if err != nil {
		return nil, err
	}

	args := []string{"fetch", "--model", modelID}
	result, err := b.runner.Run(ctx, b.env(token), bin, args...)
	if err != nil {
		return nil, commandFailure(bin, result, err)
	}

	return &execModel{backend: b, bin: bin, modelID: modelID, token: token}, nil
}

// env returns the helper environment with the token set when present.
func (b *ExecBackend) env(token string) []string {
	return TokenEnviron(b.environ(), token)
}

// TokenEnviron returns base without any inherited token, plus token when non-empty.
func TokenEnviron(base []string, token string) []string {
	env := make([]string, 0, len(base)+1)
	for _, kv := range base {
		if strings.HasPrefix(kv, TokenEnv+"=") {
			continue
		}
		env = append(env, kv)
	}
	if token != "" {
		env = append(env, TokenEnv+"="+token)
	}
	return env
}

// execModel is a loaded helper-backed pipeline.
type execModel struct {
	backend *ExecBackend
	bin     string
	modelID string
	token   string
}

// helperTurn is one element of the helper's JSON output.
type helperTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Diarize runs the helper on wavPath using device.
func (m *execModel) Diarize(ctx context.Context, wavPath string, device Device) ([]domain.Segment, error) {
	args := []string{"diarize", "--model", m.modelID, "--device", string(device), "--audio", wavPath}
	result, err := m.backend.runner.Run(ctx, m.backend.env(m.token), m.bin, args...)
	if err != nil {
		return nil, commandFailure(m.bin, result, err)
	}

	var turns []helperTurn
	if err := json.Unmarshal([]byte(result.Stdout), &turns); err != nil {
		return nil, fmt.Errorf("decode helper output: %w", err)
	}

	segments := make([]domain.Segment, 0, len(turns))
	for _, t := range turns {
		segments = append(segments, domain.Segment{Start: t.Start, End: t.End, Speaker: t.Speaker})
	}
	xlog.Debug("helper returned turns", "count", len(segments))
	return segments, nil
}

// commandFailure keeps the helper's last stderr line as the diagnostic.
func commandFailure(bin string, result command.Result, err error) error {
	if line := command.LastLine(result.Stderr); line != "" {
		return errors.New(line)
	}
	return fmt.Errorf("%s exited with code %d: %w", bin, result.ExitCode, err)
}

// NewExecBackendForTests builds a backend with injected runner and environment.
func NewExecBackendForTests(helper string, resolver command.Resolver, runner command.Runner, environ func() []string) *ExecBackend {
	return &ExecBackend{
		helper:   helper,
		resolver: resolver,
		runner:   runner,
		environ:  environ,
	}
}
