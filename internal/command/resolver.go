package command

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
)

// Strategy names how a tool binary location is resolved.
type Strategy string

const (
	// StrategyAuto checks next to the running executable on Windows, then PATH.
	StrategyAuto Strategy = "auto"
	// StrategyPath uses the system search path only.
	StrategyPath Strategy = "path"
	// StrategyBesideExecutable uses the running executable's directory only.
	StrategyBesideExecutable Strategy = "beside-executable"
)

// ErrToolNotFound is returned when no strategy locates the tool.
var ErrToolNotFound = errors.New("tool not found")

// Resolver turns a tool name into an executable path.
type Resolver interface {
	Resolve(name string) (string, error)
}

// ParseStrategy validates a configured strategy name.
func ParseStrategy(raw string) (Strategy, error) {
	switch s := Strategy(strings.TrimSpace(strings.ToLower(raw))); s {
	case "":
		return StrategyAuto, nil
	case StrategyAuto, StrategyPath, StrategyBesideExecutable:
		return s, nil
	default:
		return "", fmt.Errorf("unknown tool resolution strategy %q", raw)
	}
}

// NewResolver builds the resolver for a strategy on the current platform.
func NewResolver(strategy Strategy) Resolver {
	path := &SearchPath{lookPath: exec.LookPath}
	beside := &BesideExecutable{executable: os.Executable, stat: os.Stat, goos: goruntime.GOOS}

	switch strategy {
	case StrategyPath:
		return path
	case StrategyBesideExecutable:
		return beside
	default:
		if goruntime.GOOS == "windows" {
			return Chain{beside, path}
		}
		return Chain{path, beside}
	}
}

// SearchPath resolves tools from PATH.
type SearchPath struct {
	lookPath func(string) (string, error)
}

// Resolve looks the name up on PATH. Absolute or relative paths are checked as-is.
func (s *SearchPath) Resolve(name string) (string, error) {
	path, err := s.lookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s on PATH: %v", ErrToolNotFound, name, err)
	}
	return path, nil
}

// BesideExecutable resolves tools shipped next to the running program.
type BesideExecutable struct {
	executable func() (string, error)
	stat       func(string) (os.FileInfo, error)
	goos       string
}

// Resolve checks <dir of executable>/<name>, adding .exe on Windows.
func (b *BesideExecutable) Resolve(name string) (string, error) {
	exe, err := b.executable()
	if err != nil {
		return "", fmt.Errorf("%w: %s: resolve executable: %v", ErrToolNotFound, name, err)
	}

	dir := filepath.Dir(exe)
	candidates := []string{filepath.Join(dir, name)}
	if b.goos == "windows" && !strings.EqualFold(filepath.Ext(name), ".exe") {
		candidates = append([]string{filepath.Join(dir, name+".exe")}, candidates...)
	}
	for _, candidate := range candidates {
		if info, err := b.stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s next to %s", ErrToolNotFound, name, dir)
}

// Chain tries resolvers in order and returns the first hit.
type Chain []Resolver

// Resolve returns the first successful resolution.
func (c Chain) Resolve(name string) (string, error) {
	var errs []error
	for _, r := range c {
		path, err := r.Resolve(name)
		if err == nil {
			return path, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return "", errors.Join(errs...)
}

// Fixed always resolves to the configured path.
type Fixed string

// Resolve returns the fixed path regardless of name.
func (f Fixed) Resolve(string) (string, error) {
	return string(f), nil
}

// NewSearchPathForTests builds a PATH resolver with an injected lookup.
func NewSearchPathForTests(lookPath func(string) (string, error)) *SearchPath {
	return &SearchPath{lookPath: lookPath}
}

// NewBesideExecutableForTests builds a sibling resolver with injected OS functions.
func NewBesideExecutableForTests(
	executable func() (string, error),
	stat func(string) (os.FileInfo, error),
	goos string,
) *BesideExecutable {
	return &BesideExecutable{executable: executable, stat: stat, goos: goos}
}
