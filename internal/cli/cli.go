package cli

import (
	"github.com/alecthomas/kong"
)

// CLI is the command tree for the blanksubs binary.
var CLI struct {
	Context `embed:""`

	Run      RunCMD      `cmd:"" help:"Write a speaker-turn subtitle file for a video. This is the default command" default:"withargs"`
	Diagnose DiagnoseCMD `cmd:"" help:"Check that FFmpeg, the diarization runtime and the output directory are usable"`
	Config   ConfigCMD   `cmd:"" help:"Manage the configuration file"`
	Worker   WorkerCMD   `cmd:"" hidden:"" help:"Run one job and report on stdout. Started by the application itself"`
}

// Description is shown at the top of --help.
const Description = `  blanksubs marks who spoke when in a video and writes an SRT file with one
  empty, speaker-labelled entry per turn, ready for manual transcription.
`

// Options are the kong options shared by every entrypoint.
func Options() []kong.Option {
	return []kong.Option{
		kong.Name("blanksubs"),
		kong.Description(Description),
		kong.UsageOnError(),
	}
}

// IsWorkerInvocation reports whether args start the hidden worker command.
func IsWorkerInvocation(args []string) bool {
	return len(args) > 0 && args[0] == "worker"
}

// Execute parses args against CLI and runs the selected command.
func Execute(args []string) error {
	parser, err := kong.New(&CLI, Options()...)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return ctx.Run(&CLI.Context)
}
