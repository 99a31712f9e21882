package diagnostics

import (
	"strings"

	"blank-subtitles/internal/pipeline"
)

const (
	HintCredentials = "Check the access token and accept the model's user conditions on the model hub, then retry. " +
		"An empty token only works when the model is already cached."
	HintInstallFFmpeg = "Install FFmpeg and make sure the binary is on PATH or next to the application executable."
	HintRuntime       = "Install the diarization helper or start the diarization service configured in settings."
	HintWritable      = "Choose a writable location or adjust filesystem permissions."
	HintInference     = "The input may have no usable audio track, or the compute device failed. Try the cpu device."
)

// HintFor returns the remediation hint for a job error message, or "" when none applies.
func HintFor(message string) string {
	switch {
	case strings.HasPrefix(message, pipeline.PrefixPipelineLoad):
		return HintCredentials
	case strings.HasPrefix(message, pipeline.PrefixAudioExtraction):
		return HintInstallFFmpeg
	case strings.HasPrefix(message, pipeline.PrefixModelImport):
		return HintRuntime
	case strings.HasPrefix(message, pipeline.PrefixWrite):
		return HintWritable
	case strings.HasPrefix(message, pipeline.PrefixInference):
		return HintInference
	default:
		return ""
	}
}
