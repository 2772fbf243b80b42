package domain

import "errors"

// Pipeline error kinds. Every failure of the download pipeline matches exactly one
// of these through errors.Is.
var (
	// ErrParse is returned when no handle or post identifier can be derived from a URL.
	ErrParse = errors.New("invalid post URL")

	// ErrResolution is returned when the handle, the post, or its embed cannot be resolved.
	ErrResolution = errors.New("post resolution failed")

	// ErrManifest is returned when a playlist is missing, lacks the requested tier, or lists no segments.
	ErrManifest = errors.New("video manifest unusable")

	// ErrDownload is returned when a segment fetch fails.
	ErrDownload = errors.New("segment download failed")

	// ErrAssembly is returned when the segments cannot be joined into one file.
	ErrAssembly = errors.New("video assembly failed")
)

// Stage names used in caller-facing error messages.
const (
	StageParse    = "parse"
	StageResolve  = "resolve"
	StageManifest = "manifest"
	StageDownload = "download"
	StageAssemble = "assemble"
)

// PipelineError wraps an error with the failing stage and, where known, the
// offending value (embed type, segment URL, playlist URL).
type PipelineError struct {
	Kind  error
	Stage string
	Value string
	Err   error
}

func (e *PipelineError) Error() string {
	msg := e.Stage + ": "
	if e.Err != nil {
		msg += e.Err.Error()
	} else {
		msg += e.Kind.Error()
	}
	if e.Value != "" {
		msg += " (" + e.Value + ")"
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's kind.
func (e *PipelineError) Is(target error) bool {
	return target == e.Kind
}

// NewParseError creates a parse-stage error.
func NewParseError(value string, err error) *PipelineError {
	return &PipelineError{Kind: ErrParse, Stage: StageParse, Value: value, Err: err}
}

// NewResolutionError creates a resolve-stage error.
func NewResolutionError(value string, err error) *PipelineError {
	return &PipelineError{Kind: ErrResolution, Stage: StageResolve, Value: value, Err: err}
}

// NewManifestError creates a manifest-stage error.
func NewManifestError(value string, err error) *PipelineError {
	return &PipelineError{Kind: ErrManifest, Stage: StageManifest, Value: value, Err: err}
}

// NewDownloadError creates a download-stage error.
func NewDownloadError(value string, err error) *PipelineError {
	return &PipelineError{Kind: ErrDownload, Stage: StageDownload, Value: value, Err: err}
}

// NewAssemblyError creates an assemble-stage error.
func NewAssemblyError(value string, err error) *PipelineError {
	return &PipelineError{Kind: ErrAssembly, Stage: StageAssemble, Value: value, Err: err}
}

// StageOf returns the stage name of a pipeline error, or "" for any other error.
func StageOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return ""
}
