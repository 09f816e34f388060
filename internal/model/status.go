package model

// SessionStatus is the session-level pipeline state.
type SessionStatus string

const (
	StatusReady              SessionStatus = "ready"
	StatusUploading          SessionStatus = "uploading"
	StatusReadyForProcessing SessionStatus = "ready_for_processing"
	StatusQueued             SessionStatus = "queued"
	StatusSlidesReady        SessionStatus = "slides_ready"
	StatusStitching          SessionStatus = "stitching"
	StatusStitched           SessionStatus = "stitched"
	StatusOptimizing         SessionStatus = "optimizing"
	StatusComplete           SessionStatus = "complete"

	StatusValidationFailed   SessionStatus = "validation_failed"
	StatusConversionFailed   SessionStatus = "conversion_failed"
	StatusStitchingFailed    SessionStatus = "stitching_failed"
	StatusOptimizationFailed SessionStatus = "optimization_failed"
)

// IsFailed reports whether the status is one of the terminal failure states.
func (s SessionStatus) IsFailed() bool {
	switch s {
	case StatusValidationFailed, StatusConversionFailed, StatusStitchingFailed, StatusOptimizationFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the pipeline will make no further progress.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusComplete || s.IsFailed()
}

// AcceptsUploads reports whether new clip uploads may be initiated.
func (s SessionStatus) AcceptsUploads() bool {
	return s == StatusReady || s == StatusUploading
}

// Admissible reports whether a stitch job may be enqueued at this status.
// Uploading is allowed through; per-clip completeness is checked separately.
func (s SessionStatus) Admissible() bool {
	return s == StatusReadyForProcessing || s == StatusUploading
}

// AllClipsConverted re-scans the whole upload map against the suggestion
// list. Every suggested shot must have a clip in converted state; a scan
// is the only safe readiness test because conversions finish in any order
// and events can be re-delivered.
func AllClipsConverted(suggestions ShotList, clips ClipMap) bool {
	if len(suggestions) == 0 {
		return false
	}
	for _, shot := range suggestions {
		clip, ok := clips[shot.SlotKey()]
		if !ok || clip.Status != ClipStatusConverted {
			return false
		}
	}
	return true
}

// FirstUnconverted returns the sequence number of the first suggested shot
// whose clip is not yet converted, or 0 when every shot is done.
func FirstUnconverted(suggestions ShotList, clips ClipMap) int {
	for _, shot := range suggestions {
		clip, ok := clips[shot.SlotKey()]
		if !ok || clip.Status != ClipStatusConverted {
			return shot.SequenceNumber
		}
	}
	return 0
}

// UploadedCount counts clips that have at least reached uploaded state.
func UploadedCount(clips ClipMap) int {
	n := 0
	for _, clip := range clips {
		switch clip.Status {
		case ClipStatusUploaded, ClipStatusValidated, ClipStatusConverted:
			n++
		}
	}
	return n
}
