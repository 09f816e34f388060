package queue

import "context"

// Kind routes a task to its stage handler.
type Kind string

const (
	KindValidateClip  Kind = "validate_clip"
	KindConvertClip   Kind = "convert_clip"
	KindCreateSlides  Kind = "create_slides"
	KindStitchVideos  Kind = "stitch_videos"
	KindOptimizeVideo Kind = "optimize_video"
	KindNotify        Kind = "notify"
)

// Kinds lists every task kind the worker pool listens on.
var Kinds = []Kind{
	KindValidateClip,
	KindConvertClip,
	KindCreateSlides,
	KindStitchVideos,
	KindOptimizeVideo,
	KindNotify,
}

// Task is the envelope pushed between pipeline stages. Slot is set for
// per-clip stages, the job fields for the stitch hand-off, Event for
// notifications.
type Task struct {
	Kind        Kind   `json:"kind"`
	SessionID   string `json:"session_id"`
	Slot        string `json:"slot,omitempty"`
	Action      string `json:"action,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
	TotalVideos int    `json:"total_videos,omitempty"`
	Event       string `json:"event,omitempty"`
	Detail      string `json:"detail,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// Dispatcher hands a task to the next stage. Stages treat dispatch
// failures after a committed state change as non-critical.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

// Handler processes one task of a given kind.
type Handler func(ctx context.Context, task Task) error
