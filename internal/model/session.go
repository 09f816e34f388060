package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Session is the single shared record every pipeline stage reads and
// conditionally advances. Stages mutate only the fields they own, through
// the scoped repository operations; nothing overwrites a whole record.
type Session struct {
	ID          string `db:"id" json:"id"`
	ProjectName string `db:"project_name" json:"projectName"`
	Owner       string `db:"owner" json:"owner"`
	SourceURL   string `db:"source_url" json:"sourceUrl"`

	Status SessionStatus `db:"status" json:"status"`

	Suggestions ShotList  `db:"suggestions" json:"suggestions"`
	Clips       ClipMap   `db:"uploaded_videos" json:"uploadedVideos"`
	Slides      SlideList `db:"slides" json:"slides,omitempty"`
	SlidesCount int       `db:"slides_count" json:"slidesCount"`

	// Live sub-step detail surfaced by the status projection while
	// stitching or optimizing.
	CurrentItem    int    `db:"current_item" json:"currentItem,omitempty"`
	TotalItems     int    `db:"total_items" json:"totalItems,omitempty"`
	ProcessingStep string `db:"processing_step" json:"processingStep,omitempty"`

	StitchedVideoKey        string  `db:"stitched_video_key" json:"stitchedVideoKey,omitempty"`
	StitchedVideoURL        string  `db:"stitched_video_url" json:"stitchedVideoUrl,omitempty"`
	StitchedVideoDuration   float64 `db:"stitched_video_duration" json:"stitchedVideoDuration,omitempty"`
	StitchedVideoResolution string  `db:"stitched_video_resolution" json:"stitchedVideoResolution,omitempty"`

	FinalVideoKey      string  `db:"final_video_key" json:"finalVideoKey,omitempty"`
	FinalVideoDuration float64 `db:"final_video_duration" json:"finalVideoDuration,omitempty"`
	FinalVideoSize     int64   `db:"final_video_size" json:"finalVideoSize,omitempty"`
	DemoURL            string  `db:"demo_url" json:"demoUrl,omitempty"`
	DemoURL720p        string  `db:"demo_url_720p" json:"demoUrl720p,omitempty"`
	DemoURL1080p       string  `db:"demo_url_1080p" json:"demoUrl1080p,omitempty"`
	ThumbnailURL       string  `db:"thumbnail_url" json:"thumbnailUrl,omitempty"`

	ErrorMessage string     `db:"error_message" json:"errorMessage,omitempty"`
	FailedAt     *time.Time `db:"failed_at" json:"failedAt,omitempty"`

	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
	ExpiresAt   time.Time  `db:"expires_at" json:"expiresAt"`
	QueuedAt    *time.Time `db:"queued_at" json:"queuedAt,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`
}

// Shot is one suggested recording, produced upstream and immutable once
// the session exists. SequenceNumber is 1-based and defines the canonical
// ordering of the assembled demo.
type Shot struct {
	SequenceNumber int    `json:"sequence_number"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Duration       string `json:"duration,omitempty"`
}

// SlotKey returns the Clips map key for this shot.
func (s Shot) SlotKey() string {
	return strconv.Itoa(s.SequenceNumber)
}

// ClipStatus tracks one uploaded clip through its sub-pipeline.
type ClipStatus string

const (
	ClipStatusInitiated        ClipStatus = "initiated"
	ClipStatusUploaded         ClipStatus = "uploaded"
	ClipStatusValidated        ClipStatus = "validated"
	ClipStatusConverted        ClipStatus = "converted"
	ClipStatusValidationFailed ClipStatus = "validation_failed"
	ClipStatusConversionFailed ClipStatus = "conversion_failed"
)

// ClipValidation holds the probed media properties of an uploaded clip.
// Valid=false carries only Error.
type ClipValidation struct {
	Valid    bool    `json:"valid"`
	Duration float64 `json:"duration,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Codec    string  `json:"codec,omitempty"`
	FPS      float64 `json:"fps,omitempty"`
	FileSize int64   `json:"file_size,omitempty"`
	HasAudio bool    `json:"has_audio,omitempty"`
	Bitrate  int64   `json:"bitrate,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// ClipConversion records where the normalized rendition landed.
type ClipConversion struct {
	StandardizedKey  string `json:"standardized_key"`
	OutputSize       int64  `json:"output_size"`
	OutputResolution string `json:"output_resolution"`
	OutputFPS        int    `json:"output_fps"`
	OutputCodec      string `json:"output_codec"`
	ConvertedAt      string `json:"converted_at"`
}

// ClipRecord is one entry in the per-session upload map, keyed by the
// shot's sequence number in string form.
type ClipRecord struct {
	Status      ClipStatus      `json:"status"`
	S3Key       string          `json:"s3_key"`
	FileSize    int64           `json:"file_size,omitempty"`
	InitiatedAt string          `json:"initiated_at,omitempty"`
	UploadedAt  string          `json:"uploaded_at,omitempty"`
	Validation  *ClipValidation `json:"validation,omitempty"`
	Converted   *ClipConversion `json:"converted_data,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// SlideType distinguishes the three generated slide kinds.
type SlideType string

const (
	SlideTypeTitle   SlideType = "title"
	SlideTypeSection SlideType = "section"
	SlideTypeEnd     SlideType = "end"
)

// Slide ordering constants. Sections land at sequence*100 so clips can
// interleave at sequence*100+50; the end slide always sorts last.
const (
	SlideOrderTitle  = 0
	SlideOrderEnd    = 999
	SlideOrderStride = 100
	ClipOrderOffset  = 50
)

// SlideRecord is one generated slide image.
type SlideRecord struct {
	ID            string    `json:"id"`
	Type          SlideType `json:"type"`
	S3Key         string    `json:"s3_key"`
	Order         int       `json:"order"`
	VideoSequence int       `json:"video_sequence,omitempty"`
}

// SectionOrder returns the timeline order for a section slide of the
// given shot, and ClipOrder the order of the clip that follows it.
func SectionOrder(sequenceNumber int) int { return sequenceNumber * SlideOrderStride }
func ClipOrder(sequenceNumber int) int    { return sequenceNumber*SlideOrderStride + ClipOrderOffset }

// JSONB column wrappers. sqlx scans these straight from jsonb columns.

type ShotList []Shot

func (s ShotList) Value() (driver.Value, error) { return jsonbValue(s) }
func (s *ShotList) Scan(src any) error          { return jsonbScan(src, s) }

type ClipMap map[string]ClipRecord

func (m ClipMap) Value() (driver.Value, error) { return jsonbValue(m) }
func (m *ClipMap) Scan(src any) error          { return jsonbScan(src, m) }

type SlideList []SlideRecord

func (s SlideList) Value() (driver.Value, error) { return jsonbValue(s) }
func (s *SlideList) Scan(src any) error          { return jsonbScan(src, s) }

func jsonbValue(v any) (driver.Value, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func jsonbScan(src, dest any) error {
	if src == nil {
		return nil
	}
	switch data := src.(type) {
	case []byte:
		return json.Unmarshal(data, dest)
	case string:
		return json.Unmarshal([]byte(data), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

// FinalResult is what the optimizer records when the pipeline finishes.
type FinalResult struct {
	Key          string
	Duration     float64
	Size         int64
	DemoURL      string
	DemoURL720p  string
	DemoURL1080p string
	ThumbnailURL string
}

// CreateSessionParams carries the upstream hand-off that seeds a session.
type CreateSessionParams struct {
	ID          string
	ProjectName string
	Owner       string
	SourceURL   string
	Suggestions ShotList
	ExpiresAt   time.Time
}
