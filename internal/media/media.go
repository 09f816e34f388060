package media

import "context"

// ProbeResult is the subset of ffprobe output the pipeline cares about.
type ProbeResult struct {
	Duration float64
	Width    int
	Height   int
	Codec    string
	FPS      float64
	Bitrate  int64
	HasAudio bool
}

// SlideSpec describes one slide clip to render.
type SlideSpec struct {
	Heading    string
	Subheading string
	Background string
	Seconds    int
}

// VariantPreset is one optimizer output rendition.
type VariantPreset struct {
	Name         string
	Width        int
	Height       int
	VideoBitrate string
	MaxRate      string
	BufSize      string
	CRF          string
	AudioBitrate string
}

// Variants are encoded in order; the 720p rendition is the primary
// delivery when present.
var Variants = []VariantPreset{
	{
		Name:         "1080p",
		Width:        1920,
		Height:       1080,
		VideoBitrate: "5M",
		MaxRate:      "6M",
		BufSize:      "10M",
		CRF:          "23",
		AudioBitrate: "192k",
	},
	{
		Name:         "720p",
		Width:        1280,
		Height:       720,
		VideoBitrate: "2.5M",
		MaxRate:      "3M",
		BufSize:      "5M",
		CRF:          "24",
		AudioBitrate: "128k",
	},
}

// PrimaryVariant picks the rendition used for the main demo URL.
func PrimaryVariant(variants []VariantPreset) VariantPreset {
	for _, v := range variants {
		if v.Name == "720p" {
			return v
		}
	}
	return variants[0]
}

// Processor is the transcoding surface. The ffmpeg runner is the only
// production implementation; tests use mocks.
type Processor interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
	Standardize(ctx context.Context, inPath, outPath string) error
	RenderSlide(ctx context.Context, spec SlideSpec, outPath string) error
	EnsureAudio(ctx context.Context, inPath, outPath string) error
	Concat(ctx context.Context, listPath, outPath string) error
	Optimize(ctx context.Context, inPath, outPath string, preset VariantPreset) error
	Thumbnail(ctx context.Context, inPath, outPath string) error
}
