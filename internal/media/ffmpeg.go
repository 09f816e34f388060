package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/demoreel/demoreel-server/internal/config"
	apperrors "github.com/demoreel/demoreel-server/internal/errors"
)

// canonical output format every clip is normalized to before stitching
const (
	canonicalScalePad = "scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:(ow-iw)/2:(oh-ih)/2,setsar=1"
	canonicalFPS      = "30"
	silentAudioSource = "anullsrc=channel_layout=stereo:sample_rate=44100"
	slideResolution   = "1920x1080"
	thumbnailScalePad = "scale=640:360:force_original_aspect_ratio=decrease,pad=640:360:(ow-iw)/2:(oh-ih)/2"
)

// Runner shells out to ffmpeg and ffprobe.
type Runner struct {
	ffmpeg  string
	ffprobe string
}

var _ Processor = (*Runner)(nil)

func NewRunner(ffmpegPath, ffprobePath string) *Runner {
	return &Runner{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

func (r *Runner) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, config.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, r.toolError(ctx, "ffprobe", err, nil)
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, apperrors.MediaTool("ffprobe output parse", err)
	}

	result := &ProbeResult{}
	result.Duration, _ = strconv.ParseFloat(parsed.Format.Duration, 64)
	result.Bitrate, _ = strconv.ParseInt(parsed.Format.BitRate, 10, 64)
	for _, stream := range parsed.Streams {
		switch stream.CodecType {
		case "video":
			if result.Codec == "" {
				result.Codec = stream.CodecName
				result.Width = stream.Width
				result.Height = stream.Height
				result.FPS = parseFrameRate(stream.RFrameRate)
			}
		case "audio":
			result.HasAudio = true
		}
	}
	if result.Codec == "" {
		return nil, apperrors.New(apperrors.ErrCodeMediaTool, "no video stream found")
	}
	return result, nil
}

// parseFrameRate converts ffprobe's "30000/1001" fraction form.
func parseFrameRate(raw string) float64 {
	num, den, found := strings.Cut(raw, "/")
	if !found {
		fps, _ := strconv.ParseFloat(raw, 64)
		return fps
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func standardizeArgs(inPath, outPath string) []string {
	return []string{
		"-y",
		"-i", inPath,
		"-vf", canonicalScalePad,
		"-r", canonicalFPS,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-b:v", "2M",
		"-maxrate", "2M",
		"-bufsize", "4M",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "44100",
		"-movflags", "+faststart",
		outPath,
	}
}

func (r *Runner) Standardize(ctx context.Context, inPath, outPath string) error {
	return r.runFFmpeg(ctx, config.ConvertTimeout, standardizeArgs(inPath, outPath))
}

func slideArgs(spec SlideSpec, outPath string) []string {
	seconds := strconv.Itoa(spec.Seconds)
	background := spec.Background
	if background == "" {
		background = "0x1A1A2E"
	}
	filter := drawTextFilter(spec)
	return []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=%s:d=%s:r=%s", background, slideResolution, seconds, canonicalFPS),
		"-f", "lavfi",
		"-i", silentAudioSource,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "44100",
		"-t", seconds,
		"-movflags", "+faststart",
		outPath,
	}
}

func drawTextFilter(spec SlideSpec) string {
	parts := []string{fmt.Sprintf(
		"drawtext=text='%s':fontcolor=white:fontsize=96:x=(w-text_w)/2:y=(h-text_h)/2-60",
		escapeDrawText(spec.Heading),
	)}
	if spec.Subheading != "" {
		parts = append(parts, fmt.Sprintf(
			"drawtext=text='%s':fontcolor=0xB0B0C0:fontsize=48:x=(w-text_w)/2:y=(h-text_h)/2+80",
			escapeDrawText(spec.Subheading),
		))
	}
	return strings.Join(parts, ",")
}

// escapeDrawText guards the characters drawtext treats specially.
func escapeDrawText(text string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return replacer.Replace(text)
}

func (r *Runner) RenderSlide(ctx context.Context, spec SlideSpec, outPath string) error {
	return r.runFFmpeg(ctx, config.SlideClipTimeout, slideArgs(spec, outPath))
}

func ensureAudioArgs(inPath, outPath string) []string {
	return []string{
		"-y",
		"-i", inPath,
		"-f", "lavfi",
		"-i", silentAudioSource,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "44100",
		"-shortest",
		outPath,
	}
}

func (r *Runner) EnsureAudio(ctx context.Context, inPath, outPath string) error {
	return r.runFFmpeg(ctx, config.ConvertTimeout, ensureAudioArgs(inPath, outPath))
}

func concatArgs(listPath, outPath string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		outPath,
	}
}

func (r *Runner) Concat(ctx context.Context, listPath, outPath string) error {
	return r.runFFmpeg(ctx, config.ConcatTimeout, concatArgs(listPath, outPath))
}

func optimizeArgs(inPath, outPath string, preset VariantPreset) []string {
	scalePad := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		preset.Width, preset.Height, preset.Width, preset.Height,
	)
	return []string{
		"-y",
		"-i", inPath,
		"-vf", scalePad,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", preset.CRF,
		"-b:v", preset.VideoBitrate,
		"-maxrate", preset.MaxRate,
		"-bufsize", preset.BufSize,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", preset.AudioBitrate,
		"-movflags", "+faststart",
		outPath,
	}
}

func (r *Runner) Optimize(ctx context.Context, inPath, outPath string, preset VariantPreset) error {
	return r.runFFmpeg(ctx, config.OptimizeTimeout, optimizeArgs(inPath, outPath, preset))
}

func thumbnailArgs(inPath, outPath string) []string {
	return []string{
		"-y",
		"-ss", "00:00:01",
		"-i", inPath,
		"-vframes", "1",
		"-vf", thumbnailScalePad,
		"-q:v", "2",
		outPath,
	}
}

func (r *Runner) Thumbnail(ctx context.Context, inPath, outPath string) error {
	return r.runFFmpeg(ctx, config.ThumbnailTimeout, thumbnailArgs(inPath, outPath))
}

func (r *Runner) runFFmpeg(ctx context.Context, timeout time.Duration, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.ffmpeg, args...)
	cmd.Stderr = &stderr

	log.Debug().Strs("args", args).Msg("running ffmpeg")
	if err := cmd.Run(); err != nil {
		return r.toolError(ctx, "ffmpeg", err, stderr.Bytes())
	}
	return nil
}

func (r *Runner) toolError(ctx context.Context, tool string, err error, stderr []byte) error {
	if ctx.Err() == context.DeadlineExceeded {
		return apperrors.MediaTimeout(tool).WithCause(err)
	}
	detail := strings.TrimSpace(string(stderr))
	if exitErr, ok := err.(*exec.ExitError); ok && detail == "" {
		detail = strings.TrimSpace(string(exitErr.Stderr))
	}
	appErr := apperrors.MediaTool(tool, err)
	if detail != "" {
		appErr = appErr.WithDetails(tail(detail, 500))
	}
	return appErr
}

// tail keeps the last n bytes, where ffmpeg puts the actual error.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
