// Package ffmpeg wraps the ffmpeg/ffprobe CLIs the way the retrieval
// pack's port adapter does: every operation is an exec.CommandContext call
// so ffmpeg's own process-level timeout handling composes with the
// pipeline's stage deadlines and cancellation checkpoints.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

type Adapter struct {
	ffmpegPath  string
	ffprobePath string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// ProbeResult mirrors the subset of ffprobe's JSON output the Probe stage
// needs (spec §4.4 step 1).
type ProbeResult struct {
	DurationSeconds float64
	Width, Height   int
	VideoCodec      string
	AudioCodec      string
	HasAudio        bool
	FrameRate       float64
	SampleRateHz    int
}

type probeStream struct {
	CodecType   string `json:"codec_type"`
	CodecName   string `json:"codec_name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	RFrameRate  string `json:"r_frame_rate"`
	SampleRate  string `json:"sample_rate"`
}

type probeFormat struct {
	DurationSeconds string `json:"duration"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

// Probe reads container metadata without decoding frames.
func (a *Adapter) Probe(ctx context.Context, inputPath string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, a.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("ffprobe: decode json: %w", err)
	}

	result := &ProbeResult{}
	if d, err := strconv.ParseFloat(strings.TrimSpace(parsed.Format.DurationSeconds), 64); err == nil {
		result.DurationSeconds = d
	}
	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "video":
			result.VideoCodec = s.CodecName
			result.Width = s.Width
			result.Height = s.Height
			result.FrameRate = parseRational(s.RFrameRate)
		case "audio":
			result.HasAudio = true
			result.AudioCodec = s.CodecName
			if sr, err := strconv.Atoi(s.SampleRate); err == nil {
				result.SampleRateHz = sr
			}
		}
	}
	return result, nil
}

func parseRational(s string) float64 {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// ExtractAudioMono16k produces a mono 16kHz WAV suitable for ASR input,
// per spec §4.4 step 2.
func (a *Adapter) ExtractAudioMono16k(ctx context.Context, inputPath, outputWAV string) error {
	cmd := exec.CommandContext(ctx, a.ffmpegPath,
		"-y", "-i", inputPath,
		"-vn", "-ac", "1", "-ar", "16000",
		"-f", "wav", outputWAV,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w: %s", err, string(b))
	}
	return nil
}

// CutSegment extracts a lossless-within-GOP sub-clip spanning [startSec,
// endSec), per spec §4.4 step 5.
func (a *Adapter) CutSegment(ctx context.Context, inputPath string, startSec, endSec float64, outputPath string) error {
	cmd := exec.CommandContext(ctx, a.ffmpegPath,
		"-y",
		"-ss", fmtSeconds(startSec),
		"-to", fmtSeconds(endSec),
		"-i", inputPath,
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		outputPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg cut segment: %w: %s", err, string(b))
	}
	return nil
}

// ReframeFilter is the chosen crop/pad strategy for one clip, decided by
// the pipeline's reframe policy (spec §4.4 step 6) before this adapter is
// asked to apply it — the adapter itself is policy-free.
type ReframeFilter struct {
	// CropW/CropH/CropX/CropY describe a crop rectangle in source pixels;
	// zero values mean "no crop, letterbox only".
	CropW, CropH, CropX, CropY int
	TargetW, TargetH           int
	Letterbox                  bool
}

// Reframe applies the crop/pad filter chain and re-encodes, per spec §4.4
// step 6.
func (a *Adapter) Reframe(ctx context.Context, inputPath string, filter ReframeFilter, outputPath string) error {
	var vf string
	if filter.Letterbox {
		vf = fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
			filter.TargetW, filter.TargetH, filter.TargetW, filter.TargetH)
	} else {
		vf = fmt.Sprintf("crop=%d:%d:%d:%d,scale=%d:%d",
			filter.CropW, filter.CropH, filter.CropX, filter.CropY, filter.TargetW, filter.TargetH)
	}

	cmd := exec.CommandContext(ctx, a.ffmpegPath,
		"-y", "-i", inputPath,
		"-vf", vf,
		"-c:a", "copy",
		outputPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg reframe: %w: %s", err, string(b))
	}
	return nil
}

// EncodeTuning is the speed/CRF pair a quality preset maps to, per spec
// §6.2's "quality_preset ... encoder mapping".
type EncodeTuning struct {
	Preset      string
	CRF         int
	AudioBitrate string
}

// BurnCaptionsAndEncode overlays an ASS subtitle file (if non-empty) and
// encodes to the target quality preset, the Caption Burn + Finalize stages
// of spec §4.4 steps 7-8 collapsed into one ffmpeg invocation since both
// produce the same final encode.
func (a *Adapter) BurnCaptionsAndEncode(ctx context.Context, inputPath, assPath string, tuning EncodeTuning, outputPath string) error {
	args := []string{"-y", "-i", inputPath}
	if assPath != "" {
		args = append(args, "-vf", "ass="+escapeFilterPath(assPath))
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", tuning.Preset,
		"-crf", strconv.Itoa(tuning.CRF),
		"-c:a", "aac",
		"-b:a", tuning.AudioBitrate,
		outputPath,
	)
	cmd := exec.CommandContext(ctx, a.ffmpegPath, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg encode: %w: %s", err, string(b))
	}
	return nil
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	return p
}

// WriteTempASS writes subtitle content to a temp file for ffmpeg's
// subtitles/ass filter, which requires a filesystem path rather than
// accepting the document inline.
func WriteTempASS(dir, name, content string) (string, error) {
	path := dir + "/" + name + ".ass"
	return path, os.WriteFile(path, []byte(content), 0o644)
}
