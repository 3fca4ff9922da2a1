// Package pipeline implements the Media Pipeline of spec §4.4: the strict
// probe -> extract -> transcribe -> score -> cut -> reframe -> caption ->
// finalize sequence, one job attempt at a time, with a cancellation
// checkpoint before and after every stage.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"viralclip-backend/internal/apperr"
	"viralclip-backend/internal/blob"
	"viralclip-backend/internal/metrics"
	"viralclip-backend/internal/models"
	"viralclip-backend/internal/pipeline/credit"
	"viralclip-backend/internal/pipeline/ffmpeg"
	"viralclip-backend/internal/scheduler"
)

type mediaTool interface {
	Probe(ctx context.Context, inputPath string) (*ffmpeg.ProbeResult, error)
	ExtractAudioMono16k(ctx context.Context, inputPath, outputWAV string) error
	CutSegment(ctx context.Context, inputPath string, startSec, endSec float64, outputPath string) error
	Reframe(ctx context.Context, inputPath string, filter ffmpeg.ReframeFilter, outputPath string) error
	BurnCaptionsAndEncode(ctx context.Context, inputPath, assPath string, tuning ffmpeg.EncodeTuning, outputPath string) error
}

type transcriber interface {
	Transcribe(ctx context.Context, audioURL string) ([]models.TranscriptSegment, error)
}

type transcriptRepo interface {
	Put(t *models.Transcript) error
}

type artifactRepo interface {
	ReplaceForJob(jobID uuid.UUID, artifacts []*models.Artifact) error
}

// Pipeline implements scheduler.PipelineRunner, executing one attempt of
// the Media Pipeline's stage sequence.
type Pipeline struct {
	tool        mediaTool
	transcriber transcriber
	blobs       blob.Store
	transcripts transcriptRepo
	artifacts   artifactRepo
	creditHook  credit.Hook
	workDir     string
	clipCount   int
	log         zerolog.Logger
}

func New(tool mediaTool, transcriber transcriber, blobs blob.Store, transcripts transcriptRepo, artifacts artifactRepo, creditHook credit.Hook, workDir string, clipCount int, log zerolog.Logger) *Pipeline {
	if creditHook == nil {
		creditHook = credit.NoopHook{}
	}
	if clipCount <= 0 {
		clipCount = 3
	}
	return &Pipeline{
		tool: tool, transcriber: transcriber, blobs: blobs,
		transcripts: transcripts, artifacts: artifacts, creditHook: creditHook,
		workDir: workDir, clipCount: clipCount, log: log,
	}
}

var _ scheduler.PipelineRunner = (*Pipeline)(nil)

// Run executes probe through finalize for one attempt of job, reporting
// progress through report and checking ctx at every stage boundary (the
// checkpoints of spec §5's cooperative cancellation model).
func (p *Pipeline) Run(ctx context.Context, job *models.Job, report scheduler.ProgressReporter) (*models.JobResults, error) {
	attemptDir := filepath.Join(p.workDir, job.ID.String(), fmt.Sprintf("attempt-%d", job.Attempts))
	if err := os.MkdirAll(attemptDir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindTransientIO, "create attempt work dir", err)
	}
	defer os.RemoveAll(attemptDir)

	if checkpoint(ctx) {
		return nil, ctx.Err()
	}

	inputPath, err := p.downloadInput(ctx, job, attemptDir)
	if err != nil {
		return nil, err
	}

	stageStart := time.Now()
	probeResult, err := p.probe(ctx, job, report, inputPath)
	metrics.StageDuration.WithLabelValues(models.PhaseProbe).Observe(time.Since(stageStart).Seconds())
	if err != nil {
		return nil, err
	}
	if checkpoint(ctx) {
		return nil, ctx.Err()
	}

	stageStart = time.Now()
	audioURL, err := p.extractAudio(ctx, job, report, inputPath, attemptDir)
	metrics.StageDuration.WithLabelValues(models.PhaseExtract).Observe(time.Since(stageStart).Seconds())
	if err != nil {
		return nil, err
	}
	if checkpoint(ctx) {
		return nil, ctx.Err()
	}

	stageStart = time.Now()
	transcript, err := p.transcribe(ctx, job, report, audioURL)
	metrics.StageDuration.WithLabelValues(models.PhaseTranscribe).Observe(time.Since(stageStart).Seconds())
	if err != nil {
		return nil, err
	}
	if checkpoint(ctx) {
		return nil, ctx.Err()
	}

	stageStart = time.Now()
	selected := p.score(job, report, transcript, probeResult.DurationSeconds)
	metrics.StageDuration.WithLabelValues(models.PhaseScore).Observe(time.Since(stageStart).Seconds())
	if checkpoint(ctx) {
		return nil, ctx.Err()
	}

	stageStart = time.Now()
	cutPaths, err := p.cut(ctx, job, report, inputPath, attemptDir, selected)
	metrics.StageDuration.WithLabelValues(models.PhaseCut).Observe(time.Since(stageStart).Seconds())
	if err != nil {
		return nil, err
	}
	if checkpoint(ctx) {
		return nil, ctx.Err()
	}

	stageStart = time.Now()
	reframedPaths, err := p.reframe(ctx, job, report, probeResult, attemptDir, cutPaths)
	metrics.StageDuration.WithLabelValues(models.PhaseReframe).Observe(time.Since(stageStart).Seconds())
	if err != nil {
		return nil, err
	}
	if checkpoint(ctx) {
		return nil, ctx.Err()
	}

	captioned := len(transcript.Segments) > 0 && job.Options.AddCaptions
	stageStart = time.Now()
	finalPaths, err := p.caption(ctx, job, report, transcript, attemptDir, reframedPaths, selected, captioned)
	metrics.StageDuration.WithLabelValues(models.PhaseCaption).Observe(time.Since(stageStart).Seconds())
	if err != nil {
		return nil, err
	}
	if checkpoint(ctx) {
		return nil, ctx.Err()
	}

	stageStart = time.Now()
	results, err := p.finalize(ctx, job, report, finalPaths, selected, captioned)
	metrics.StageDuration.WithLabelValues(models.PhaseFinalize).Observe(time.Since(stageStart).Seconds())
	return results, err
}

func checkpoint(ctx context.Context) bool {
	return ctx.Err() != nil
}

func (p *Pipeline) downloadInput(ctx context.Context, job *models.Job, dir string) (string, error) {
	rc, err := p.blobs.Get(ctx, blob.BlobKey(job.InputBlobID))
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransientIO, "fetch input blob", err)
	}
	defer rc.Close()

	path := filepath.Join(dir, "input.mp4")
	f, err := os.Create(path)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransientIO, "create input temp file", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, rc); err != nil {
		return "", apperr.Wrap(apperr.KindTransientIO, "write input temp file", err)
	}
	return path, nil
}

func (p *Pipeline) probe(ctx context.Context, job *models.Job, report scheduler.ProgressReporter, inputPath string) (*ffmpeg.ProbeResult, error) {
	report.Report(models.PhaseProbe, models.PhaseRanges[models.PhaseProbe].Low, "reading container metadata")

	result, err := p.tool.Probe(ctx, inputPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnreadable, "probe input", err)
	}
	if result.VideoCodec == "" {
		return nil, apperr.New(apperr.KindUnreadable, "no video stream found")
	}
	if result.DurationSeconds <= 0 {
		return nil, apperr.New(apperr.KindUnreadable, "zero-duration media")
	}

	report.Report(models.PhaseProbe, models.PhaseRanges[models.PhaseProbe].High, "probe complete")
	return result, nil
}

func (p *Pipeline) extractAudio(ctx context.Context, job *models.Job, report scheduler.ProgressReporter, inputPath, dir string) (string, error) {
	report.Report(models.PhaseExtract, models.PhaseRanges[models.PhaseExtract].Low, "extracting audio")

	wavPath := filepath.Join(dir, "audio.wav")
	if err := p.tool.ExtractAudioMono16k(ctx, inputPath, wavPath); err != nil {
		return "", apperr.Wrap(apperr.KindTransientIO, "extract audio", err)
	}

	f, err := os.Open(wavPath)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransientIO, "open extracted audio", err)
	}
	defer f.Close()

	key := "jobs/" + job.ID.String() + "/audio.wav"
	if _, err := p.blobs.Put(ctx, key, f); err != nil {
		return "", apperr.Wrap(apperr.KindTransientIO, "stage extracted audio", err)
	}

	audioURL := key
	if urler, ok := p.blobs.(blob.URLer); ok {
		audioURL = urler.PublicURL(key)
	}

	report.Report(models.PhaseExtract, models.PhaseRanges[models.PhaseExtract].High, "audio extracted")
	return audioURL, nil
}

func (p *Pipeline) transcribe(ctx context.Context, job *models.Job, report scheduler.ProgressReporter, audioURL string) (*models.Transcript, error) {
	report.Report(models.PhaseTranscribe, models.PhaseRanges[models.PhaseTranscribe].Low, "transcribing speech")

	segments, err := p.transcriber.Transcribe(ctx, audioURL)
	if err != nil {
		return nil, err
	}

	transcript := &models.Transcript{JobID: job.ID, Segments: segments}
	if err := p.transcripts.Put(transcript); err != nil {
		return nil, apperr.Wrap(apperr.KindTransientIO, "persist transcript", err)
	}

	desc := "transcription complete"
	if len(segments) == 0 {
		desc = "no speech detected"
	}
	report.Report(models.PhaseTranscribe, models.PhaseRanges[models.PhaseTranscribe].High, desc)
	return transcript, nil
}

func (p *Pipeline) score(job *models.Job, report scheduler.ProgressReporter, transcript *models.Transcript, totalDuration float64) []candidate {
	report.Report(models.PhaseScore, models.PhaseRanges[models.PhaseScore].Low, "scoring candidates")

	target := float64(models.TargetClipDuration(totalDuration, job.Options.ClipDurationHint))
	candidates := buildCandidates(transcript, target)
	if len(candidates) == 0 {
		candidates = evenlySpacedFallback(totalDuration, target)
	}

	selected := dedupeByIoU(candidates, p.clipCount)
	report.Report(models.PhaseScore, models.PhaseRanges[models.PhaseScore].High, fmt.Sprintf("selected %d candidates", len(selected)))
	return selected
}

// evenlySpacedFallback produces time-based windows when the transcript
// yields no lexical candidates (e.g. silent video, spec §8 scenario 6), so
// a job still produces artifacts instead of completing with zero clips.
func evenlySpacedFallback(totalDuration, target float64) []candidate {
	if totalDuration <= 0 {
		return nil
	}
	if target > totalDuration {
		target = totalDuration
	}
	var out []candidate
	for start := 0.0; start < totalDuration; start += target {
		end := start + target
		if end > totalDuration {
			end = totalDuration
		}
		if end-start < target*0.5 {
			break
		}
		out = append(out, candidate{Start: start, End: end, Score: 0})
	}
	return out
}

func (p *Pipeline) cut(ctx context.Context, job *models.Job, report scheduler.ProgressReporter, inputPath, dir string, selected []candidate) ([]string, error) {
	report.Report(models.PhaseCut, models.PhaseRanges[models.PhaseCut].Low, "cutting segments")

	paths := make([]string, len(selected))
	for i, c := range selected {
		out := filepath.Join(dir, fmt.Sprintf("cut-%d.mp4", i+1))
		if err := p.tool.CutSegment(ctx, inputPath, c.Start, c.End, out); err != nil {
			return nil, apperr.Wrap(apperr.KindTransientIO, "cut segment", err)
		}
		paths[i] = out
		report.Report(models.PhaseCut, stepPercent(models.PhaseCut, i+1, len(selected)), fmt.Sprintf("cut %d/%d", i+1, len(selected)))
	}
	return paths, nil
}

func (p *Pipeline) reframe(ctx context.Context, job *models.Job, report scheduler.ProgressReporter, probeResult *ffmpeg.ProbeResult, dir string, cutPaths []string) ([]string, error) {
	report.Report(models.PhaseReframe, models.PhaseRanges[models.PhaseReframe].Low, "reframing clips")

	filter := reframePolicy(probeResult.Width, probeResult.Height, job.Options.AspectRatio)
	paths := make([]string, len(cutPaths))
	for i, in := range cutPaths {
		out := filepath.Join(dir, fmt.Sprintf("reframed-%d.mp4", i+1))
		if err := p.tool.Reframe(ctx, in, filter, out); err != nil {
			return nil, apperr.Wrap(apperr.KindTransientIO, "reframe clip", err)
		}
		paths[i] = out
		report.Report(models.PhaseReframe, stepPercent(models.PhaseReframe, i+1, len(cutPaths)), fmt.Sprintf("reframed %d/%d", i+1, len(cutPaths)))
	}
	return paths, nil
}

// reframePolicy picks a center crop sized to the target aspect ratio,
// falling back to letterboxing when a 9:16 target would need to discard
// more than 40% of the source's horizontal content, per spec §4.4 step 6.
func reframePolicy(srcW, srcH int, aspect models.AspectRatio) ffmpeg.ReframeFilter {
	targetW, targetH := targetDimensions(aspect)
	if srcW <= 0 || srcH <= 0 {
		return ffmpeg.ReframeFilter{Letterbox: true, TargetW: targetW, TargetH: targetH}
	}

	srcAspect := float64(srcW) / float64(srcH)
	targetAspect := float64(targetW) / float64(targetH)

	if srcAspect > targetAspect {
		cropW := int(float64(srcH) * targetAspect)
		lostFraction := 1 - float64(cropW)/float64(srcW)
		if aspect == models.Aspect9x16 && lostFraction > 0.4 {
			return ffmpeg.ReframeFilter{Letterbox: true, TargetW: targetW, TargetH: targetH}
		}
		cropX := (srcW - cropW) / 2
		return ffmpeg.ReframeFilter{CropW: cropW, CropH: srcH, CropX: cropX, CropY: 0, TargetW: targetW, TargetH: targetH}
	}

	cropH := int(float64(srcW) / targetAspect)
	cropY := (srcH - cropH) / 2
	return ffmpeg.ReframeFilter{CropW: srcW, CropH: cropH, CropX: 0, CropY: cropY, TargetW: targetW, TargetH: targetH}
}

func targetDimensions(aspect models.AspectRatio) (int, int) {
	switch aspect {
	case models.Aspect1x1:
		return 1080, 1080
	case models.Aspect16x9:
		return 1920, 1080
	default:
		return 1080, 1920
	}
}

func (p *Pipeline) caption(ctx context.Context, job *models.Job, report scheduler.ProgressReporter, transcript *models.Transcript, dir string, reframedPaths []string, selected []candidate, captioned bool) ([]string, error) {
	report.Report(models.PhaseCaption, models.PhaseRanges[models.PhaseCaption].Low, "encoding clips")

	tuning := tuningFor(job.Options.QualityPreset)
	out := make([]string, len(reframedPaths))
	for i, in := range reframedPaths {
		var assPath string
		if captioned {
			doc := renderASS(transcript, selected[i].Start, selected[i].End, job.Options.CaptionStyle)
			if doc != "" {
				var err error
				assPath, err = ffmpeg.WriteTempASS(dir, fmt.Sprintf("captions-%d", i+1), doc)
				if err != nil {
					return nil, apperr.Wrap(apperr.KindTransientIO, "write caption file", err)
				}
			}
		}

		final := filepath.Join(dir, fmt.Sprintf("final-%d.mp4", i+1))
		if err := p.tool.BurnCaptionsAndEncode(ctx, in, assPath, tuning, final); err != nil {
			return nil, apperr.Wrap(apperr.KindTransientIO, "encode final clip", err)
		}
		out[i] = final
		report.Report(models.PhaseCaption, stepPercent(models.PhaseCaption, i+1, len(reframedPaths)), fmt.Sprintf("encoded %d/%d", i+1, len(reframedPaths)))
	}
	return out, nil
}

func tuningFor(preset models.QualityPreset) ffmpeg.EncodeTuning {
	switch preset {
	case models.QualityFast:
		return ffmpeg.EncodeTuning{Preset: "veryfast", CRF: 26, AudioBitrate: "128k"}
	case models.QualityHigh:
		return ffmpeg.EncodeTuning{Preset: "slow", CRF: 18, AudioBitrate: "192k"}
	default:
		return ffmpeg.EncodeTuning{Preset: "medium", CRF: 21, AudioBitrate: "160k"}
	}
}

func (p *Pipeline) finalize(ctx context.Context, job *models.Job, report scheduler.ProgressReporter, finalPaths []string, selected []candidate, captioned bool) (*models.JobResults, error) {
	report.Report(models.PhaseFinalize, models.PhaseRanges[models.PhaseFinalize].Low, "uploading artifacts")

	rows := make([]*models.Artifact, len(finalPaths))
	ids := make([]uuid.UUID, len(finalPaths))
	for i, path := range finalPaths {
		f, err := os.Open(path)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindTransientIO, "open final clip", err)
		}
		digest, size, err := blob.Digest(f)
		f.Close()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindTransientIO, "digest final clip", err)
		}
		_ = size

		f2, err := os.Open(path)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindTransientIO, "reopen final clip", err)
		}
		_, err = p.blobs.Put(ctx, blob.BlobKey(digest), f2)
		f2.Close()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindTransientIO, "upload final clip", err)
		}

		id := uuid.New()
		ids[i] = id
		rows[i] = &models.Artifact{
			ID:            id,
			JobID:         job.ID,
			Ordinal:       i + 1,
			BlobID:        digest,
			Duration:      selected[i].End - selected[i].Start,
			SourceStart:   selected[i].Start,
			SourceEnd:     selected[i].End,
			AspectRatio:   job.Options.AspectRatio,
			CaptionsAdded: captioned,
			ViralScore:    selected[i].Score,
		}
	}

	if err := p.artifacts.ReplaceForJob(job.ID, rows); err != nil {
		return nil, apperr.Wrap(apperr.KindTransientIO, "register artifacts", err)
	}

	if err := p.creditHook.OnJobCompleted(ctx, job.PrincipalID, job.ID.String()); err != nil {
		p.log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("credit hook failed, job still completes")
	}

	report.Report(models.PhaseFinalize, models.PhaseRanges[models.PhaseFinalize].High, "done")
	return &models.JobResults{TotalClips: len(rows), ArtifactIDs: ids}, nil
}

// stepPercent linearly interpolates within a stage's fixed sub-range
// across its i-th of n units of per-clip work.
func stepPercent(phase string, i, n int) int {
	rng := models.PhaseRanges[phase]
	if n <= 0 {
		return rng.High
	}
	span := rng.High - rng.Low
	return rng.Low + (span*i)/n
}
