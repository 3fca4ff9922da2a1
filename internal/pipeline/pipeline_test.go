package pipeline

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viralclip-backend/internal/apperr"
	"viralclip-backend/internal/blob"
	"viralclip-backend/internal/models"
	"viralclip-backend/internal/pipeline/credit"
	"viralclip-backend/internal/pipeline/ffmpeg"
)

type fakeTool struct {
	probeResult *ffmpeg.ProbeResult
	cuts        int
	reframes    int
	encodes     int
	failStage   string
}

func (f *fakeTool) Probe(ctx context.Context, inputPath string) (*ffmpeg.ProbeResult, error) {
	if f.failStage == "probe" {
		return nil, assertErr("probe")
	}
	return f.probeResult, nil
}

func (f *fakeTool) ExtractAudioMono16k(ctx context.Context, inputPath, outputWAV string) error {
	if f.failStage == "extract" {
		return assertErr("extract")
	}
	return os.WriteFile(outputWAV, []byte("wav"), 0o644)
}

func (f *fakeTool) CutSegment(ctx context.Context, inputPath string, startSec, endSec float64, outputPath string) error {
	f.cuts++
	return os.WriteFile(outputPath, []byte("cut"), 0o644)
}

func (f *fakeTool) Reframe(ctx context.Context, inputPath string, filter ffmpeg.ReframeFilter, outputPath string) error {
	f.reframes++
	return os.WriteFile(outputPath, []byte("reframed"), 0o644)
}

func (f *fakeTool) BurnCaptionsAndEncode(ctx context.Context, inputPath, assPath string, tuning ffmpeg.EncodeTuning, outputPath string) error {
	f.encodes++
	return os.WriteFile(outputPath, []byte("final"), 0o644)
}

type assertErrT string

func (e assertErrT) Error() string { return string(e) }
func assertErr(s string) error     { return assertErrT(s) }

type fakeTranscriber struct {
	segments []models.TranscriptSegment
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioURL string) ([]models.TranscriptSegment, error) {
	return f.segments, nil
}

type fakeTranscriptRepo struct {
	put *models.Transcript
}

func (f *fakeTranscriptRepo) Put(t *models.Transcript) error {
	f.put = t
	return nil
}

type fakeArtifactRepo struct {
	replaced []*models.Artifact
}

func (f *fakeArtifactRepo) ReplaceForJob(jobID uuid.UUID, artifacts []*models.Artifact) error {
	f.replaced = artifacts
	return nil
}

type fakeReporter struct {
	reports []models.Progress
}

func (r *fakeReporter) Report(phase string, percent int, description string) {
	r.reports = append(r.reports, models.Progress{Phase: phase, Percent: percent, Description: description})
}
func (r *fakeReporter) Cancelled() bool { return false }

func newTestPipeline(t *testing.T, tool *fakeTool, tr *fakeTranscriber, transcripts *fakeTranscriptRepo, artifacts *fakeArtifactRepo) (*Pipeline, *blob.FSStore) {
	store, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return New(tool, tr, store, transcripts, artifacts, credit.NoopHook{}, t.TempDir(), 3, zerolog.Nop()), store
}

func seedInputBlob(t *testing.T, store *blob.FSStore, jobID string) string {
	digest := "deadbeef"
	_, err := store.Put(context.Background(), blob.BlobKey(digest), fileReader(t, "fake video bytes"))
	require.NoError(t, err)
	return digest
}

func fileReader(t *testing.T, content string) *os.File {
	f, err := os.CreateTemp(t.TempDir(), "in-*")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)
	return f
}

func TestPipeline_HappyPathProducesArtifacts(t *testing.T) {
	tool := &fakeTool{probeResult: &ffmpeg.ProbeResult{
		DurationSeconds: 90, Width: 1920, Height: 1080, VideoCodec: "h264", HasAudio: true,
	}}
	tr := &fakeTranscriber{segments: []models.TranscriptSegment{
		{Start: 0, End: 5, Text: "this is a great hook, watch this", Words: []models.TranscriptWord{
			{Start: 0, End: 1, Word: "this"}, {Start: 1, End: 2, Word: "is"}, {Start: 2, End: 3, Word: "a"},
			{Start: 3, End: 4, Word: "great"}, {Start: 4, End: 5, Word: "hook"},
		}},
	}}
	transcripts := &fakeTranscriptRepo{}
	artifacts := &fakeArtifactRepo{}
	p, store := newTestPipeline(t, tool, tr, transcripts, artifacts)

	job := &models.Job{ID: uuid.New(), PrincipalID: "user-1", Options: models.JobOptions{
		AspectRatio: models.Aspect9x16, QualityPreset: models.QualityMedium, AddCaptions: true, CaptionStyle: models.CaptionModern,
	}}
	job.Options.Normalize()
	digest := seedInputBlob(t, store, job.ID.String())
	job.InputBlobID = digest

	reporter := &fakeReporter{}
	results, err := p.Run(context.Background(), job, reporter)
	require.NoError(t, err)
	require.NotNil(t, results)
	assert.Greater(t, results.TotalClips, 0)
	assert.Len(t, artifacts.replaced, results.TotalClips)
	assert.NotNil(t, transcripts.put)
	assert.Greater(t, tool.cuts, 0)
	assert.Equal(t, tool.cuts, tool.reframes)
	assert.Equal(t, tool.cuts, tool.encodes)

	var sawFinalize bool
	for _, r := range reporter.reports {
		if r.Phase == models.PhaseFinalize && r.Percent == 100 {
			sawFinalize = true
		}
	}
	assert.True(t, sawFinalize)
}

func TestPipeline_NoSpeechFallsBackToEvenlySpacedCandidates(t *testing.T) {
	tool := &fakeTool{probeResult: &ffmpeg.ProbeResult{
		DurationSeconds: 60, Width: 1920, Height: 1080, VideoCodec: "h264", HasAudio: false,
	}}
	tr := &fakeTranscriber{segments: nil}
	transcripts := &fakeTranscriptRepo{}
	artifacts := &fakeArtifactRepo{}
	p, store := newTestPipeline(t, tool, tr, transcripts, artifacts)

	job := &models.Job{ID: uuid.New(), PrincipalID: "user-1", Options: models.JobOptions{AddCaptions: true}}
	job.Options.Normalize()
	job.InputBlobID = seedInputBlob(t, store, job.ID.String())

	results, err := p.Run(context.Background(), job, &fakeReporter{})
	require.NoError(t, err)
	require.NotNil(t, results)
	assert.Greater(t, results.TotalClips, 0)
	for _, a := range artifacts.replaced {
		assert.False(t, a.CaptionsAdded)
	}
}

func TestPipeline_CancellationBeforeFirstStageAborts(t *testing.T) {
	tool := &fakeTool{probeResult: &ffmpeg.ProbeResult{DurationSeconds: 60, VideoCodec: "h264"}}
	tr := &fakeTranscriber{}
	transcripts := &fakeTranscriptRepo{}
	artifacts := &fakeArtifactRepo{}
	p, store := newTestPipeline(t, tool, tr, transcripts, artifacts)

	job := &models.Job{ID: uuid.New(), PrincipalID: "user-1", Options: models.JobOptions{}}
	job.Options.Normalize()
	job.InputBlobID = seedInputBlob(t, store, job.ID.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := p.Run(ctx, job, &fakeReporter{})
	assert.Error(t, err)
	assert.Nil(t, results)
	assert.Empty(t, artifacts.replaced)
}

func TestPipeline_ProbeFailureIsUnreadable(t *testing.T) {
	tool := &fakeTool{failStage: "probe"}
	tr := &fakeTranscriber{}
	transcripts := &fakeTranscriptRepo{}
	artifacts := &fakeArtifactRepo{}
	p, store := newTestPipeline(t, tool, tr, transcripts, artifacts)

	job := &models.Job{ID: uuid.New(), PrincipalID: "user-1", Options: models.JobOptions{}}
	job.Options.Normalize()
	job.InputBlobID = seedInputBlob(t, store, job.ID.String())

	_, err := p.Run(context.Background(), job, &fakeReporter{})
	assert.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindUnreadable, ae.Kind)
}

func TestEvenlySpacedFallback_RespectsTotalDuration(t *testing.T) {
	candidates := evenlySpacedFallback(45, 15)
	require.NotEmpty(t, candidates)
	for _, c := range candidates {
		assert.LessOrEqual(t, c.End, 45.0)
		assert.Greater(t, c.End, c.Start)
	}
}

func TestReframePolicy_WideSourceToVerticalLetterboxesPastThreshold(t *testing.T) {
	filter := reframePolicy(1920, 1080, models.Aspect9x16)
	assert.True(t, filter.Letterbox)
}

func TestReframePolicy_NearSquareSourceToVerticalCrops(t *testing.T) {
	filter := reframePolicy(1080, 1350, models.Aspect9x16)
	assert.False(t, filter.Letterbox)
	assert.Greater(t, filter.CropH, 0)
}

func TestTuningFor_MapsAllPresets(t *testing.T) {
	fast := tuningFor(models.QualityFast)
	medium := tuningFor(models.QualityMedium)
	high := tuningFor(models.QualityHigh)
	assert.NotEqual(t, fast.CRF, high.CRF)
	assert.NotEqual(t, medium.CRF, fast.CRF)
	assert.NotEqual(t, medium.CRF, high.CRF)
}

func TestStepPercent_InterpolatesWithinStageBand(t *testing.T) {
	got := stepPercent(models.PhaseCut, 1, 2)
	rng := models.PhaseRanges[models.PhaseCut]
	assert.GreaterOrEqual(t, got, rng.Low)
	assert.LessOrEqual(t, got, rng.High)
}
