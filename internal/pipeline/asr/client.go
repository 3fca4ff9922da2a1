// Package asr is the HTTP client for the external speech-to-text
// dependency the Transcribe stage calls (spec §4.4 step 3). Its request/
// response shape and error wrapping follow the teacher's imagen.Client:
// one http.Client, JSON bodies, status-code-gated error construction.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"viralclip-backend/internal/apperr"
	"viralclip-backend/internal/models"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

type transcribeRequest struct {
	AudioURL string `json:"audio_url"`
}

type transcribeWord struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

type transcribeSegment struct {
	Start float64          `json:"start"`
	End   float64          `json:"end"`
	Text  string           `json:"text"`
	Words []transcribeWord `json:"words"`
}

type transcribeResponse struct {
	Segments []transcribeSegment `json:"segments"`
}

// Transcribe sends the extracted audio for speech-to-text and returns the
// segment + word-level timed transcript. No speech detected is represented
// by an empty Segments slice, not an error, per spec §4.4 step 3.
func (c *Client) Transcribe(ctx context.Context, audioURL string) ([]models.TranscriptSegment, error) {
	body, err := json.Marshal(transcribeRequest{AudioURL: audioURL})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "marshal transcribe request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcribe", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "build transcribe request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientDependency, "call transcribe endpoint", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientDependency, "read transcribe response", err)
	}

	if resp.StatusCode >= 500 {
		return nil, apperr.New(apperr.KindTransientDependency, fmt.Sprintf("transcribe dependency returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindUnreadable, fmt.Sprintf("transcribe rejected input: status %d, body %s", resp.StatusCode, string(respBody)))
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindTransientDependency, "decode transcribe response", err)
	}

	segments := make([]models.TranscriptSegment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		words := make([]models.TranscriptWord, 0, len(s.Words))
		for _, w := range s.Words {
			words = append(words, models.TranscriptWord{Start: w.Start, End: w.End, Word: w.Word})
		}
		segments = append(segments, models.TranscriptSegment{Start: s.Start, End: s.End, Text: s.Text, Words: words})
	}
	return segments, nil
}
