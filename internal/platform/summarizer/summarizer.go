// Package summarizer wraps the external symptom-summarization service. The
// service is consumed as a pure text-in, text-out function; when it is
// missing or failing a fixed text is returned instead.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Fixed texts used when no real summary is available.
const (
	CannedSummary  = "Simulated summary: patient reports symptoms compatible with an acute viral condition. Temperature check and a detailed physical exam are recommended."
	FailureSummary = "Could not process symptoms with AI. Check the connection."
	EmptySummary   = "Could not generate the summary."
)

type Summarizer interface {
	Summarize(ctx context.Context, symptoms, patientData string) (string, error)
}

// Canned always returns CannedSummary.
type Canned struct{}

func (Canned) Summarize(context.Context, string, string) (string, error) {
	return CannedSummary, nil
}

type fallback struct {
	next   Summarizer
	logger zerolog.Logger
}

// WithFallback never fails: a nil next yields the canned summary, an error
// yields FailureSummary and an empty result yields EmptySummary.
func WithFallback(next Summarizer, logger zerolog.Logger) Summarizer {
	if next == nil {
		logger.Warn().Msg("no summarization service configured, using canned summaries")
		return Canned{}
	}
	return &fallback{next: next, logger: logger}
}

func (f *fallback) Summarize(ctx context.Context, symptoms, patientData string) (string, error) {
	out, err := f.next.Summarize(ctx, symptoms, patientData)
	if err != nil {
		f.logger.Error().Err(err).Msg("symptom summarization failed")
		return FailureSummary, nil
	}
	if strings.TrimSpace(out) == "" {
		return EmptySummary, nil
	}
	return out, nil
}

// Prompt builds the triage instruction sent to a language-model service.
func Prompt(symptoms, patientData string) string {
	var b strings.Builder
	b.WriteString("Act as a senior medical assistant performing triage.\n\n")
	b.WriteString("PATIENT DATA:\n")
	b.WriteString(patientData)
	b.WriteString("\n\nPATIENT REPORT:\n\"")
	b.WriteString(symptoms)
	b.WriteString("\"\n\nTASK:\n")
	b.WriteString("Write a technical, direct and concise clinical summary (3 lines at most) for the clinician to read before the video consultation. ")
	b.WriteString("Start with the urgency (LOW, MEDIUM, HIGH). List the main complaints in medical terminology.")
	return b.String()
}

// HTTP calls a text-generation endpoint that accepts {"prompt": "..."} and
// answers {"text": "..."}.
type HTTP struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTP(endpoint, apiKey string) *HTTP {
	return &HTTP{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTTP) Summarize(ctx context.Context, symptoms, patientData string) (string, error) {
	body, err := json.Marshal(map[string]string{"prompt": Prompt(symptoms, patientData)})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("summarizer request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summarizer returned status %d", resp.StatusCode)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode summarizer response: %w", err)
	}
	return out.Text, nil
}
