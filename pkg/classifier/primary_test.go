package classifier_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/triagent/pkg/classifier"
	"github.com/m-mizutani/triagent/pkg/model"
	"google.golang.org/genai"
)

// Mock Gemini
type mockGemini struct {
	response  string
	err       error
	delay     time.Duration
	callCount int
	lastText  string
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.callCount++
	for _, c := range contents {
		for _, p := range c.Parts {
			if p.Text != "" {
				m.lastText = p.Text
			}
		}
	}
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{{Text: m.response}},
				},
			},
		},
	}, nil
}

func TestPrimaryClassify(t *testing.T) {
	ctx := context.Background()
	mock := &mockGemini{
		response: `{"tier":1,"unit":"icu","overflow":false,"justification":"MI-suggestive chest pain with tachycardia"}`,
	}
	p := classifier.NewPrimary(mock)

	res, err := p.Classify(ctx, testContext("crushing chest pain", map[string]any{"hr": float64(140)}, 2))
	gt.NoError(t, err)
	gt.Equal(t, res.Tier, model.TierCritical)
	gt.Equal(t, res.RecommendedUnit, "icu")
	gt.Equal(t, mock.callCount, 1)

	// Prompt carries the capacity snapshot and the patient
	gt.True(t, strings.Contains(mock.lastText, "crushing chest pain"))
	gt.True(t, strings.Contains(mock.lastText, "| icu | 10 | 2 | 4 |"))
}

func TestPrimaryOverflowMarker(t *testing.T) {
	ctx := context.Background()
	mock := &mockGemini{
		response: `{"tier":1,"unit":"stabilize-and-transfer","justification":"no ICU capacity"}`,
	}
	p := classifier.NewPrimary(mock)

	res, err := p.Classify(ctx, testContext("crushing chest pain", nil, 0))
	gt.NoError(t, err)
	gt.Equal(t, res.RecommendedUnit, model.UnitStabilizeAndTransfer)
	gt.True(t, res.Overflow)
}

func TestPrimaryError(t *testing.T) {
	ctx := context.Background()
	mock := &mockGemini{err: goerr.New("rate limited")}
	p := classifier.NewPrimary(mock)

	_, err := p.Classify(ctx, testContext("cough", nil, 2))
	gt.Error(t, err)
}

func TestPrimaryTimeout(t *testing.T) {
	ctx := context.Background()
	mock := &mockGemini{
		response: `{"tier":4,"unit":"er","justification":"late"}`,
		delay:    time.Second,
	}
	p := classifier.NewPrimary(mock, classifier.WithTimeout(10*time.Millisecond))

	_, err := p.Classify(ctx, testContext("cough", nil, 2))
	gt.Error(t, err)
}

func TestPrimaryInvalidTier(t *testing.T) {
	ctx := context.Background()
	mock := &mockGemini{
		response: `{"tier":7,"unit":"er","justification":"bogus"}`,
	}
	p := classifier.NewPrimary(mock)

	_, err := p.Classify(ctx, testContext("cough", nil, 2))
	gt.Error(t, err)
}

func TestPrimaryMalformedResponse(t *testing.T) {
	ctx := context.Background()
	mock := &mockGemini{response: "not json"}
	p := classifier.NewPrimary(mock)

	_, err := p.Classify(ctx, testContext("cough", nil, 2))
	gt.Error(t, err)
}
