package agent

import (
	"context"

	"pharmabot/internal/advisor"
	"pharmabot/internal/domain"
)

// Turn is one user utterance as received from the chat or voice endpoint.
type Turn struct {
	SessionID string
	PatientID string
	Text      string
	// Language is the client's hint; the detected script wins when supported.
	Language domain.Language
	Voice    bool
}

// State is what one step sees. Steps take it by value and return a new one,
// so a step cannot change what an earlier step produced.
type State struct {
	Turn           Turn
	Memory         Memory
	Patient        domain.Patient
	Language       domain.Language
	Classification Classification

	Analysis        advisor.Analysis
	Recommendations []domain.Medicine
	Order           *domain.Order
	Safety          *domain.SafetyError

	Reply                string
	RequiresConfirmation bool
	AudioURL             string
	// Done stops the remaining steps.
	Done bool
}

// Step is one stage of the pipeline.
type Step func(ctx context.Context, s State) (State, error)

// run applies steps in order until one fails or marks the state done.
func run(ctx context.Context, s State, steps ...Step) (State, error) {
	for _, step := range steps {
		if s.Done {
			break
		}
		next, err := step(ctx, s)
		if err != nil {
			return s, err
		}
		s = next
	}
	return s, nil
}

func (s State) withReply(text string) State {
	s.Reply = text
	s.Done = true
	return s
}

func (s State) withRecommendations(meds []domain.Medicine) State {
	s.Recommendations = append([]domain.Medicine(nil), meds...)
	s.Memory.LastRecommendations = medicineNames(meds)
	return s
}

// Reply is the response to one turn.
type Reply struct {
	SessionID            string              `json:"session_id"`
	Intent               domain.Intent       `json:"intent"`
	Language             domain.Language     `json:"language"`
	Text                 string              `json:"reply"`
	Recommendations      []domain.Medicine   `json:"recommendations"`
	Order                *domain.Order       `json:"order,omitempty"`
	Safety               *domain.SafetyError `json:"safety,omitempty"`
	RequiresConfirmation bool                `json:"requires_confirmation"`
	AudioURL             string              `json:"audio_url,omitempty"`
}

func (s State) reply() *Reply {
	recs := s.Recommendations
	if recs == nil {
		recs = []domain.Medicine{}
	}
	return &Reply{
		SessionID:            s.Turn.SessionID,
		Intent:               s.Classification.Intent,
		Language:             s.Language,
		Text:                 s.Reply,
		Recommendations:      recs,
		Order:                s.Order,
		Safety:               s.Safety,
		RequiresConfirmation: s.RequiresConfirmation,
		AudioURL:             s.AudioURL,
	}
}
