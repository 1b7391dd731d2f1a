//go:build cucumber

package scoring

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/cucumber/godog"
)

// TestScoringFeatures runs the scoring scenarios through godog.
func TestScoringFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "scoring",
		ScenarioInitializer: initializeScoringScenario,
		Options: &godog.Options{
			Format:    "pretty",
			Paths:     []string{filepath.Join("features", "scoring.feature")},
			Strict:    true,
			TestingT:  t,
			Randomize: 0,
		},
	}
	if suite.Run() != 0 {
		t.Fatalf("non-zero godog status")
	}
}

type scoringState struct {
	question Question
	result   Result
}

func initializeScoringScenario(ctx *godog.ScenarioContext) {
	state := &scoringState{}
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		*state = scoringState{}
		return ctx, nil
	})

	ctx.Step(`^a "([^"]+)" question with answer "([^"]*)"$`, state.givenQuestion)
	ctx.Step(`^the user answers "([^"]*)"$`, state.userAnswers)
	ctx.Step(`^the score is ([0-9.]+) with label "([^"]+)"$`, state.scoreIs)
	ctx.Step(`^the reason is "([^"]*)"$`, state.reasonIs)
	ctx.Step(`^the reason mentions "([^"]*)"$`, state.reasonMentions)
}

func (s *scoringState) givenQuestion(qType, answer string) error {
	s.question = Question{Type: QuestionType(qType), Answer: answer}
	return nil
}

func (s *scoringState) userAnswers(answer string) error {
	s.result = ScoreAnswer(s.question, answer)
	return nil
}

func (s *scoringState) scoreIs(points, label string) error {
	want, err := strconv.ParseFloat(points, 64)
	if err != nil {
		return fmt.Errorf("parse points: %w", err)
	}
	if s.result.Points != want || string(s.result.Label) != label {
		return fmt.Errorf("expected %v/%s, got %v/%s (%s)", want, label, s.result.Points, s.result.Label, s.result.Reason)
	}
	return nil
}

func (s *scoringState) reasonIs(reason string) error {
	if s.result.Reason != reason {
		return fmt.Errorf("expected reason %q, got %q", reason, s.result.Reason)
	}
	return nil
}

func (s *scoringState) reasonMentions(part string) error {
	if !strings.Contains(s.result.Reason, part) {
		return fmt.Errorf("expected reason to mention %q, got %q", part, s.result.Reason)
	}
	return nil
}
