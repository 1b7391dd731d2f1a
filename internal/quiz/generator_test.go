package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"studysnap/internal/scoring"
)

var testImage = strings.Repeat("iVBORw0KGgo", 10)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		title   string
		wantErr bool
	}{
		{name: "plain", text: `{"title":"Cel"}`, title: "Cel"},
		{name: "markdown fence", text: "```json\n{\"title\":\"Cel\"}\n```", title: "Cel"},
		{name: "prose around", text: `Here you go: {"title":"Cel","questions":[]} Good luck!`, title: "Cel"},
		{name: "no object", text: "sorry, I cannot read the photo", wantErr: true},
		{name: "broken object", text: `{"title": }`, wantErr: true},
		{name: "closing before opening", text: `} nothing {`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var q Quiz
			err := ExtractJSONObject(tc.text, &q)
			if tc.wantErr {
				if !errors.Is(err, ErrNotJSON) {
					t.Fatalf("expected ErrNotJSON, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if q.Title != tc.title {
				t.Fatalf("expected title=%s, got=%s", tc.title, q.Title)
			}
		})
	}
}

func TestDecodeQuizDropsInvalidRecords(t *testing.T) {
	text := `{"title":"Cel","questions":[
		{"type":"short_answer","difficulty":"Medium","question":"Wat is een cel?","answer":"bouwsteen"},
		{"type":"essay","question":"Beschrijf de cel","answer":"x"},
		{"type":"short_answer","question":"Zonder antwoord"},
		{"type":"multiple_choice","question":"Kies","answer":"A"},
		{"type":"multiple_choice","question":"Kies","choices":["A"],"answer":"A"},
		{"type":"true_false","difficulty":"impossible","question":"Klopt dit?","answer":"waar"},
		"not an object"
	]}`

	q, err := decodeQuiz(text)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(q.Questions) != 1 {
		t.Fatalf("expected one valid question, got %d: %+v", len(q.Questions), q.Questions)
	}
	if q.Questions[0].Difficulty != scoring.DifficultyMedium || q.Questions[0].Answer != "bouwsteen" {
		t.Fatalf("unexpected question %+v", q.Questions[0])
	}
}

func TestDecodeQuizRejectsBadEnvelope(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{name: "array", text: `[{"question":"x"}]`, want: ErrNotJSON},
		{name: "missing questions", text: `{"title":"x"}`, want: ErrNotJSON},
		{name: "title not a string", text: `{"title":5,"questions":[]}`, want: ErrNotJSON},
		{name: "all records invalid", text: `{"questions":[{"type":"essay","question":"x","answer":"y"}]}`, want: ErrNoQuestions},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodeQuiz(tc.text); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDifficultyMix(t *testing.T) {
	tests := []struct {
		count, easy, medium, hard int
	}{
		{count: 10, easy: 4, medium: 4, hard: 2},
		{count: 5, easy: 2, medium: 2, hard: 1},
		{count: 1, easy: 1, medium: 0, hard: 0},
		{count: 50, easy: 20, medium: 20, hard: 10},
	}
	for _, tc := range tests {
		e, m, h := difficultyMix(tc.count)
		if e != tc.easy || m != tc.medium || h != tc.hard {
			t.Fatalf("difficultyMix(%d) expected %d/%d/%d, got %d/%d/%d", tc.count, tc.easy, tc.medium, tc.hard, e, m, h)
		}
	}
}

func geminiReply(text string) string {
	body, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
		},
	})
	return string(body)
}

func TestGeminiGeneratorGenerate(t *testing.T) {
	var gotPath, gotKey, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		quiz := "```json\n" + `{"title":" De cel ","questions":[
			{"type":"Multiple_Choice","difficulty":"easy","question":"Wat is de celkern?","choices":["A","B"],"answer":"A"},
			{"type":"true_false","question":"Een cel heeft een kern.","choices":["waar","onwaar"],"answer":"waar"},
			{"type":"short_answer","question":"  ","answer":"x"}
		]}` + "\n```"
		_, _ = w.Write([]byte(geminiReply(quiz)))
	}))
	defer srv.Close()

	gen := NewGeminiGenerator(GeminiConfig{APIKey: "k-123", BaseURL: srv.URL, HTTPClient: srv.Client()})
	got, err := gen.Generate(context.Background(), GenerateInput{ImageBase64: testImage, MimeType: "image/png", QuestionCount: 3})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if gotPath != "/models/gemini-2.0-flash:generateContent" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotKey != "k-123" {
		t.Fatalf("expected api key in query, got %q", gotKey)
	}
	if !strings.Contains(gotBody, `"mimeType":"image/png"`) || !strings.Contains(gotBody, "exactly 3 practice questions") {
		t.Fatalf("unexpected request body %s", gotBody)
	}
	if !strings.Contains(gotBody, `"maxOutputTokens":2200`) {
		t.Fatalf("expected output token limit in body")
	}

	if got.Title != "De cel" {
		t.Fatalf("expected trimmed title, got %q", got.Title)
	}
	if len(got.Questions) != 2 {
		t.Fatalf("expected blank question to be dropped, got %d", len(got.Questions))
	}
	if got.Questions[0].Type != scoring.TypeMultipleChoice || len(got.Questions[0].Choices) != 2 {
		t.Fatalf("expected normalized multiple choice question, got %+v", got.Questions[0])
	}
	if got.Questions[1].Choices != nil {
		t.Fatalf("expected choices dropped for true_false, got %v", got.Questions[1].Choices)
	}
}

func TestGeminiGeneratorErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		in     GenerateInput
		key    string
		want   error
	}{
		{name: "short image", key: "k", in: GenerateInput{ImageBase64: "abc", MimeType: "image/png"}, want: ErrInvalidImage},
		{name: "short mime", key: "k", in: GenerateInput{ImageBase64: testImage, MimeType: "im"}, want: ErrInvalidImage},
		{name: "no key", in: GenerateInput{ImageBase64: testImage, MimeType: "image/png"}, want: ErrGeneratorDisabled},
		{name: "empty text", key: "k", status: http.StatusOK, body: geminiReply("  "), in: GenerateInput{ImageBase64: testImage, MimeType: "image/png"}, want: ErrEmptyOutput},
		{name: "not json", key: "k", status: http.StatusOK, body: geminiReply("no idea"), in: GenerateInput{ImageBase64: testImage, MimeType: "image/png"}, want: ErrNotJSON},
		{name: "no questions", key: "k", status: http.StatusOK, body: geminiReply(`{"title":"x","questions":[]}`), in: GenerateInput{ImageBase64: testImage, MimeType: "image/png"}, want: ErrNoQuestions},
		{name: "unknown question type", key: "k", status: http.StatusOK, body: geminiReply(`{"questions":[{"type":"essay","question":"x"}]}`), in: GenerateInput{ImageBase64: testImage, MimeType: "image/png"}, want: ErrNoQuestions},
		{name: "questions not a list", key: "k", status: http.StatusOK, body: geminiReply(`{"title":"x","questions":"none"}`), in: GenerateInput{ImageBase64: testImage, MimeType: "image/png"}, want: ErrNotJSON},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			gen := NewGeminiGenerator(GeminiConfig{APIKey: tc.key, BaseURL: srv.URL})
			_, err := gen.Generate(context.Background(), tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestGeminiGeneratorUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	gen := NewGeminiGenerator(GeminiConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := gen.Generate(context.Background(), GenerateInput{ImageBase64: testImage, MimeType: "image/jpeg"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status in error, got %v", err)
	}
}
