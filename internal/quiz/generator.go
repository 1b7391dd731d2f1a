package quiz

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"studysnap/internal/scoring"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	ErrInvalidImage      = errors.New("image_base64 and mime_type are required")
	ErrGeneratorDisabled = errors.New("question generator is not configured")
	ErrEmptyOutput       = errors.New("generator returned no text")
	ErrNotJSON           = errors.New("generator output is not valid quiz JSON")
	ErrNoQuestions       = errors.New("generator returned no questions")
)

const (
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1"
	minImageBase64Len    = 50
	minMimeTypeLen       = 3

	quizSchemaURL = "studysnap://quiz.schema.json"
)

//go:embed quiz.schema.json
var quizSchemaJSON string

// quizSchema checks the envelope of a generated quiz; questionSchema checks
// one question record.
var quizSchema, questionSchema = mustCompileQuizSchemas()

func mustCompileQuizSchemas() (*jsonschema.Schema, *jsonschema.Schema) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(quizSchemaURL, strings.NewReader(quizSchemaJSON)); err != nil {
		panic(fmt.Sprintf("quiz schema: %v", err))
	}
	return c.MustCompile(quizSchemaURL), c.MustCompile(quizSchemaURL + "#/$defs/question")
}

// Quiz is what the generator produces for one photographed page.
type Quiz struct {
	Title     string             `json:"title"`
	Questions []scoring.Question `json:"questions"`
}

type GenerateInput struct {
	ImageBase64   string
	MimeType      string
	QuestionCount int
}

type Generator interface {
	Generate(ctx context.Context, in GenerateInput) (*Quiz, error)
}

type GeminiConfig struct {
	APIKey        string
	Model         string
	BaseURL       string
	QuestionCount int
	HTTPClient    *http.Client
}

type GeminiGenerator struct {
	apiKey        string
	model         string
	baseURL       string
	questionCount int
	client        *http.Client
}

func NewGeminiGenerator(cfg GeminiConfig) *GeminiGenerator {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &GeminiGenerator{
		apiKey:        strings.TrimSpace(cfg.APIKey),
		model:         model,
		baseURL:       baseURL,
		questionCount: ClampQuestionCount(cfg.QuestionCount),
		client:        client,
	}
}

func (g *GeminiGenerator) Configured() bool {
	return g.apiKey != ""
}

func (g *GeminiGenerator) Generate(ctx context.Context, in GenerateInput) (*Quiz, error) {
	in.ImageBase64 = strings.TrimSpace(in.ImageBase64)
	in.MimeType = strings.TrimSpace(in.MimeType)
	if len(in.ImageBase64) < minImageBase64Len || len(in.MimeType) < minMimeTypeLen {
		return nil, ErrInvalidImage
	}
	if !g.Configured() {
		return nil, ErrGeneratorDisabled
	}

	count := g.questionCount
	if in.QuestionCount > 0 {
		count = ClampQuestionCount(in.QuestionCount)
	}

	reqBody := map[string]any{
		"contents": []map[string]any{
			{
				"role": "user",
				"parts": []map[string]any{
					{"text": buildPrompt(count)},
					{"inlineData": map[string]string{
						"mimeType": in.MimeType,
						"data":     in.ImageBase64,
					}},
				},
			},
		},
		"generationConfig": map[string]any{
			"maxOutputTokens": 2200,
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out geminiGenerateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	text := strings.TrimSpace(out.firstText())
	if text == "" {
		return nil, ErrEmptyOutput
	}

	q, err := decodeQuiz(text)
	if err != nil {
		return nil, err
	}
	return cleanQuiz(*q)
}

// decodeQuiz extracts the quiz object from model text and validates it.
// Question records that do not match the schema are dropped.
func decodeQuiz(text string) (*Quiz, error) {
	var doc any
	if err := ExtractJSONObject(text, &doc); err != nil {
		return nil, err
	}
	if err := quizSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}

	obj := doc.(map[string]any)
	items, _ := obj["questions"].([]any)
	valid := make([]any, 0, len(items))
	for i, item := range items {
		normalizeEnums(item)
		if err := questionSchema.Validate(item); err != nil {
			log.Printf("drop generated question %d: %v", i, err)
			continue
		}
		valid = append(valid, item)
	}
	if len(valid) == 0 {
		return nil, ErrNoQuestions
	}
	obj["questions"] = valid

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var q Quiz
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	return &q, nil
}

// normalizeEnums lower-cases the type and difficulty of a raw question record.
func normalizeEnums(item any) {
	m, ok := item.(map[string]any)
	if !ok {
		return
	}
	for _, key := range []string{"type", "difficulty"} {
		if v, ok := m[key].(string); ok {
			m[key] = strings.ToLower(strings.TrimSpace(v))
		}
	}
}

// ExtractJSONObject decodes text as JSON, falling back to the span between the
// first '{' and the last '}' when the model wrapped the object in prose or
// markdown fences.
func ExtractJSONObject(text string, v any) error {
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ErrNotJSON
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	return nil
}

func cleanQuiz(q Quiz) (*Quiz, error) {
	q.Title = strings.TrimSpace(q.Title)
	out := make([]scoring.Question, 0, len(q.Questions))
	for _, item := range q.Questions {
		item.Question = strings.TrimSpace(item.Question)
		if item.Question == "" {
			continue
		}
		item.Answer = strings.TrimSpace(item.Answer)
		if item.Type != scoring.TypeMultipleChoice {
			item.Choices = nil
		}
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil, ErrNoQuestions
	}
	q.Questions = out
	return &q, nil
}

func buildPrompt(count int) string {
	easy, medium, hard := difficultyMix(count)
	minChoice := 3
	if count < minChoice {
		minChoice = count
	}
	return strings.TrimSpace(fmt.Sprintf(`
Use ONLY what you can read on the photo. Do not invent anything.
Write the questions in the language of the text on the photo.
Create exactly %d practice questions.

RETURN ONLY VALID JSON (no explanation, no markdown).
Schema:
{
  "title": "short title",
  "questions": [
    {
      "type": "short_answer|true_false|multiple_choice",
      "difficulty": "easy|medium|hard",
      "question": "...",
      "choices": ["A","B","C","D"],
      "answer": "...",
      "explanation": "...",
      "evidence": "short snippet from the text on the photo"
    }
  ]
}

Rules:
- "choices" only for multiple_choice; the answer must be one of the choices verbatim
- true_false answers are "waar" or "onwaar"
- Mix: %d easy, %d medium, %d hard
- At least %d multiple_choice
- evidence must really come from the photo
`, count, easy, medium, hard, minChoice))
}

// difficultyMix scales the 4/4/2 split of a ten-question quiz.
func difficultyMix(count int) (easy, medium, hard int) {
	hard = count * 2 / 10
	easy = (count - hard + 1) / 2
	medium = count - hard - easy
	return easy, medium, hard
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (r geminiGenerateResponse) firstText() string {
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			if strings.TrimSpace(p.Text) != "" {
				return p.Text
			}
		}
	}
	return ""
}
