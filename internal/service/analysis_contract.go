package service

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"neurochat/internal/domain"
)

const (
	DefaultTemperature     = 0.3
	DefaultMaxOutputTokens = 2048
	DefaultReasoningBudget = 1024
	DefaultHistoryWindow   = 10
)

// AnalysisConfig expone los controles de generacion; no cambian la semantica del contrato.
type AnalysisConfig struct {
	Temperature     float64
	MaxOutputTokens int
	ReasoningBudget int
	HistoryWindow   int
}

func (c AnalysisConfig) withDefaults() AnalysisConfig {
	if c.Temperature < 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if c.ReasoningBudget < 0 {
		c.ReasoningBudget = DefaultReasoningBudget
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	return c
}

func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		Temperature:     DefaultTemperature,
		MaxOutputTokens: DefaultMaxOutputTokens,
		ReasoningBudget: DefaultReasoningBudget,
		HistoryWindow:   DefaultHistoryWindow,
	}
}

// Schema es el subconjunto OpenAPI que acepta Gemini como responseSchema.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// ResponseSchema declara la forma exacta que debe devolver el modelo.
func ResponseSchema() *Schema {
	return &Schema{
		Type: "OBJECT",
		Properties: map[string]*Schema{
			"detectedIntents": {
				Type:        "ARRAY",
				Description: "List of top 3 possible intents detected from the user input, sorted by confidence.",
				Items: &Schema{
					Type: "OBJECT",
					Properties: map[string]*Schema{
						"label": {Type: "STRING", Description: "The intent label (e.g., book_flight, greeting, technical_support)"},
						"score": {Type: "NUMBER", Description: "Confidence score between 0.0 and 1.0"},
					},
					Required: []string{"label", "score"},
				},
			},
			"extractedEntities": {
				Type:        "ARRAY",
				Description: "List of named entities extracted from the text.",
				Items: &Schema{
					Type: "OBJECT",
					Properties: map[string]*Schema{
						"label":       {Type: "STRING", Description: "Entity type (e.g., LOCATION, DATE, PRODUCT, PERSON)"},
						"value":       {Type: "STRING", Description: "The extracted text value"},
						"description": {Type: "STRING", Description: "Brief context or normalized value if applicable"},
					},
					Required: []string{"label", "value"},
				},
			},
			"response": {
				Type:        "STRING",
				Description: "The natural language response to the user based on the intent.",
			},
		},
		Required: []string{"detectedIntents", "extractedEntities", "response"},
	}
}

// jsonSchema traduce a JSON Schema estandar. Con relaxTop se omite el required de primer nivel:
// la ausencia de campos se tolera y se rellena al mapear.
func (s *Schema) jsonSchema(relaxTop bool) map[string]any {
	out := map[string]any{"type": strings.ToLower(s.Type)}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.jsonSchema(false)
		}
		out["properties"] = props
	}
	if s.Items != nil {
		out["items"] = s.Items.jsonSchema(false)
	}
	if len(s.Required) > 0 && !relaxTop {
		req := make([]any, len(s.Required))
		for i, r := range s.Required {
			req[i] = r
		}
		out["required"] = req
	}
	return out
}

var compiledResponseSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(ResponseSchema().jsonSchema(true)))
})

// ValidateAnalysisPayload comprueba tipos y forma de los items ya decodificados.
func ValidateAnalysisPayload(doc any) error {
	schema, err := compiledResponseSchema()
	if err != nil {
		return fmt.Errorf("compile response schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("payload does not match schema: %v", errs)
	}
	return nil
}

// PromptBuilder arma la instruccion de sistema y el bloque de contexto.
type PromptBuilder struct {
	Now           func() time.Time
	Location      *time.Location
	HistoryWindow int
}

func NewPromptBuilder(loc *time.Location, historyWindow int) PromptBuilder {
	return PromptBuilder{Now: time.Now, Location: loc, HistoryWindow: historyWindow}
}

func (b PromptBuilder) now() time.Time {
	now := time.Now()
	if b.Now != nil {
		now = b.Now()
	}
	if b.Location != nil {
		now = now.In(b.Location)
	}
	return now
}

func (b PromptBuilder) SystemInstruction() string {
	now := b.now()
	return fmt.Sprintf(`You are NeuroChat, an advanced NLP simulation engine.
Your task is to act as a backend NLU (Natural Language Understanding) service.

REAL-TIME CONTEXT:
- Current Date: %s
- Current Time: %s
- Timezone: %s

For every user input:
1. Analyze the Intent: Determine what the user wants to do. Provide the top 3 potential intents.
2. Extract Entities: Identify key pieces of information (NER).
3. Generate a Response: Provide a natural, helpful, and concise chat response.

Context: The user is interacting with a demo chatbot designed to show off these capabilities.
Be diverse in intent classification. If the input is ambiguous, reflect that in lower confidence scores.`,
		now.Format("Monday, January 2, 2006"),
		now.Format("3:04:05 PM"),
		timezoneName(now),
	)
}

// Prompt incluye el texto del usuario tal cual, entre comillas.
func (b PromptBuilder) Prompt(text string, history []domain.HistoryEntry) string {
	window := b.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return "Previous conversation context:\n" + BuildHistoryContext(history, window) +
		"\n\nCurrent User Input to Analyze: \"" + text + "\""
}

func timezoneName(t time.Time) string {
	name := t.Location().String()
	if name != "Local" && name != "" {
		return name
	}
	if tz := os.Getenv("TZ"); tz != "" {
		return strings.TrimPrefix(tz, ":")
	}
	abbr, _ := t.Zone()
	return abbr
}
