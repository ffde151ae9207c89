package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"neurochat/internal/domain"
	"neurochat/internal/llm"
	"neurochat/internal/metrics"
)

// AnalysisService usa el LLM para clasificar intents, extraer entidades y responder.
type AnalysisService struct {
	llmClient llm.LLMClient
	prompts   PromptBuilder
	cfg       AnalysisConfig
	logger    *zap.Logger
}

func NewAnalysisService(
	llmClient llm.LLMClient,
	cfg AnalysisConfig,
	prompts PromptBuilder,
	logger *zap.Logger,
) *AnalysisService {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	prompts.HistoryWindow = cfg.HistoryWindow
	return &AnalysisService{
		llmClient: llmClient,
		prompts:   prompts,
		cfg:       cfg,
		logger:    logger,
	}
}

// Analyze nunca devuelve error: cualquier fallo se convierte en SentinelAnalysis.
// El llamador ya descarto el texto vacio.
func (s *AnalysisService) Analyze(ctx context.Context, text string, history []domain.HistoryEntry) (out domain.Analysis) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("analysis panic", zap.Any("panic", r))
			out = domain.SentinelAnalysis()
			s.observe(metrics.OutcomeSentinel, start)
		}
	}()

	analysis, err := s.analyze(ctx, text, history)
	if err != nil {
		s.logger.Warn("analysis failed", zap.Error(err))
		s.observe(metrics.OutcomeSentinel, start)
		return domain.SentinelAnalysis()
	}

	analysis.ProcessingTimeMs = elapsedMillis(time.Since(start))
	s.observe(metrics.OutcomeOK, start)
	s.logger.Info("analysis finished",
		zap.Int64("processing_ms", analysis.ProcessingTimeMs),
		zap.Int("intents", len(analysis.DetectedIntents)),
		zap.Int("entities", len(analysis.ExtractedEntities)),
	)
	return analysis
}

func (s *AnalysisService) analyze(ctx context.Context, text string, history []domain.HistoryEntry) (domain.Analysis, error) {
	if s == nil || s.llmClient == nil {
		return domain.Analysis{}, llm.ErrMissingAPIKey
	}

	req := s.BuildRequest(text, history)
	raw, err := s.llmClient.Generate(ctx, req)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("llm generate: %w", err)
	}
	return parseAnalysis(raw)
}

// BuildRequest arma la peticion completa para un turno.
func (s *AnalysisService) BuildRequest(text string, history []domain.HistoryEntry) llm.GenerateRequest {
	return llm.GenerateRequest{
		Prompt:            s.prompts.Prompt(text, history),
		SystemInstruction: s.prompts.SystemInstruction(),
		ResponseSchema:    ResponseSchema(),
		Temperature:       s.cfg.Temperature,
		MaxOutputTokens:   s.cfg.MaxOutputTokens,
		ThinkingBudget:    s.cfg.ReasoningBudget,
	}
}

func (s *AnalysisService) observe(outcome string, start time.Time) {
	metrics.AnalysisTotal.WithLabelValues(outcome).Inc()
	metrics.AnalysisDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// analysisPayload captura la salida del modelo antes de completar valores por defecto.
type analysisPayload struct {
	DetectedIntents   []domain.Intent `json:"detectedIntents"`
	ExtractedEntities []domain.Entity `json:"extractedEntities"`
	Response          string          `json:"response"`
}

func parseAnalysis(raw string) (domain.Analysis, error) {
	cleaned := extractJSONPayload(raw)

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return domain.Analysis{}, fmt.Errorf("parse llm response: %w", err)
	}
	// null en primer nivel equivale a campo ausente.
	if obj, ok := doc.(map[string]any); ok {
		for k, v := range obj {
			if v == nil {
				delete(obj, k)
			}
		}
	}
	if err := ValidateAnalysisPayload(doc); err != nil {
		return domain.Analysis{}, err
	}

	var parsed analysisPayload
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return domain.Analysis{}, fmt.Errorf("decode llm response: %w", err)
	}

	out := domain.Analysis{
		DetectedIntents:   parsed.DetectedIntents,
		ExtractedEntities: parsed.ExtractedEntities,
		Response:          parsed.Response,
	}
	if out.DetectedIntents == nil {
		out.DetectedIntents = []domain.Intent{}
	}
	if out.ExtractedEntities == nil {
		out.ExtractedEntities = []domain.Entity{}
	}
	for i := range out.DetectedIntents {
		out.DetectedIntents[i].Score = clampScore(out.DetectedIntents[i].Score)
	}
	if strings.TrimSpace(out.Response) == "" {
		out.Response = domain.FallbackResponse
	}
	return out, nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func elapsedMillis(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(math.Round(float64(d) / float64(time.Millisecond)))
}
