package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"neurochat/internal/metrics"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-3-flash-preview"
)

// EmptyJSONObject es lo que devuelve Generate cuando el modelo responde sin texto.
const EmptyJSONObject = "{}"

// ErrMissingAPIKey se devuelve en tiempo de llamada; no es un error de arranque.
var ErrMissingAPIKey = errors.New("llm api key not configured")

// GenerateRequest agrupa prompt, instruccion de sistema y controles de generacion.
type GenerateRequest struct {
	Prompt            string
	SystemInstruction string
	ResponseSchema    any
	Temperature       float64
	MaxOutputTokens   int
	ThinkingBudget    int
}

// LLMClient define la interfaz para generar respuestas con un LLM.
type LLMClient interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GeminiClient implementa LLMClient contra la API generateContent de Gemini.
type GeminiClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

var _ LLMClient = (*GeminiClient)(nil)

func NewGeminiClient(baseURL, apiKey, model string, logger *zap.Logger) *GeminiClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		metrics.LLMRequests.WithLabelValues("no_key").Inc()
		return "", ErrMissingAPIKey
	}

	reqBody := generateContentRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: req.Prompt}}},
		},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   req.ResponseSchema,
			Temperature:      req.Temperature,
			MaxOutputTokens:  req.MaxOutputTokens,
		},
	}
	if req.SystemInstruction != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}
	// Un presupuesto 0 desactiva el thinking; negativo deja el valor dinamico del modelo.
	if req.ThinkingBudget >= 0 {
		reqBody.GenerationConfig.ThinkingConfig = &thinkingConfig{ThinkingBudget: req.ThinkingBudget}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		metrics.LLMRequests.WithLabelValues("transport_error").Inc()
		// url.Error incluye la URL con la key; no la propagamos.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.LLMRequests.WithLabelValues("transport_error").Inc()
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		metrics.LLMRequests.WithLabelValues("http_error").Inc()
		c.logger.Warn("llm error status", zap.Int("status", resp.StatusCode), zap.ByteString("body", truncate(respBody, 512)))
		var apiErr generateContentResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("llm http error: status=%d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("llm http error: status=%d", resp.StatusCode)
	}

	var gr generateContentResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		metrics.LLMRequests.WithLabelValues("decode_error").Inc()
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if gr.Error != nil {
		metrics.LLMRequests.WithLabelValues("api_error").Inc()
		return "", fmt.Errorf("llm api error: %s", gr.Error.Message)
	}

	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		metrics.LLMRequests.WithLabelValues("blocked").Inc()
		return "", fmt.Errorf("llm prompt blocked: %s", gr.PromptFeedback.BlockReason)
	}

	if len(gr.Candidates) == 0 {
		metrics.LLMRequests.WithLabelValues("empty").Inc()
		return "", errors.New("llm empty response")
	}

	// Con thinking activo el modelo puede devolver partes "thought"; solo juntamos el texto final.
	var sb strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		if p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		// Texto vacio equivale a un objeto vacio; el llamador completa valores por defecto.
		c.logger.Warn("llm empty text", zap.String("finish_reason", gr.Candidates[0].FinishReason))
		metrics.LLMRequests.WithLabelValues("empty_text").Inc()
		return EmptyJSONObject, nil
	}

	metrics.LLMRequests.WithLabelValues("ok").Inc()
	return text, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

type generateContentRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text    string `json:"text"`
	Thought bool   `json:"thought,omitempty"`
}

type generationConfig struct {
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   any             `json:"responseSchema,omitempty"`
	Temperature      float64         `json:"temperature"`
	MaxOutputTokens  int             `json:"maxOutputTokens,omitempty"`
	ThinkingConfig   *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}
