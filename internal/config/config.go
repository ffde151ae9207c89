package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
// GEMINI_API_KEY no es obligatoria: si falta, cada turno devuelve el analisis de error.
type Config struct {
	HTTPPort           string        `env:"HTTP_PORT" envDefault:"8080"`
	GeminiAPIKey       string        `env:"GEMINI_API_KEY"`
	LLMBaseURL         string        `env:"LLM_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	LLMModel           string        `env:"LLM_MODEL" envDefault:"gemini-3-flash-preview"`
	LLMTemperature     float64       `env:"LLM_TEMPERATURE" envDefault:"0.3"`
	LLMMaxOutputTokens int           `env:"LLM_MAX_OUTPUT_TOKENS" envDefault:"2048"`
	LLMThinkingBudget  int           `env:"LLM_THINKING_BUDGET" envDefault:"1024"`
	HistoryWindow      int           `env:"HISTORY_WINDOW" envDefault:"10"`
	TimezoneName       string        `env:"TZ_NAME"`
	RedisAddr          string        `env:"REDIS_ADDR"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	RedisDB            int           `env:"REDIS_DB" envDefault:"0"`
	SubmitRateWindow   time.Duration `env:"SUBMIT_RATE_WINDOW" envDefault:"1m"`
	SubmitRateMax      int           `env:"SUBMIT_RATE_MAX" envDefault:"20"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location resuelve la zona horaria usada en el prompt; sin TZ_NAME usa la local del proceso.
func (c *Config) Location() (*time.Location, error) {
	if c.TimezoneName == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.TimezoneName)
}
