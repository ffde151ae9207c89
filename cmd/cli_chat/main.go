package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"neurochat/internal/config"
	"neurochat/internal/domain"
	"neurochat/internal/llm"
	"neurochat/internal/service"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	loc, err := cfg.Location()
	if err != nil {
		log.Printf("warning: TZ_NAME %q: %v", cfg.TimezoneName, err)
		loc = time.Local
	}

	llmClient := llm.NewGeminiClient(cfg.LLMBaseURL, cfg.GeminiAPIKey, cfg.LLMModel, logger)
	analysisSvc := service.NewAnalysisService(
		llmClient,
		service.AnalysisConfig{
			Temperature:     cfg.LLMTemperature,
			MaxOutputTokens: cfg.LLMMaxOutputTokens,
			ReasoningBudget: cfg.LLMThinkingBudget,
			HistoryWindow:   cfg.HistoryWindow,
		},
		service.NewPromptBuilder(loc, cfg.HistoryWindow),
		logger,
	)
	conversation := service.NewConversation(analysisSvc, logger)

	fmt.Println("===== NeuroChat =====")
	fmt.Println("Escribe 'salir' o 'exit' para terminar, '/reset' para reiniciar.")
	fmt.Printf("Bot: %s\n", service.GreetingMessage)

	for {
		fmt.Print("Tu: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			if input = strings.TrimSpace(input); input == "" {
				return
			}
		}
		input = strings.TrimSpace(input)
		switch strings.ToLower(input) {
		case "":
			continue
		case "salir", "exit":
			return
		case "/reset":
			if err := conversation.Reset(); err != nil {
				fmt.Printf("reset: %v\n", err)
				continue
			}
			fmt.Printf("Bot: %s\n", service.GreetingMessage)
			continue
		}

		turn, err := conversation.Submit(ctx, input)
		if err != nil {
			if errors.Is(err, service.ErrBlankInput) {
				continue
			}
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Printf("Bot: %s\n", turn.Assistant.Content)
		if turn.Assistant.Analysis != nil {
			printSummary(*turn.Assistant.Analysis)
		}
	}
}

func printSummary(a domain.Analysis) {
	intents := make([]string, 0, len(a.DetectedIntents))
	for _, it := range a.DetectedIntents {
		intents = append(intents, fmt.Sprintf("%s=%.2f", it.Label, it.Score))
	}
	entities := make([]string, 0, len(a.ExtractedEntities))
	for _, e := range a.ExtractedEntities {
		entities = append(entities, fmt.Sprintf("%s:%s", e.Label, e.Value))
	}
	fmt.Printf("  [intents: %s | entities: %s | %d ms]\n",
		orNone(intents), orNone(entities), a.ProcessingTimeMs)
}

func orNone(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
