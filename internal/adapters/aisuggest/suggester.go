package aisuggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"

	"tripz_dealdesk/internal/domain"
)

// Suggester implements domain.PriceSuggester on top of an OpenAI chat
// model. The answer is an untrusted default for the resale price; any
// manual deviation from it goes through the override ledger.
type Suggester struct {
	client      *openai.Client
	model       string
	temperature float32
	log         zerolog.Logger
}

// New builds a Suggester. baseURL overrides the API endpoint (tests,
// proxies); empty means the OpenAI default.
func New(apiKey, baseURL, model string, temperature float32, log zerolog.Logger) *Suggester {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Suggester{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
		log:         log,
	}
}

type suggestionPayload struct {
	SuggestedPrice       float64 `json:"suggested_price"`
	ConfidencePercentage float64 `json:"confidence_percentage"`
	Reasoning            string  `json:"reasoning"`
	BasedOnSimilarHotels int     `json:"based_on_similar_hotels"`
}

func (s *Suggester) SuggestPrice(ctx context.Context, hotelName string, stars, roomCount int, averagePrice decimal.Decimal) (domain.PriceSuggestion, error) {
	prompt := fmt.Sprintf(
		"Suggest a resale room price in EUR for the following hotel deal.\n"+
			"Hotel: %s\nStars: %d\nRooms: %d\nMarket room price: %s EUR\n\n"+
			"Respond with JSON only, keys: suggested_price (number, EUR), "+
			"confidence_percentage (0-100), reasoning (short string), "+
			"based_on_similar_hotels (integer count).",
		hotelName, stars, roomCount, averagePrice.StringFixed(2))

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: s.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a hotel revenue analyst. Always respond with valid JSON and nothing else.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		s.log.Error().Err(err).Msg("price suggestion call failed")
		return domain.PriceSuggestion{}, fmt.Errorf("price suggestion call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.PriceSuggestion{}, fmt.Errorf("no response from model")
	}

	content := resp.Choices[0].Message.Content
	var payload suggestionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		// Fallback: models sometimes wrap the JSON in markdown fences.
		if jsonStr := extractJSON(content); jsonStr != "" {
			err = json.Unmarshal([]byte(jsonStr), &payload)
		}
		if err != nil {
			s.log.Error().Err(err).Str("content", content).Msg("failed to parse suggestion response")
			return domain.PriceSuggestion{}, fmt.Errorf("failed to parse suggestion response: %w", err)
		}
	}

	out := domain.PriceSuggestion{
		SuggestedPrice:       decimal.NewFromFloat(payload.SuggestedPrice).Round(2),
		ConfidencePercentage: decimal.NewFromFloat(payload.ConfidencePercentage).Round(2),
		Reasoning:            payload.Reasoning,
		BasedOnSimilarHotels: payload.BasedOnSimilarHotels,
	}
	s.log.Info().
		Str("hotel", hotelName).
		Str("suggested", out.SuggestedPrice.String()).
		Str("confidence", out.ConfidencePercentage.String()).
		Msg("price suggestion")
	return out, nil
}

// extractJSON pulls the first JSON object out of a ```json fenced block
// or a surrounding text blob.
func extractJSON(content string) string {
	if i := strings.Index(content, "```json"); i >= 0 {
		rest := content[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return ""
}
