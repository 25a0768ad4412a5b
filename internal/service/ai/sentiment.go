package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"bizgrow/internal/aigateway"
	"bizgrow/pkg/metrics"
)

const sentimentSystemPrompt = "You are a sentiment analysis expert. Analyze customer feedback and return a JSON object with: overall (positive/negative/neutral), score (0-1 confidence), emotions (array of {name, value} where value is 0-100). Be concise and accurate."

type Emotion struct {
	Name  aigateway.Text   `json:"name"`
	Value aigateway.Number `json:"value"`
}

type Sentiment struct {
	Overall  aigateway.Text   `json:"overall"`
	Score    aigateway.Number `json:"score"`
	Emotions []Emotion        `json:"emotions"`
}

// AnalyzeSentiment 模型未返回 JSON 时按关键字估计；JSON 无法解码时返回中性默认值
func (s *Service) AnalyzeSentiment(ctx context.Context, text string) (Sentiment, error) {
	if strings.TrimSpace(text) == "" {
		return Sentiment{}, invalid("Text is required")
	}

	content, err := s.gateway.Complete(ctx, "analyze-sentiment", []aigateway.Message{
		aigateway.System(sentimentSystemPrompt),
		aigateway.User(fmt.Sprintf(`Analyze this customer feedback: "%s"`, text)),
	}, 0.3)
	if err != nil {
		return Sentiment{}, err
	}

	res := aigateway.ExtractJSON[Sentiment](content)
	if !res.Fallback {
		return res.Value, nil
	}

	metrics.IncAIParseFallback("analyze-sentiment")
	s.logger.Warn("Sentiment response not parseable, using fallback", zap.Error(res.Reason))
	if errors.Is(res.Reason, aigateway.ErrNoJSON) {
		return keywordSentiment(content), nil
	}
	return neutralSentiment(), nil
}

func keywordSentiment(content string) Sentiment {
	lower := strings.ToLower(content)
	positive := strings.Contains(lower, "positive")
	negative := strings.Contains(lower, "negative")

	overall := "neutral"
	switch {
	case positive:
		overall = "positive"
	case negative:
		overall = "negative"
	}
	pick := func(cond bool, yes, no aigateway.Number) aigateway.Number {
		if cond {
			return yes
		}
		return no
	}
	return Sentiment{
		Overall: aigateway.Text(overall),
		Score:   0.85,
		Emotions: []Emotion{
			{Name: "Happy", Value: pick(positive, 75, 20)},
			{Name: "Satisfied", Value: pick(positive, 65, 30)},
			{Name: "Neutral", Value: 40},
			{Name: "Frustrated", Value: pick(negative, 70, 15)},
		},
	}
}

func neutralSentiment() Sentiment {
	return Sentiment{
		Overall: "neutral",
		Score:   0.5,
		Emotions: []Emotion{
			{Name: "Happy", Value: 40},
			{Name: "Satisfied", Value: 50},
			{Name: "Neutral", Value: 60},
			{Name: "Frustrated", Value: 30},
		},
	}
}
