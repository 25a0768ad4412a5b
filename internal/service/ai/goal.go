package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"bizgrow/internal/aigateway"
	"bizgrow/pkg/metrics"
)

const goalSystemPrompt = "You are a business growth strategist. Create a detailed, actionable roadmap to achieve business goals. Return a JSON object with: steps (array of {week, action, metric}), timeframe (in weeks), estimatedImpact (percentage), and keyTips (array of strings)."

type GoalRequest struct {
	Goal           string          `json:"goal"`
	CurrentMetrics json.RawMessage `json:"currentMetrics"`
}

// Step 和 Roadmap 的字段按模型的松散输出解码："Week 1"、"30%" 这类值不会触发 fallback
type Step struct {
	Week   aigateway.Number `json:"week"`
	Action aigateway.Text   `json:"action"`
	Metric aigateway.Text   `json:"metric"`
}

type Roadmap struct {
	Steps           []Step           `json:"steps"`
	Timeframe       aigateway.Number `json:"timeframe"`
	EstimatedImpact aigateway.Number `json:"estimatedImpact"`
	KeyTips         []aigateway.Text `json:"keyTips"`
}

// SetGoal 生成路线图。没有 JSON 时返回 6 周默认计划，JSON 损坏时返回 4 周默认计划。
func (s *Service) SetGoal(ctx context.Context, req GoalRequest) (Roadmap, error) {
	if strings.TrimSpace(req.Goal) == "" {
		return Roadmap{}, invalid("Goal is required")
	}

	metricsJSON := "{}"
	if m := strings.TrimSpace(string(req.CurrentMetrics)); m != "" && m != "null" {
		var compact bytes.Buffer
		if err := json.Compact(&compact, req.CurrentMetrics); err == nil {
			metricsJSON = compact.String()
		} else {
			metricsJSON = m
		}
	}

	content, err := s.gateway.Complete(ctx, "set-goal", []aigateway.Message{
		aigateway.System(goalSystemPrompt),
		aigateway.User(fmt.Sprintf("Goal: %s. Current metrics: %s. Create a step-by-step plan.", req.Goal, metricsJSON)),
	}, 0.5)
	if err != nil {
		return Roadmap{}, err
	}

	res := aigateway.ExtractJSON[Roadmap](content)
	if !res.Fallback {
		return res.Value, nil
	}

	metrics.IncAIParseFallback("set-goal")
	s.logger.Warn("Roadmap response not parseable, using fallback", zap.Error(res.Reason))
	if errors.Is(res.Reason, aigateway.ErrNoJSON) {
		return defaultRoadmap(), nil
	}
	return shortRoadmap(), nil
}

func defaultRoadmap() Roadmap {
	return Roadmap{
		Steps: []Step{
			{Week: 1, Action: "Analyze current performance", Metric: "Baseline metrics"},
			{Week: 2, Action: "Implement initial optimizations", Metric: "+10% efficiency"},
			{Week: 4, Action: "Launch marketing campaign", Metric: "+20% reach"},
			{Week: 6, Action: "Review and iterate", Metric: "Target achievement"},
		},
		Timeframe:       6,
		EstimatedImpact: 35,
		KeyTips: []aigateway.Text{
			"Track progress weekly",
			"Stay consistent with actions",
			"Adjust strategy based on results",
		},
	}
}

func shortRoadmap() Roadmap {
	return Roadmap{
		Steps: []Step{
			{Week: 1, Action: "Set up tracking systems", Metric: "Baseline established"},
			{Week: 2, Action: "Optimize operations", Metric: "+15% improvement"},
			{Week: 4, Action: "Scale successful strategies", Metric: "Target progress"},
		},
		Timeframe:       4,
		EstimatedImpact: 25,
		KeyTips:         []aigateway.Text{"Focus on data-driven decisions", "Be patient and consistent"},
	}
}
