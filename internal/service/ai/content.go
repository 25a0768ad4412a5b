package ai

import (
	"context"
	"fmt"
	"strings"

	"bizgrow/internal/aigateway"
)

const contentSystemPrompt = "You are a marketing copywriter expert specializing in small business content. Create compelling, conversion-focused content that drives engagement."

// 内容类型
const (
	ContentSocial = "social"
	ContentEmail  = "email"
	ContentAd     = "ad"
)

type ContentRequest struct {
	Type         string `json:"type"`
	BusinessInfo string `json:"businessInfo"`
	Tone         string `json:"tone"`
}

type Content struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

// GenerateContent 按类型生成营销文案，未知类型按 social 处理
func (s *Service) GenerateContent(ctx context.Context, req ContentRequest) (Content, error) {
	if strings.TrimSpace(req.Type) == "" || strings.TrimSpace(req.BusinessInfo) == "" {
		return Content{}, invalid("Type and businessInfo are required")
	}

	content, err := s.gateway.Complete(ctx, "generate-content", []aigateway.Message{
		aigateway.System(contentSystemPrompt),
		aigateway.User(ContentPrompt(req.Type, req.BusinessInfo, req.Tone)),
	}, 0.8)
	if err != nil {
		return Content{}, err
	}
	return Content{Content: content, Type: req.Type}, nil
}

func ContentPrompt(kind, businessInfo, tone string) string {
	withDefault := func(def string) string {
		if tone == "" {
			return def
		}
		return tone
	}
	switch kind {
	case ContentEmail:
		return fmt.Sprintf("Write a professional email campaign for %s. Include a catchy subject line and persuasive body text. Tone: %s. Keep it concise (200-300 words).",
			businessInfo, withDefault("professional yet warm"))
	case ContentAd:
		return fmt.Sprintf("Create compelling Google/Meta ad copy for %s. Write 3 headline variants (30 chars each) and 2 description variants (90 chars each). Make it %s.",
			businessInfo, withDefault("action-oriented and clear"))
	default:
		return fmt.Sprintf("Create an engaging Instagram/Facebook post for %s. Keep it under 150 characters, include relevant emojis, and make it %s. Focus on promoting the business.",
			businessInfo, withDefault("friendly and exciting"))
	}
}
