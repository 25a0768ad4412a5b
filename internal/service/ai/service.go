// Package ai implements the sentiment, content and goal functions on top of the AI gateway.
package ai

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"bizgrow/internal/aigateway"
)

// InvalidInputError 请求参数缺失，Message 直接返回给调用方
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string { return e.Message }

func invalid(msg string) error { return &InvalidInputError{Message: msg} }

// IsInvalidInput 判断是否为参数错误
func IsInvalidInput(err error) bool {
	var e *InvalidInputError
	return errors.As(err, &e)
}

// Completer 对话补全，*aigateway.Client 满足该接口
type Completer interface {
	Complete(ctx context.Context, function string, messages []aigateway.Message, temperature float64) (string, error)
}

type Service struct {
	gateway Completer
	logger  *zap.Logger
}

func NewService(gateway Completer, logger *zap.Logger) *Service {
	return &Service{
		gateway: gateway,
		logger:  logger,
	}
}
