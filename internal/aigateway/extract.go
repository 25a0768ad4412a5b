package aigateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON 模型输出中没有 {...}
var ErrNoJSON = errors.New("no JSON object in model output")

// Result 解析结果：要么是模型给出的结构，要么是默认结构
type Result[T any] struct {
	Value    T
	Fallback bool
	Reason   error
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Fallback[T any](v T, reason error) Result[T] {
	return Result[T]{Value: v, Fallback: true, Reason: reason}
}

// ExtractJSON 截取第一个 '{' 到最后一个 '}' 之间的内容并解码。
// 返回 Fallback 时 Value 为零值，Reason 为 ErrNoJSON 或解码错误。
func ExtractJSON[T any](content string) Result[T] {
	var zero T
	span, ok := outermostObject(content)
	if !ok {
		return Fallback(zero, ErrNoJSON)
	}
	var v T
	if err := json.Unmarshal([]byte(span), &v); err != nil {
		return Fallback(zero, fmt.Errorf("decode model JSON: %w", err))
	}
	return Ok(v)
}

func outermostObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
