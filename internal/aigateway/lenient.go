package aigateway

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// Number 模型给出的数值字段。模型经常把数字写成字符串（"30%"、"Week 1"），
// 这里取字符串中的第一个数字；没有数字、null 或其他类型时为 0，不会导致解码失败。
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*n = 0
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = parseNumber(s)
	case '{', '[', 'n', 't', 'f':
		*n = 0
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*n = Number(f)
	}
	return nil
}

func parseNumber(s string) Number {
	m := numberPattern.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return Number(f)
}

// Text 模型给出的文本字段，数字和布尔值按原样转成字符串，null 为空串
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(data)
	return nil
}
