package common

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ParseJSON cleans and unmarshals a JSON string into a type T.
// It handles common LLM quirks like surrounding markdown or extra text.
func ParseJSON[T any](response string) (T, error) {
	var zero T
	jsonStr := strings.TrimSpace(response)

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err == nil {
		return result, nil
	}

	if m := jsonBlockRegex.FindStringSubmatch(jsonStr); len(m) >= 2 {
		jsonStr = strings.TrimSpace(m[1])
	}

	// Find first '{' and last '}'
	start := strings.IndexByte(jsonStr, '{')
	end := strings.LastIndexByte(jsonStr, '}')
	if start == -1 {
		return zero, fmt.Errorf("no JSON object found in response (missing '{')")
	}
	if end == -1 || end < start {
		return zero, fmt.Errorf("no JSON object found in response (missing '}')")
	}
	jsonStr = jsonStr[start : end+1]

	result = zero
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JSON: %w\nData: %s", err, jsonStr)
	}

	return result, nil
}
