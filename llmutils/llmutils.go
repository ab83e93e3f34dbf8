// Package llmutils contains small helpers for JSON payloads produced by
// language models, which often arrive wrapped in prose or code fences.
package llmutils

import (
	"bytes"
	"encoding/json"
)

// CleanJSON returns JSON by trimming prefixes and postfixes, as a model
// can reply like `Here you go: {json}`.
func CleanJSON(bs []byte) []byte {
	return trimPostfixAfterJSON(trimPrefixBeforeJSON(bs))
}

func trimPrefixBeforeJSON(bs []byte) []byte {
	startObject := bytes.IndexByte(bs, '{')
	startArray := bytes.IndexByte(bs, '[')

	var start int
	switch {
	case startObject == -1 && startArray == -1:
		return bs
	case startObject == -1:
		start = startArray
	case startArray == -1:
		start = startObject
	default:
		start = min(startObject, startArray)
	}
	return bs[start:]
}

func trimPostfixAfterJSON(bs []byte) []byte {
	endObject := bytes.LastIndexByte(bs, '}')
	endArray := bytes.LastIndexByte(bs, ']')

	var end int
	switch {
	case endObject == -1 && endArray == -1:
		return bs
	case endObject == -1:
		end = endArray
	case endArray == -1:
		end = endObject
	default:
		end = max(endObject, endArray)
	}
	return bs[:end+1]
}

// ToJSON marshals the value, ignoring errors. For logging and tool
// result content only.
func ToJSON(val any) string {
	js, _ := json.Marshal(val)
	return string(js)
}

// JSONIndent pretty-prints a JSON document.
func JSONIndent(body string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(body), "", "  "); err != nil {
		return body
	}
	return buf.String()
}
