package llm

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"voicekey/internal/domain"
)

// maxSSELine bounds a single SSE line. Some providers send large chunks.
const maxSSELine = 1024 * 1024

// DecodeStream reads an OpenAI-compatible SSE response and returns the
// concatenated assistant text. It always closes resp.Body.
//
// An HTTP status >= 400 yields "Error: HTTP <code>: <body>"; a stream that
// produced no text yields domain.NoContent. Malformed chunks are skipped.
func DecodeStream(resp *http.Response) string {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		return "Error: " + mapHTTPError(resp.StatusCode, body).Error()
	}

	text, _ := decodeEvents(resp.Body)
	if text == "" {
		return domain.NoContent
	}
	return text
}

// decodeEvents accumulates delta text from "data:" lines until [DONE] or
// EOF. The returned error is the reader's, if any; text read before it is
// still returned.
func decodeEvents(r io.Reader) (string, error) {
	var sb strings.Builder

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimPrefix(data, " ")

		if strings.TrimSpace(data) == "[DONE]" {
			break
		}
		if chunk, ok := deltaText([]byte(data)); ok {
			sb.WriteString(chunk)
		}
	}
	return sb.String(), scanner.Err()
}

// streamChunk is the common shape of a chat.completion.chunk.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// deltaText extracts the text of one chunk. The typed parse covers the usual
// shape; anything else goes through the permissive map-based reader.
func deltaText(data []byte) (string, bool) {
	var chunk streamChunk
	if err := json.Unmarshal(data, &chunk); err == nil &&
		len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != nil {
		return *chunk.Choices[0].Delta.Content, true
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", false
	}
	choice, ok := firstChoice(raw)
	if !ok {
		return "", false
	}
	if delta, ok := choice["delta"].(map[string]any); ok {
		if text, ok := contentText(delta["content"]); ok {
			return text, true
		}
		if text, ok := delta["text"].(string); ok {
			return text, true
		}
	}
	if text, ok := choice["text"].(string); ok {
		return text, true
	}
	return "", false
}

func firstChoice(raw map[string]any) (map[string]any, bool) {
	choices, ok := raw["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, false
	}
	choice, ok := choices[0].(map[string]any)
	return choice, ok
}

// contentText reads a content field that is either a string or an array of
// content parts ({"type":"text","text":"..."} or bare strings).
func contentText(v any) (string, bool) {
	switch c := v.(type) {
	case string:
		return c, true
	case []any:
		var sb strings.Builder
		found := false
		for _, part := range c {
			switch p := part.(type) {
			case string:
				sb.WriteString(p)
				found = true
			case map[string]any:
				if text, ok := p["text"].(string); ok {
					sb.WriteString(text)
					found = true
				}
			}
		}
		return sb.String(), found
	}
	return "", false
}

// messageText extracts the assistant text of a non-streaming response.
func messageText(body []byte) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", err
	}
	choice, ok := firstChoice(raw)
	if !ok {
		return "", nil
	}
	if msg, ok := choice["message"].(map[string]any); ok {
		if text, ok := contentText(msg["content"]); ok {
			return text, nil
		}
	}
	text, _ := choice["text"].(string)
	return text, nil
}
