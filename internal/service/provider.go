package service

import (
	"encoding/json"
	"strings"
)

// streamDelta is the delta shape shared by OpenAI-compatible providers.
// reasoning_content is only sent by reasoning models (DeepSeek on NVIDIA).
type streamDelta struct {
	Choices []struct {
		Delta struct {
			Role             string  `json:"role,omitempty"`
			Content          string  `json:"content,omitempty"`
			ReasoningContent *string `json:"reasoning_content,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
}

func (d *streamDelta) toChunk(withReasoning bool) *StreamChunk {
	chunk := &StreamChunk{}
	if len(d.Choices) == 0 {
		return chunk
	}
	choice := d.Choices[0]
	chunk.Role = choice.Delta.Role
	chunk.Content = choice.Delta.Content
	chunk.Done = choice.FinishReason != ""
	if withReasoning && choice.Delta.ReasoningContent != nil {
		chunk.ThinkingContent = *choice.Delta.ReasoningContent
	}
	return chunk
}

// OpenAIStreamChunkParser parses standard OpenAI-format streaming chunks
type OpenAIStreamChunkParser struct{}

// ParseChunk converts a standard OpenAI chunk to a StreamChunk
func (p *OpenAIStreamChunkParser) ParseChunk(data []byte) (*StreamChunk, error) {
	var raw streamDelta
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw.toChunk(false), nil
}

// NVIDIAStreamChunkParser also surfaces reasoning content
type NVIDIAStreamChunkParser struct{}

// ParseChunk converts an NVIDIA/DeepSeek chunk to a StreamChunk
func (p *NVIDIAStreamChunkParser) ParseChunk(data []byte) (*StreamChunk, error) {
	var raw streamDelta
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw.toChunk(true), nil
}

// IsNVIDIAProvider checks if the base URL is NVIDIA API
func IsNVIDIAProvider(baseURL string) bool {
	return strings.HasPrefix(baseURL, "https://integrate.api.nvidia.com")
}

// IsOpenAIProvider checks if the base URL is official OpenAI API
func IsOpenAIProvider(baseURL string) bool {
	return strings.Contains(baseURL, "api.openai.com")
}
