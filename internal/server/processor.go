// Package server is the demo backend: token issuing, audio processing and
// the transcript feed.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog/log"
)

const systemPrompt = "You are a helpful voice assistant. Keep responses concise and natural."

// ProcessedAudio is one completed exchange: what the user said, what the
// agent replied, and the synthesized reply audio.
type ProcessedAudio struct {
	UserText     string
	ResponseText string
	Audio        []byte
}

// Processor turns a recorded utterance into a spoken reply.
type Processor interface {
	Process(ctx context.Context, audio []byte) (*ProcessedAudio, error)
}

// OpenAIProcessor runs the transcribe -> complete -> synthesize pipeline on
// the OpenAI API.
type OpenAIProcessor struct {
	client    openai.Client
	model     string
	maxTokens int64
}

func NewOpenAIProcessor(apiKey, model string, maxTokens int) (*OpenAIProcessor, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key not configured")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if maxTokens <= 0 {
		maxTokens = 150
	}
	return &OpenAIProcessor{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: int64(maxTokens),
	}, nil
}

func (p *OpenAIProcessor) Process(ctx context.Context, audio []byte) (*ProcessedAudio, error) {
	transcript, err := p.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  openai.File(bytes.NewReader(audio), "audio.wav", "audio/wav"),
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	userText := transcript.Text
	log.Info().Str("module", "server.processor").Str("user_text", userText).Msg("transcribed")

	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userText),
		},
		MaxTokens: openai.Int(p.maxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("generate response: no choices returned")
	}
	responseText := completion.Choices[0].Message.Content
	log.Info().Str("module", "server.processor").Str("response_text", responseText).Msg("response generated")

	speech, err := p.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: openai.SpeechModelTTS1,
		Voice: openai.AudioSpeechNewParamsVoiceAlloy,
		Input: responseText,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	defer speech.Body.Close()
	reply, err := io.ReadAll(speech.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesized speech: %w", err)
	}

	return &ProcessedAudio{
		UserText:     userText,
		ResponseText: responseText,
		Audio:        reply,
	}, nil
}
