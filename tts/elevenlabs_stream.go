// This file contains the WebSocket streaming implementation for ElevenLabs.
// It is excluded from coverage testing due to the difficulty of mocking
// WebSocket connections end to end.
package tts

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/gorilla/websocket"
)

// elevenLabsStreamMessage is a message sent on the stream-input socket.
// The first message carries the API key and voice settings, subsequent
// messages carry text, and an empty text message closes the stream.
type elevenLabsStreamMessage struct {
	Text                 string                   `json:"text"`
	VoiceSettings        *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
	XIAPIKey             string                   `json:"xi_api_key,omitempty"`
	TryTriggerGeneration bool                     `json:"try_trigger_generation,omitempty"`
}

// elevenLabsStreamResponse is a message received on the stream-input socket.
type elevenLabsStreamResponse struct {
	Audio   string `json:"audio"`
	IsFinal *bool  `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SynthesizeStream converts text to audio with streaming output over the
// ElevenLabs stream-input WebSocket.
//
//nolint:gocritic // hugeParam: SynthesisConfig passed by value to satisfy StreamingService interface
func (s *ElevenLabsService) SynthesizeStream(
	ctx context.Context, text string, config SynthesisConfig,
) (<-chan AudioChunk, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	// Use config voice or default
	voice := config.Voice
	if voice == "" {
		voice = elevenLabsDefaultVoice
	}

	// Use config model or service default
	model := config.Model
	if model == "" {
		model = s.model
	}

	wsURL := fmt.Sprintf("%s/text-to-speech/%s/stream-input?model_id=%s&output_format=%s",
		s.wsURL, voice, model, s.mapFormat(config.Format))

	dialer := websocket.DefaultDialer
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, NewSynthesisError("elevenlabs", "", "websocket connection failed", err, true)
	}

	// The handshake message authenticates the stream and fixes the voice
	// settings for its lifetime.
	handshake := elevenLabsStreamMessage{
		Text: " ",
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       elevenLabsDefaultStability,
			SimilarityBoost: elevenLabsDefaultSimilarityBoost,
		},
		XIAPIKey: s.apiKey,
	}
	if err := conn.WriteJSON(handshake); err != nil {
		_ = conn.Close()
		return nil, NewSynthesisError("elevenlabs", "", "failed to send handshake", err, true)
	}

	if err := conn.WriteJSON(elevenLabsStreamMessage{Text: text + " ", TryTriggerGeneration: true}); err != nil {
		_ = conn.Close()
		return nil, NewSynthesisError("elevenlabs", "", "failed to send text", err, true)
	}

	// Empty text signals end of input.
	if err := conn.WriteJSON(elevenLabsStreamMessage{Text: ""}); err != nil {
		_ = conn.Close()
		return nil, NewSynthesisError("elevenlabs", "", "failed to close input", err, true)
	}

	chunks := make(chan AudioChunk, streamChannelBuffer)

	go s.readStreamResponses(ctx, conn, chunks)

	return chunks, nil
}

// readStreamResponses reads audio chunks from the WebSocket connection.
func (s *ElevenLabsService) readStreamResponses(
	ctx context.Context, conn *websocket.Conn, chunks chan<- AudioChunk,
) {
	defer close(chunks)
	defer conn.Close()

	index := 0

	for {
		if ctx.Err() != nil {
			chunks <- AudioChunk{Error: ctx.Err()}
			return
		}

		var resp elevenLabsStreamResponse
		if err := conn.ReadJSON(&resp); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				chunks <- AudioChunk{Error: err}
			}
			return
		}

		if resp.Error != "" || resp.Message != "" {
			msg := resp.Message
			if msg == "" {
				msg = resp.Error
			}
			chunks <- AudioChunk{Error: NewSynthesisError("elevenlabs", resp.Error, msg, nil, false)}
			return
		}

		final := resp.IsFinal != nil && *resp.IsFinal

		if resp.Audio != "" {
			data, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				chunks <- AudioChunk{Error: fmt.Errorf("failed to decode audio chunk: %w", err)}
				return
			}

			chunks <- AudioChunk{Data: data, Index: index, Final: final}
			index++
		}

		if final {
			return
		}
	}
}
