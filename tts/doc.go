// Package tts converts content text to speech through vendor TTS APIs.
//
// The package defines a common Service interface that abstracts TTS providers,
// so generation can run against whichever vendor the deployment has
// credentials for.
//
// # Architecture
//
// The package provides:
//   - Service interface for TTS providers
//   - SynthesisConfig for voice/format configuration
//   - Voice and AudioFormat types for provider capabilities
//   - A provider registry for construction by name
//   - A Selector that picks a provider per request
//   - SplitText for dividing long text against vendor budgets
//
// # Usage
//
// Basic usage with OpenAI TTS:
//
//	service := tts.NewOpenAI(os.Getenv("OPENAI_API_KEY"))
//	reader, err := service.Synthesize(ctx, "Hello world", tts.SynthesisConfig{
//	    Voice:  "alloy",
//	    Format: tts.FormatMP3,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reader.Close()
//
//	// Stream audio to speaker or save to file
//	io.Copy(audioOutput, reader)
//
// # Streaming TTS
//
// For low-latency applications, use StreamingService:
//
//	streamer := tts.NewElevenLabs(os.Getenv("ELEVENLABS_API_KEY"))
//	chunks, err := streamer.SynthesizeStream(ctx, "Hello world", config)
//	for chunk := range chunks {
//	    // Play audio chunk immediately
//	    speaker.Write(chunk.Data)
//	}
//
// # Available Providers
//
// The package includes implementations for:
//   - Azure Speech (neural voices, SSML prosody control)
//   - Google Cloud Text-to-Speech (multi-language)
//   - AWS Polly (standard and neural engines)
//   - OpenAI TTS (tts-1, tts-1-hd models)
//   - ElevenLabs (high-quality voices, WebSocket streaming)
package tts
