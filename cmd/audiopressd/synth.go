package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AudioPress/audiopress/engine"
	"github.com/AudioPress/audiopress/records"
	"github.com/AudioPress/audiopress/storage"
	"github.com/AudioPress/audiopress/storage/local"
	"github.com/AudioPress/audiopress/tts"
)

var synthCmd = &cobra.Command{
	Use:   "synth [text]",
	Short: "Synthesize text to an audio file",
	Long: `Synth runs one synthesis outside the service. Text comes from the
argument, --file, or stdin; the audio is written to --out instead of
managed storage. Long text is chunked and concatenated the same way the
service does it.

Examples:
  audiopressd synth "Hello from AudioPress" -o hello.mp3
  audiopressd synth --file article.txt --provider elevenlabs
  cat article.txt | audiopressd synth --voice en-US-JennyNeural`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSynth,
}

func init() {
	rootCmd.AddCommand(synthCmd)

	synthCmd.Flags().StringP("file", "f", "", "Read the text from a file")
	synthCmd.Flags().StringP("out", "o", "", "Output audio file (default audiopress.<format>)")
	synthCmd.Flags().String("provider", "", "TTS provider to use")
	synthCmd.Flags().String("voice", "", "Voice ID")
	synthCmd.Flags().String("language", "", "Language code (e.g. en-US)")
	synthCmd.Flags().String("format", "", "Audio format: mp3, opus, aac, flac, pcm")
	synthCmd.Flags().Float64("speed", 0, "Speaking speed multiplier")
	synthCmd.Flags().Float64("pitch", 0, "Pitch adjustment in semitones")
	synthCmd.Flags().String("title", "", "Audio title")
}

func runSynth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	text, err := synthText(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Synthesized audio lands in a scratch directory through the normal
	// upload path, then gets copied to the requested output file.
	tmpDir, err := os.MkdirTemp("", "audiopress-synth-")
	if err != nil {
		return fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	factory := storage.NewFactory()
	factory.RegisterBackend(storage.LocalBackend, func(ctx context.Context) (storage.Provider, error) {
		return local.NewFileStore(local.Config{BaseDir: tmpDir})
	})

	registry, selector := buildProviders(ctx, cfg)
	eng, err := engine.New(records.NewMemoryStore(), registry, selector, factory,
		engine.WithConfig(engine.Config{
			DefaultProvider: cfg.GetString("defaults.provider", tts.ProviderAzure),
			StorageBackend:  storage.LocalBackend,
			Defaults:        synthesisDefaults(cfg),
		}))
	if err != nil {
		return err
	}

	req := engine.GenerateRequest{
		ContentID:       uuid.NewString(),
		Text:            text,
		ForceRegenerate: true,
	}
	req.Title, _ = cmd.Flags().GetString("title")
	req.Provider, _ = cmd.Flags().GetString("provider")
	req.Voice, _ = cmd.Flags().GetString("voice")
	req.Language, _ = cmd.Flags().GetString("language")
	req.Format, _ = cmd.Flags().GetString("format")
	req.Speed, _ = cmd.Flags().GetFloat64("speed")
	req.Pitch, _ = cmd.Flags().GetFloat64("pitch")

	result, err := eng.Generate(ctx, req)
	if err != nil {
		return err
	}

	outPath, _ := cmd.Flags().GetString("out")
	if outPath == "" {
		outPath = "audiopress." + result.Format
	}

	audio, err := os.ReadFile(filepath.Join(tmpDir, result.Record.Audio.ObjectRef)) //nolint:gosec // ref was produced by our own store
	if err != nil {
		return fmt.Errorf("failed to read synthesized audio: %w", err)
	}
	if err := os.WriteFile(outPath, audio, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	fmt.Printf("✅ Wrote %s (%s, %s, %.1fs", outPath, result.Provider, result.Voice, result.DurationSeconds)
	if result.Chunks > 1 {
		fmt.Printf(", %d chunks", result.Chunks)
	}
	fmt.Println(")")
	return nil
}

// synthText resolves the input text: the argument, then --file, then
// stdin when piped.
func synthText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}

	if path, _ := cmd.Flags().GetString("file"); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator, not request input
		if err != nil {
			return "", fmt.Errorf("failed to read text file: %w", err)
		}
		return string(data), nil
	}

	if info, err := os.Stdin.Stat(); err == nil && info.Mode()&os.ModeCharDevice == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		if len(bytes.TrimSpace(data)) > 0 {
			return string(data), nil
		}
	}

	return "", errors.New("no text to synthesize (pass an argument, --file, or pipe stdin)")
}
