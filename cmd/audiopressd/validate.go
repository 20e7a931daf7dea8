package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AudioPress/audiopress/engine"
	"github.com/AudioPress/audiopress/records"
)

var validateCmd = &cobra.Command{
	Use:   "validate [provider...]",
	Short: "Validate TTS provider credentials",
	Long: `Validates that TTS providers accept their configured credentials by
listing voices against the live vendor API.

With no arguments every provider whose credentials resolve is checked.
Naming providers checks exactly those, so a provider that silently lost
its credentials fails instead of being skipped.

Examples:
  audiopressd validate
  audiopressd validate azure elevenlabs`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, selector := buildProviders(ctx, cfg)
	eng, err := engine.New(records.NewMemoryStore(), registry, selector, buildStorageFactory(cfg))
	if err != nil {
		return err
	}

	names := args
	if len(names) == 0 {
		names = registry.List()
	}
	if len(names) == 0 {
		return errors.New("no TTS provider has credentials configured")
	}

	failed := 0
	for _, name := range names {
		result, err := eng.ValidateProvider(ctx, name)
		switch {
		case err != nil:
			fmt.Printf("❌ %-12s %v\n", name, err)
			failed++
		case result.OK:
			fmt.Printf("✅ %-12s credentials valid\n", name)
		default:
			fmt.Printf("❌ %-12s %s\n", name, result.Detail)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d providers failed validation", failed, len(names))
	}
	return nil
}
