package profiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, dir, filename, name, provider, voice string) {
	t.Helper()
	manifest := `apiVersion: audiopress.io/v1alpha1
kind: VoiceProfile
metadata:
  name: ` + name + `
spec:
  provider: ` + provider + `
  voice_id: ` + voice + `
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(manifest), 0o600))
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry()

	profile, err := Parse([]byte(validManifest))
	require.NoError(t, err)
	require.NoError(t, registry.Register(profile))

	got, err := registry.Get("newsreader")
	require.NoError(t, err)
	assert.Equal(t, "polly", got.Spec.Provider)

	_, err = registry.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_RegisterValidation(t *testing.T) {
	registry := NewRegistry()

	assert.Error(t, registry.Register(nil))
	assert.Error(t, registry.Register(&VoiceProfile{}))
}

func TestRegistry_LoadDir(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "newsreader.yaml", "newsreader", "polly", "Joanna")
	writeProfile(t, dir, "podcast.yml", "podcast-host", "elevenlabs", "rachel")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not a manifest"), 0o600))

	registry := NewRegistry()
	loaded, err := registry.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Equal(t, []string{"newsreader", "podcast-host"}, registry.List())
}

func TestRegistry_LoadDirSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "team")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	writeProfile(t, sub, "narrator.yaml", "narrator", "azure", "en-US-JennyNeural")

	registry := NewRegistry()
	loaded, err := registry.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
}

func TestRegistry_LoadDirInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("kind: Nope"), 0o600))

	registry := NewRegistry()
	_, err := registry.LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yaml")
}

func TestRegistry_LoadDirReplacesByName(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "a.yaml", "narrator", "polly", "Joanna")
	writeProfile(t, dir, "b.yaml", "narrator", "google", "en-US-Neural2-C")

	registry := NewRegistry()
	loaded, err := registry.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	got, err := registry.Get("narrator")
	require.NoError(t, err)
	// Files load in lexical order, so the later manifest wins.
	assert.Equal(t, "google", got.Spec.Provider)
}
