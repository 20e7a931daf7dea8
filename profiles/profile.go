// Package profiles loads named voice presets from K8s-style YAML
// manifests. A profile bundles the provider, voice and prosody
// settings a request can reference by name instead of spelling out
// each field.
package profiles

import (
	"fmt"

	"gopkg.in/yaml.v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// APIVersion is the manifest apiVersion this package accepts.
	APIVersion = "audiopress.io/v1alpha1"
	// Kind is the manifest kind for voice profiles.
	Kind = "VoiceProfile"
)

// VoiceProfile is a YAML voice preset in K8s-style manifest format.
type VoiceProfile struct {
	APIVersion string            `yaml:"apiVersion" json:"apiVersion"`
	Kind       string            `yaml:"kind" json:"kind"`
	Metadata   metav1.ObjectMeta `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Spec       VoiceSpec         `yaml:"spec" json:"spec"`
}

// VoiceSpec contains the synthesis settings the profile applies.
type VoiceSpec struct {
	Provider    string  `yaml:"provider" json:"provider"`
	VoiceID     string  `yaml:"voice_id" json:"voice_id"`
	Language    string  `yaml:"language,omitempty" json:"language,omitempty"`
	Speed       float64 `yaml:"speed,omitempty" json:"speed,omitempty"`
	Pitch       float64 `yaml:"pitch,omitempty" json:"pitch,omitempty"`
	Format      string  `yaml:"format,omitempty" json:"format,omitempty"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
}

// Name returns the profile's manifest name.
func (p *VoiceProfile) Name() string {
	return p.Metadata.Name
}

// Parse parses a voice profile manifest from YAML data.
func Parse(data []byte) (*VoiceProfile, error) {
	var profile VoiceProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if profile.APIVersion == "" {
		return nil, fmt.Errorf("missing required field: apiVersion")
	}
	if profile.Kind != Kind {
		return nil, fmt.Errorf("invalid kind: expected '%s', got '%s'", Kind, profile.Kind)
	}
	if profile.Metadata.Name == "" {
		return nil, fmt.Errorf("missing required field: metadata.name")
	}
	if profile.Spec.Provider == "" {
		return nil, fmt.Errorf("missing required field: spec.provider")
	}
	if profile.Spec.VoiceID == "" {
		return nil, fmt.Errorf("missing required field: spec.voice_id")
	}
	if profile.Spec.Speed < 0 {
		return nil, fmt.Errorf("spec.speed must not be negative, got %v", profile.Spec.Speed)
	}

	return &profile, nil
}
