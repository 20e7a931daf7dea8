package player

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"
)

// The embed markup is kept in an external file for easier editing and
// compiled into the binary with go:embed.
//
//go:embed templates/player.html.tmpl
var embedTemplate string

var embedTmpl = template.Must(template.New("player").Parse(embedTemplate))

// RenderEmbed renders the HTML audio player for a config.
func RenderEmbed(config *Config) (string, error) {
	if config == nil {
		return "", ErrNotEmbeddable
	}

	var buf strings.Builder
	if err := embedTmpl.Execute(&buf, config); err != nil {
		return "", fmt.Errorf("failed to render player embed: %w", err)
	}
	return buf.String(), nil
}
