package credentials

import (
	"context"
	"fmt"
	"strings"
)

// resolvePlatformCredential creates token-based credentials for cloud platforms.
func resolvePlatformCredential(ctx context.Context, cfg ResolverConfig) (Credential, error) {
	switch strings.ToLower(cfg.Platform) {
	case PlatformAzureAD:
		return NewAzureCredential(ctx)
	case PlatformGCPADC:
		return NewGCPCredential(ctx)
	case PlatformGCPServiceAccount:
		if cfg.Spec == nil || cfg.Spec.CredentialFile == "" {
			return nil, fmt.Errorf("platform %s requires a credential file", PlatformGCPServiceAccount)
		}
		return NewGCPCredentialWithServiceAccount(ctx, cfg.Spec.CredentialFile)
	default:
		return nil, fmt.Errorf("unsupported platform type: %s", cfg.Platform)
	}
}
