package service

import (
	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/providers"
)

// ValidateProviderCredentials checks that the provider is known and,
// when it needs a credential, that the system secrets carry one.
func ValidateProviderCredentials(provider string, secrets map[string]string) error {
	envVar, ok := providers.EnvVar(provider)
	if !ok {
		return apperr.ValidationField("model_provider", "unknown model provider %q", provider)
	}
	if envVar == "" {
		return nil
	}
	if secrets[envVar] == "" {
		return apperr.ProviderUnconfigured(provider)
	}
	return nil
}
