// Package providers holds the model-provider credential table shared
// by the agent service and the secrets assembly.
package providers

// envVars maps each supported model provider to the environment
// variable its API key is delivered under. An empty value means the
// provider needs no credential.
var envVars = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"glm":       "GLM_API_KEY",
	"ollama":    "",
}

// EnvVar returns the credential environment variable for a provider.
// ok is false for unknown providers.
func EnvVar(provider string) (envVar string, ok bool) {
	envVar, ok = envVars[provider]
	return envVar, ok
}
