package provider

import (
	"fmt"
	"strings"
)

// Options carries factory-level settings shared by all backends.
type Options struct {
	APIKey            string
	UseAWSBedrock     bool
	AWSRegion         string
	AWSProfile        string
	RequestsPerMinute int
}

// ParseModelSpec splits "provider/model-name" into its parts. A bare model
// name infers the provider from its prefix, defaulting to anthropic.
func ParseModelSpec(spec string) (providerName, model string) {
	if before, after, ok := strings.Cut(spec, "/"); ok {
		return strings.ToLower(before), after
	}
	return "anthropic", spec
}

// IsAgentCLI reports whether the model spec names an external coding-agent
// subprocess rather than an API backend. Those are handled by the agent-cli
// executor, not a Provider.
func IsAgentCLI(spec string) bool {
	name, _ := ParseModelSpec(spec)
	return name == "agent-cli"
}

// New creates the Provider for a model spec.
func New(spec string, opts Options) (Provider, error) {
	name, model := ParseModelSpec(spec)

	switch name {
	case "anthropic":
		return NewAnthropic(AnthropicConfig{
			Model:             model,
			APIKey:            opts.APIKey,
			UseAWSBedrock:     opts.UseAWSBedrock,
			AWSRegion:         opts.AWSRegion,
			AWSProfile:        opts.AWSProfile,
			RequestsPerMinute: opts.RequestsPerMinute,
		})
	case "agent-cli":
		return nil, fmt.Errorf("model %q names an external agent; use the agent-cli executor", spec)
	default:
		return nil, fmt.Errorf("unknown provider %q: use 'anthropic/<model>' or 'agent-cli/<command>'", name)
	}
}
