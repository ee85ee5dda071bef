package api

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// retryPolicyYAML mirrors RetryPolicy with the backoff as a string, so
// templates can write durations as "500ms" or "2s".
type retryPolicyYAML struct {
	MaxAttempts int    `yaml:"max_attempts"`
	Backoff     string `yaml:"backoff"`
}

// UnmarshalYAML decodes the backoff field through time.ParseDuration.
func (r *RetryPolicy) UnmarshalYAML(value *yaml.Node) error {
	var raw retryPolicyYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	r.MaxAttempts = raw.MaxAttempts
	r.Backoff = 0
	if raw.Backoff != "" {
		d, err := time.ParseDuration(raw.Backoff)
		if err != nil {
			return fmt.Errorf("retry backoff: %w", err)
		}
		r.Backoff = d
	}
	return nil
}
