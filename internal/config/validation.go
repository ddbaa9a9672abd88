package config

import (
	"fmt"
	"strings"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateDetailed returns every validation problem in the configuration.
func (c *Config) ValidateDetailed() []ValidationError {
	var errs []ValidationError

	if c.DefaultNetwork == "" {
		errs = append(errs, ValidationError{Field: "default_network", Message: "must be set"})
	} else if !c.DefaultNetwork.Known() {
		errs = append(errs, ValidationError{Field: "default_network", Message: fmt.Sprintf("unknown network %q", c.DefaultNetwork)})
	}

	if c.SecurityLevel != "" && !c.SecurityLevel.Valid() {
		errs = append(errs, ValidationError{Field: "security_level", Message: fmt.Sprintf("unknown level %q", c.SecurityLevel)})
	}

	seen := make(map[string]bool)
	defaultRegistered := false
	for i, h := range c.Handlers {
		field := fmt.Sprintf("handlers[%d]", i)
		if !h.Network.Known() {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("unknown network %q", h.Network)})
			continue
		}
		if seen[h.Network.String()] {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("duplicate handler for network %q", h.Network)})
		}
		seen[h.Network.String()] = true
		if h.Network == c.DefaultNetwork {
			defaultRegistered = true
		}
		if h.Port < 0 || h.Port > 65535 {
			errs = append(errs, ValidationError{Field: field + ".port", Message: "must be between 0 and 65535"})
		}
	}
	if c.DefaultNetwork.Known() && len(c.Handlers) > 0 && !defaultRegistered {
		errs = append(errs, ValidationError{Field: "default_network", Message: fmt.Sprintf("no handler configured for default network %q", c.DefaultNetwork)})
	}

	return errs
}

// Validate returns an error aggregating every validation problem.
func (c *Config) Validate() error {
	errs := c.ValidateDetailed()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
