package agent

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigError implements the error interface and describes an illegal
// agent configuration. Configurations are validated fail-fast, before
// any network or buffer is constructed.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %v", e.Op, e.Err)
}

// IsConfiguration returns whether err was caused by an illegal agent
// configuration.
func IsConfiguration(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}
