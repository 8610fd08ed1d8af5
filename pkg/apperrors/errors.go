package apperrors

import (
	"errors"
	"fmt"
)

// ConfigError represents malformed or contradictory input. It is fatal and never retried.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error: %s - %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// InfeasibleError is returned once the restart budget is spent without a complete schedule
type InfeasibleError struct {
	Cause    string
	Restarts int
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("schedule infeasible after %d restarts: %s", e.Restarts, e.Cause)
}

// SolverInfeasibleError is returned when the solver fails even at its loosest cooldown
type SolverInfeasibleError struct {
	Cooldown int
	Reason   string
}

func (e *SolverInfeasibleError) Error() string {
	return fmt.Sprintf("solver infeasible at cooldown %d: %s", e.Cooldown, e.Reason)
}

// Business Logic Errors
var (
	ErrPlanNotFound      = errors.New("plan not found")
	ErrKeyNotFound       = errors.New("api key not found")
	ErrInvalidHorizon    = errors.New("planning horizon ends before it starts")
	ErrUnknownStrategy   = errors.New("unknown planning strategy")
	ErrNoSuccessfulTrial = errors.New("no trial produced a complete schedule")
)

// IsConfig checks if an error is a ConfigError
func IsConfig(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}

// IsInfeasible checks if an error is an InfeasibleError or a SolverInfeasibleError
func IsInfeasible(err error) bool {
	var infErr *InfeasibleError
	var solverErr *SolverInfeasibleError
	return errors.As(err, &infErr) || errors.As(err, &solverErr)
}

// NewConfigError creates a new ConfigError
func NewConfigError(field, message string) error {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorf creates a new ConfigError with a formatted message
func NewConfigErrorf(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}
