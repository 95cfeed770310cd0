package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/idracsim/internal/common/emuerrors"
)

// Validate runs the struct tag validation on config. Any failures are logged one per field and returned as a
// single *emuerrors.ErrConfiguration naming the first offending field.
func Validate(config interface{}) error {
	err := validator.New().Struct(config)
	if err == nil {
		return nil
	}
	return LogValidationErrors(err)
}

func LogValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errors.WithStack(&emuerrors.ErrConfiguration{Field: "<unknown>", Message: err.Error()})
	}
	var first *emuerrors.ErrConfiguration
	for _, err := range validationErrors {
		fieldName := stripPrefix(err.Namespace())
		tag := err.Tag()
		switch tag {
		case "required":
			log.Errorf("ConfigError: Field %s is required but was not found", fieldName)
		default:
			log.Errorf("ConfigError: Field %s has invalid value %v: %s", fieldName, err.Value(), tag)
		}
		if first == nil {
			first = &emuerrors.ErrConfiguration{
				Field:   fieldName,
				Value:   err.Value(),
				Message: "failed validation rule " + tag,
			}
		}
	}
	return errors.WithStack(first)
}

func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}
