package configuration

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	commonconfig "github.com/G-Research/idracsim/internal/common/config"
	"github.com/G-Research/idracsim/internal/common/emuerrors"
)

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9.\-_/#:]{1,255}$`)

// Validate checks the struct tags of config, the namespace format, and the settings of the selected backend.
// All failures are returned as *emuerrors.ErrConfiguration.
func Validate(config Configuration) error {
	if err := commonconfig.Validate(config); err != nil {
		return err
	}
	if err := ValidateNamespace(config.Namespace); err != nil {
		return err
	}
	return validateBackend(config.Backend)
}

// ValidateNamespace checks that namespace is acceptable as a CloudWatch namespace, which is the strictest of the
// supported backends.
func ValidateNamespace(namespace string) error {
	if !namespacePattern.MatchString(namespace) {
		return errors.WithStack(&emuerrors.ErrConfiguration{
			Field:   "namespace",
			Value:   namespace,
			Message: "must be 1-255 characters of letters, digits and . - _ / # :",
		})
	}
	if strings.HasPrefix(namespace, "AWS/") {
		return errors.WithStack(&emuerrors.ErrConfiguration{
			Field:   "namespace",
			Value:   namespace,
			Message: "the AWS/ prefix is reserved",
		})
	}
	return nil
}

func validateBackend(config BackendConfig) error {
	var selected interface{}
	switch config.Type {
	case "cloudwatch":
		selected = config.CloudWatch
	case "pulsar":
		selected = config.Pulsar
	case "kafka":
		selected = config.Kafka
	case "redis":
		selected = config.Redis
	default:
		return nil
	}
	if err := commonconfig.Validate(selected); err != nil {
		var configErr *emuerrors.ErrConfiguration
		if errors.As(err, &configErr) {
			configErr.Field = "backend." + config.Type + "." + configErr.Field
		}
		return err
	}
	return nil
}
