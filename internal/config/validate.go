package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	gvalidator "github.com/go-playground/validator/v10"

	"transferScope/internal/errs"
)

var (
	validator         *gvalidator.Validate
	initValidatorOnce sync.Once
)

const errStringFormat = "'%s': value '%v' does not meet the requirements for the '%s' validation"

// Validate checks the struct tags of a loaded config. Failures are marked
// errs.InvalidConfig and list every violated field.
func Validate(cfg any) error {
	initValidatorOnce.Do(func() {
		validator = gvalidator.New(gvalidator.WithRequiredStructEnabled())
	})

	err := validator.Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrors gvalidator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errors.Mark(err, errs.InvalidConfig)
	}

	details := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details = append(details, fmt.Sprintf(errStringFormat, fieldErr.Field(), fieldErr.Value(), fieldErr.Tag()))
	}
	return errors.Mark(errors.Newf("invalid config: %s", strings.Join(details, "; ")), errs.InvalidConfig)
}
