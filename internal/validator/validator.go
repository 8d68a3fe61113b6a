package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single field validation failure
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// NewFieldError builds a single-field ValidationErrors for checks done outside struct tags
func NewFieldError(field, rule, message string) ValidationErrors {
	return ValidationErrors{{Field: field, Rule: rule, Message: message}}
}

const maxEchoLength = 200

// Validator wraps go-playground/validator with the service's custom rules
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	validate := validator.New()

	// Report json field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	v := &Validator{validate: validate}
	v.registerRules()
	return v
}

// Validate returns ValidationErrors or nil
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: errorMessage(fe),
			Value:   echoValue(fe.Value()),
			Rule:    fe.Tag(),
		})
	}
	return out
}

// echoValue drops payloads too large to send back in an error response
func echoValue(value interface{}) interface{} {
	switch v := value.(type) {
	case []byte:
		return nil
	case string:
		if len(v) > maxEchoLength {
			return nil
		}
	}
	return value
}

func (v *Validator) registerRules() {
	// Non-empty after trimming whitespace
	v.validate.RegisterValidation("not_blank", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() == reflect.Ptr {
			if field.IsNil() {
				return false
			}
			field = field.Elem()
		}
		return strings.TrimSpace(field.String()) != ""
	})

	v.validate.RegisterValidation("audio_mime", func(fl validator.FieldLevel) bool {
		return IsAudioContentType(fl.Field().String())
	})
}

// IsAudioContentType accepts audio/* media types, ignoring parameters
func IsAudioContentType(contentType string) bool {
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	return strings.HasPrefix(strings.ToLower(mediaType), "audio/")
}

func errorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "not_blank":
		return "must not be blank"
	case "min":
		return fmt.Sprintf("must be at least %s", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", err.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", err.Param())
	case "audio_mime":
		return "must be an audio content type"
	default:
		return fmt.Sprintf("validation failed for rule '%s'", err.Tag())
	}
}
