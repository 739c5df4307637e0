package core

import (
	"reflect"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/volatiletech/null/v8"
)

var (
	// custom validation tags & texts
	rfc3339TZTag  = "rfc3339tz"
	rfc3339TZText = "must be an RFC 3339 datetime with a timezone offset"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Teach the validator to see through the nullable wrappers; an invalid
	// wrapper reads as nil so `omitempty` skips it.
	validate.RegisterCustomTypeFunc(nullValue, null.String{}, null.Int{}, null.Time{}, null.Bool{})

	// register custom validators
	_ = validate.RegisterValidation(rfc3339TZTag, rfc3339TZValidation)
	RegisterCustomTranslation(validate, translator, rfc3339TZTag, rfc3339TZText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

func nullValue(field reflect.Value) interface{} {
	switch v := field.Interface().(type) {
	case null.String:
		if v.Valid {
			return v.String
		}
	case null.Int:
		if v.Valid {
			return v.Int
		}
	case null.Time:
		if v.Valid {
			return v.Time
		}
	case null.Bool:
		if v.Valid {
			return v.Bool
		}
	}
	return nil
}

// Custom Global Validators

// rfc3339TZValidation requires an RFC 3339 datetime carrying an explicit offset.
func rfc3339TZValidation(fl validator.FieldLevel) bool {
	_, err := ParseTimeTZ(fl.Field().String())
	return err == nil
}
