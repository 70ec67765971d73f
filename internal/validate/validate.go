// Package validate checks request payloads with struct tags and reports
// failures per JSON field, in Vietnamese.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/vi"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	vi_translations "github.com/go-playground/validator/v10/translations/vi"
)

const notBlankTag = "notblank"

// FieldErrors maps a JSON field name to its message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "dữ liệu không hợp lệ: " + strings.Join(parts, "; ")
}

type Validator struct {
	v     *validator.Validate
	trans ut.Translator
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	locale := vi.New()
	uni := ut.New(locale, locale)
	trans, _ := uni.GetTranslator("vi")
	_ = vi_translations.RegisterDefaultTranslations(v, trans)

	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(notBlankTag, notBlank)
	_ = v.RegisterTranslation(notBlankTag, trans,
		func(t ut.Translator) error {
			return t.Add(notBlankTag, "{0} không được để trống", true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T(notBlankTag, fe.Field())
			return msg
		},
	)

	return &Validator{v: v, trans: trans}
}

// Struct validates s. It returns FieldErrors when a tag rule fails, or
// another error when s cannot be validated at all.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		key := fe.Field()
		if _, dup := out[key]; !dup {
			out[key] = fe.Translate(v.trans)
		}
	}
	return out
}

func notBlank(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return false
}
