package account

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldErrors はフォーム項目名ごとの検証エラーメッセージ。
type FieldErrors map[string]string

// formValidator はgo-playground/validatorをフォーム検証用にラップする。
// エラーのフィールド名にはformタグの値を使う。
type formValidator struct {
	v *validator.Validate
}

func newFormValidator() *formValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &formValidator{v: v}
}

// validate はフォームを検証し、失敗した項目をFieldErrorsで返す。
func (fv *formValidator) validate(form any) (FieldErrors, error) {
	err := fv.v.Struct(form)
	if err == nil {
		return nil, nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil, err
	}
	fields := make(FieldErrors, len(ve))
	for _, fe := range ve {
		if _, ok := fields[fe.Field()]; !ok {
			fields[fe.Field()] = fieldError(fe)
		}
	}
	return fields, nil
}

// fieldError は1件の検証エラーを表示用のメッセージに変換する。
func fieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "eqfield":
		return "Passwords do not match"
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}

// summary はFieldErrorsを1行のメッセージにまとめる。順序はkeysに従う。
func (f FieldErrors) summary(keys ...string) string {
	msgs := make([]string, 0, len(f))
	for _, k := range keys {
		if m, ok := f[k]; ok {
			msgs = append(msgs, m)
		}
	}
	return strings.Join(msgs, "; ")
}
