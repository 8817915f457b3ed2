package gateway

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// validateBody проверяет тело запроса по тегам validate до отправки.
// Не-структуры (map, nil) не проверяются.
func validateBody(method, path string, body any) error {
	if body == nil {
		return nil
	}
	t := reflect.TypeOf(body)
	if t.Kind() == reflect.Ptr {
		if reflect.ValueOf(body).IsNil() {
			return nil
		}
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	err := validatorInstance().Struct(body)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &Error{
		Kind:    KindValidation,
		Method:  method,
		Path:    path,
		Message: "invalid request",
		Fields:  fields,
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.ActualTag() {
	case "required":
		return "is a required field"
	case "email":
		return "must be a valid email"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return "is not valid"
	}
}
