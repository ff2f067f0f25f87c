package handler

import (
    "errors"
    "fmt"
    "reflect"
    "strings"

    "github.com/go-playground/validator/v10"
)

// RequestValidator plugs go-playground/validator into echo.
type RequestValidator struct {
    v *validator.Validate
}

// NewRequestValidator returns a validator for echo.Echo.Validator.
func NewRequestValidator() *RequestValidator {
    v := validator.New()
    // Report fields by their wire names.
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        for _, tag := range []string{"json", "param", "query"} {
            if name := strings.Split(f.Tag.Get(tag), ",")[0]; name != "" && name != "-" {
                return name
            }
        }
        return f.Name
    })
    return &RequestValidator{v: v}
}

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i any) error {
    return rv.v.Struct(i)
}

// validationMessage turns validator output into one readable line.
func validationMessage(err error) string {
    var verrs validator.ValidationErrors
    if !errors.As(err, &verrs) {
        return err.Error()
    }
    parts := make([]string, 0, len(verrs))
    for _, fe := range verrs {
        parts = append(parts, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
    }
    return strings.Join(parts, "; ")
}
