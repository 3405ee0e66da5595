package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/safedeal/internal/service"
)

// Validator plugs go-playground/validator into echo's c.Validate.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (cv *Validator) Validate(i interface{}) error {
	return cv.v.Struct(i)
}

// decode binds the body into req and runs its validate tags.
func decode(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errors.New("invalid request body")
	}
	return c.Validate(req)
}

// parsePage reads ?skip and ?limit. Missing values take the service defaults.
func parsePage(c echo.Context) (service.Page, bool) {
	var p service.Page
	if s := c.QueryParam("skip"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return p, false
		}
		p.Skip = n
	}
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > service.MaxPageLimit {
			return p, false
		}
		p.Limit = n
	}
	return p, true
}
