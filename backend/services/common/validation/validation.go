// Package validation registers the custom binding tags shared by the
// services.
package validation

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// GatewayRefTag validates identifiers issued by a payment gateway
// (order_..., pay_..., pi_...).
const GatewayRefTag = "gateway_ref"

var (
	gatewayRef = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

	once    sync.Once
	onceErr error
)

// Register installs the custom tags on gin's validator. Safe to call more
// than once.
func Register() error {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			onceErr = fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
			return
		}
		onceErr = v.RegisterValidation(GatewayRefTag, func(fl validator.FieldLevel) bool {
			return gatewayRef.MatchString(fl.Field().String())
		})
	})
	return onceErr
}

// MustRegister is Register for main packages and tests.
func MustRegister() {
	if err := Register(); err != nil {
		panic(err)
	}
}
