package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-mailorder-bridge/internal/orders"
)

// New returns a configured validator with the custom tags registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// order ids end up in file names, so anything that could escape the
	// bucket directory is rejected before it reaches the store.
	_ = v.RegisterValidation("order_id", validOrderID)

	return v
}

func validOrderID(fl validatorv10.FieldLevel) bool {
	return orders.ValidOrderID(fl.Field().String())
}
