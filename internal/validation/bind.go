package validation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	validatorv10 "github.com/go-playground/validator/v10"
)

// ErrorBody is the JSON error envelope of every API response.
type ErrorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Normalizer is implemented by requests that clean up their fields after
// binding and before validation.
type Normalizer interface {
	Normalize()
}

var errContentType = errors.New("content type must be application/json")

// BindAndValidate binds JSON body into `out` and runs validation.
// If validation fails, it writes a 400 response and returns an error for the handler to short-circuit.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if c.ContentType() != binding.MIMEJSON {
		c.JSON(http.StatusBadRequest, ErrorBody{
			Error:   "invalid_content_type",
			Message: "Content-Type must be application/json",
		})
		return errContentType
	}

	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, ErrorBody{
			Error:   "invalid_request_body",
			Message: err.Error(),
		})
		return err
	}

	if n, ok := out.(Normalizer); ok {
		n.Normalize()
	}

	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, ErrorBody{
			Error:   "validation_failed",
			Message: "request has invalid fields",
			Fields:  validationErrorsToMap(err),
		})
		return err
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Field()] = fe.Tag()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}
