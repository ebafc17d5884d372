package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"pharmabot/internal/domain"
)

// newValidator returns the request validator with the custom tags registered.
func newValidator() *validatorv10.Validate {
	v := validatorv10.New()
	_ = v.RegisterValidation("language", func(fl validatorv10.FieldLevel) bool {
		return domain.Language(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("notblank", func(fl validatorv10.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// bindAndValidate decodes the JSON body into out and validates it. On failure
// it writes the 400 response itself and returns the error.
func bindAndValidate(c *gin.Context, out any, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_request_body",
			"msg":   err.Error(),
		})
		return err
	}
	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": validationErrorsToMap(err),
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
