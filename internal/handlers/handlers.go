package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"go-ops-dashboard/internal/apperr"
	"go-ops-dashboard/internal/logger"
	"go-ops-dashboard/internal/middleware"
	"go-ops-dashboard/internal/models"
	"go-ops-dashboard/internal/money"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var registerOnce sync.Once

// RegisterValidators adds the domain tags to gin's validator engine
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			return money.IsSupported(fl.Field().String())
		})
		_ = v.RegisterValidation("order_status", func(fl validator.FieldLevel) bool {
			return models.OrderStatus(fl.Field().String()).IsValid()
		})
		_ = v.RegisterValidation("expense_category", func(fl validator.FieldLevel) bool {
			return models.ValidExpenseCategory(fl.Field().String())
		})
	})
}

// respondError writes err as {"error", "code"}. Unknown errors become a
// logged 500.
func respondError(c *gin.Context, err error) {
	if e, msg, ok := apperr.Lookup(err); ok {
		c.JSON(e.Status, gin.H{"error": msg, "code": e.Code})
		return
	}
	logger.FromGin(c).Error("Request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "INTERNAL"})
}

// badRequest reports a binding failure with the first offending field
func badRequest(c *gin.Context, err error) {
	msg := "Invalid input"
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg = "Invalid input: " + strings.ToLower(fe.Field()) + " failed " + fe.Tag()
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": apperr.ErrInvalidInput.Code})
}

// idParam reads a positive numeric path parameter
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name, "code": apperr.ErrInvalidInput.Code})
		return 0, false
	}
	return uint(id), true
}

func currentUser(c *gin.Context) uint {
	return c.GetUint(middleware.UserIDKey)
}

// listResponse is the envelope of paginated lists
func listResponse(c *gin.Context, data any, meta any) {
	c.JSON(http.StatusOK, gin.H{"data": data, "meta": meta})
}
