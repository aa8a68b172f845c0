package common

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avess/gallery-bed/apperr"
)

type Response struct {
	Status string      `json:"status"`
	Msg    string      `json:"msg"`
	Data   interface{} `json:"data,omitempty"`
}

func Respond(c *gin.Context, httpStatus int, status string, message string, data interface{}) {
	c.JSON(httpStatus, Response{
		Status: status,
		Msg:    message,
		Data:   data,
	})
}

// RespondSuccess sends a success response with data.
func RespondSuccess(c *gin.Context, data interface{}) {
	Respond(c, http.StatusOK, "success", "", data)
}

// RespondSuccessMessage sends a success response with message and data.
func RespondSuccessMessage(c *gin.Context, message string, data interface{}) {
	Respond(c, http.StatusOK, "success", message, data)
}

// RespondError sends an error response with message.
func RespondError(c *gin.Context, httpStatus int, message string) {
	Respond(c, httpStatus, "error", message, nil)
}

// RespondAppError maps a service-layer error onto an HTTP status. Validation
// messages pass through verbatim; operational failures are logged and masked
// with a generic message so internal paths never leak.
func RespondAppError(c *gin.Context, err error) {
	var ve *apperr.ValidationError
	var thumbErr *apperr.ThumbnailError
	var inconsistency *apperr.InconsistencyError
	var storageErr *apperr.StorageError

	switch {
	case errors.As(err, &ve):
		RespondError(c, http.StatusBadRequest, ve.Msg)
	case errors.As(err, &thumbErr):
		RespondError(c, http.StatusBadRequest, "The file should be a valid image.")
	case errors.Is(err, apperr.ErrForbidden):
		RespondError(c, http.StatusForbidden, "Access denied.")
	case errors.Is(err, apperr.ErrGalleryNotFound):
		RespondError(c, http.StatusNotFound, "Gallery not found.")
	case errors.Is(err, apperr.ErrImageNotFound):
		RespondError(c, http.StatusNotFound, "Image not found.")
	case errors.Is(err, apperr.ErrUserNotFound):
		RespondError(c, http.StatusNotFound, "User not found.")
	case errors.As(err, &inconsistency):
		log.Printf("[api] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		RespondError(c, http.StatusInternalServerError, "Stored image data is inconsistent.")
	case errors.As(err, &storageErr):
		log.Printf("[api] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		RespondError(c, http.StatusInternalServerError, "Storage operation failed.")
	default:
		log.Printf("[api] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		RespondError(c, http.StatusInternalServerError, "Internal server error.")
	}
}
