package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avess/gallery-bed/api/common"
	"github.com/avess/gallery-bed/apperr"
	svcAuth "github.com/avess/gallery-bed/internal/auth"
)

// Handler serves signup and login.
type Handler struct {
	svc *svcAuth.LoginService
}

func NewHandler(svc *svcAuth.LoginService) *Handler {
	return &Handler{svc: svc}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) SignupHandler(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.svc.Signup(req.Username, req.Password)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	common.RespondSuccess(c, gin.H{
		"id":       user.ID,
		"username": user.Username,
	})
}

func (h *Handler) LoginHandler(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Login(req.Username, req.Password)
	if err != nil {
		// Credential failures come back as validation errors; report them as
		// unauthorized rather than a generic bad request.
		if apperr.IsValidation(err) {
			common.RespondError(c, http.StatusUnauthorized, "Invalid username or password.")
			return
		}
		common.RespondAppError(c, err)
		return
	}

	common.RespondSuccess(c, gin.H{
		"user_id":   result.UserID,
		"username":  result.Username,
		"role":      result.Role,
		"token":     result.Token,
		"expire_at": result.Expiry,
	})
}
