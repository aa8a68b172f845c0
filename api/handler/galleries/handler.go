package galleries

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/avess/gallery-bed/api/common"
	"github.com/avess/gallery-bed/api/middleware"
	svcGalleries "github.com/avess/gallery-bed/internal/galleries"
)

// Handler serves gallery CRUD under /users/:userId/galleries.
type Handler struct {
	svc *svcGalleries.Service
}

func NewHandler(svc *svcGalleries.Service) *Handler {
	return &Handler{svc: svc}
}

type galleryNameRequest struct {
	Name string `json:"name" binding:"required"`
}

// ParamUint parses a numeric path parameter.
func ParamUint(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "Invalid "+name+" parameter.")
		return 0, false
	}
	return uint(v), true
}

// PageParams reads page/page_size query parameters with defaults.
func PageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

func (h *Handler) CreateHandler(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	ownerID, ok := ParamUint(c, "userId")
	if !ok {
		return
	}

	var req galleryNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	gallery, err := h.svc.Create(c.Request.Context(), id, ownerID, req.Name)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	common.RespondSuccess(c, gin.H{
		"id":   gallery.ID,
		"name": gallery.Name,
	})
}

func (h *Handler) ListHandler(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	ownerID, ok := ParamUint(c, "userId")
	if !ok {
		return
	}

	page, pageSize := PageParams(c)
	infos, total, err := h.svc.List(c.Request.Context(), id, ownerID, page, pageSize)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	items := make([]gin.H, len(infos))
	for i, info := range infos {
		items[i] = gin.H{
			"id":          info.Gallery.ID,
			"name":        info.Gallery.Name,
			"image_count": info.ImageCount,
			"created_at":  info.Gallery.CreatedAt,
		}
	}

	common.RespondSuccess(c, gin.H{
		"galleries": items,
		"total":     total,
		"page":      page,
	})
}

func (h *Handler) GetHandler(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	ownerID, ok := ParamUint(c, "userId")
	if !ok {
		return
	}
	galleryID, ok := ParamUint(c, "galleryId")
	if !ok {
		return
	}

	gallery, err := h.svc.Get(c.Request.Context(), id, ownerID, galleryID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	common.RespondSuccess(c, gin.H{
		"id":         gallery.ID,
		"name":       gallery.Name,
		"created_at": gallery.CreatedAt,
	})
}

func (h *Handler) RenameHandler(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	ownerID, ok := ParamUint(c, "userId")
	if !ok {
		return
	}
	galleryID, ok := ParamUint(c, "galleryId")
	if !ok {
		return
	}

	var req galleryNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	gallery, err := h.svc.Rename(c.Request.Context(), id, ownerID, galleryID, req.Name)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	common.RespondSuccess(c, gin.H{
		"id":   gallery.ID,
		"name": gallery.Name,
	})
}

func (h *Handler) DeleteHandler(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	ownerID, ok := ParamUint(c, "userId")
	if !ok {
		return
	}
	galleryID, ok := ParamUint(c, "galleryId")
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id, ownerID, galleryID); err != nil {
		common.RespondAppError(c, err)
		return
	}

	common.RespondSuccessMessage(c, "Gallery deleted.", nil)
}
