package images

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avess/gallery-bed/api/common"
	"github.com/avess/gallery-bed/api/handler/galleries"
	"github.com/avess/gallery-bed/api/middleware"
	"github.com/avess/gallery-bed/database/models"
	svcImages "github.com/avess/gallery-bed/internal/images"
	"github.com/avess/gallery-bed/utils/mime"
)

// Handler serves image operations under /users/:userId/galleries/:galleryId/images.
type Handler struct {
	svc *svcImages.Service
}

func NewHandler(svc *svcImages.Service) *Handler {
	return &Handler{svc: svc}
}

// scope reads the identity and the two path ids every image route shares.
func scope(c *gin.Context) (ownerID, galleryID uint, ok bool) {
	if ownerID, ok = galleries.ParamUint(c, "userId"); !ok {
		return 0, 0, false
	}
	if galleryID, ok = galleries.ParamUint(c, "galleryId"); !ok {
		return 0, 0, false
	}
	return ownerID, galleryID, true
}

func imageJSON(image *models.Image) gin.H {
	return gin.H{
		"id":         image.ID,
		"name":       image.Name,
		"gallery_id": image.GalleryID,
		"created_at": image.CreatedAt,
	}
}

// UploadHandler stores a single multipart file.
func (h *Handler) UploadHandler(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	ownerID, galleryID, ok := scope(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "No file provided.")
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "Failed to read uploaded file.")
		return
	}
	defer src.Close()

	image, err := h.svc.Upload(c.Request.Context(), id, ownerID, galleryID, fileHeader.Filename, src, fileHeader.Size)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	common.RespondSuccess(c, imageJSON(image))
}

// UploadBatchHandler stores several multipart files, reporting the outcome
// per file.
func (h *Handler) UploadBatchHandler(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	ownerID, galleryID, ok := scope(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "Invalid multipart form.")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		common.RespondError(c, http.StatusBadRequest, "No files provided.")
		return
	}

	results, err := h.svc.UploadMany(c.Request.Context(), id, ownerID, galleryID, files)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	items := make([]gin.H, len(results))
	for i, r := range results {
		item := gin.H{"file_name": r.FileName}
		if r.Error != "" {
			item["error"] = r.Error
		} else {
			item["image"] = imageJSON(r.Image)
		}
		items[i] = item
	}

	common.RespondSuccess(c, gin.H{"results": items})
}

// GetHandler streams the image artifact.
func (h *Handler) GetHandler(c *gin.Context) {
	h.serve(c, false)
}

// ThumbnailHandler streams the thumbnail sibling.
func (h *Handler) ThumbnailHandler(c *gin.Context) {
	h.serve(c, true)
}

func (h *Handler) serve(c *gin.Context, thumbnail bool) {
	id, _ := middleware.IdentityFrom(c)
	ownerID, galleryID, ok := scope(c)
	if !ok {
		return
	}
	name := c.Param("imageName")

	var (
		image  *models.Image
		reader io.ReadSeekCloser
		err    error
	)
	if thumbnail {
		image, reader, err = h.svc.FindThumbnail(c.Request.Context(), id, ownerID, galleryID, name)
	} else {
		image, reader, err = h.svc.Find(c.Request.Context(), id, ownerID, galleryID, name)
	}
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	defer reader.Close()

	contentType, err := mime.SniffContentType(reader)
	if err == nil {
		c.Header("Content-Type", contentType)
	}
	c.Header("Cache-Control", "private, max-age=3600")

	http.ServeContent(c.Writer, c.Request, image.Name, image.UpdatedAt, reader)
}

// RenameHandler changes the image's base name, keeping its extension.
func (h *Handler) RenameHandler(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	ownerID, galleryID, ok := scope(c)
	if !ok {
		return
	}
	name := c.Param("imageName")

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	image, err := h.svc.Rename(c.Request.Context(), id, ownerID, galleryID, name, req.Name)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	common.RespondSuccess(c, imageJSON(image))
}

// DeleteHandler removes the image, its thumbnail and its record.
func (h *Handler) DeleteHandler(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	ownerID, galleryID, ok := scope(c)
	if !ok {
		return
	}
	name := c.Param("imageName")

	if err := h.svc.Delete(c.Request.Context(), id, ownerID, galleryID, name); err != nil {
		common.RespondAppError(c, err)
		return
	}

	common.RespondSuccessMessage(c, "Image deleted.", nil)
}

// ListHandler returns one page of a gallery's images.
func (h *Handler) ListHandler(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	ownerID, galleryID, ok := scope(c)
	if !ok {
		return
	}

	page, pageSize := galleries.PageParams(c)
	items, total, err := h.svc.List(c.Request.Context(), id, ownerID, galleryID, page, pageSize)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	h.respondList(c, items, total, page)
}

// ListAllHandler returns one page of an owner's images across galleries.
func (h *Handler) ListAllHandler(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	ownerID, ok := galleries.ParamUint(c, "userId")
	if !ok {
		return
	}

	page, pageSize := galleries.PageParams(c)
	items, total, err := h.svc.ListAll(c.Request.Context(), id, ownerID, page, pageSize)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	h.respondList(c, items, total, page)
}

func (h *Handler) respondList(c *gin.Context, items []*models.Image, total int64, page int) {
	out := make([]gin.H, len(items))
	for i, image := range items {
		out[i] = imageJSON(image)
	}
	common.RespondSuccess(c, gin.H{
		"images": out,
		"total":  total,
		"page":   page,
	})
}
