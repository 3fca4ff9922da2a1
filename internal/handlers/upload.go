package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"viralclip-backend/internal/apperr"
	"viralclip-backend/internal/middleware"
	"viralclip-backend/internal/models"
	"viralclip-backend/internal/upload"
)

// UploadHandler exposes the Upload Assembler's four operations over HTTP
// (spec §4.6): init, chunk, complete, abort.
type UploadHandler struct {
	assembler *upload.Assembler
}

func NewUploadHandler(assembler *upload.Assembler) *UploadHandler {
	return &UploadHandler{assembler: assembler}
}

func (h *UploadHandler) Init(c *gin.Context) {
	principalID := middleware.PrincipalFrom(c)

	var req models.InitUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidParameters, "decode init upload request", err))
		return
	}

	session, err := h.assembler.Init(principalID, req.Filename, req.Size, req.ContentType, req.ChunkSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.InitUploadResponse{
		UploadID:    session.ID,
		ChunkSize:   session.ChunkSize,
		TotalChunks: session.TotalChunks,
		ExpiresAt:   session.ExpiresAt,
	})
}

// Chunk accepts a multipart form with fields chunk_number (integer) and
// chunk (binary), per spec §6.1's one documented non-JSON body.
func (h *UploadHandler) Chunk(c *gin.Context) {
	uploadID := c.Param("id")

	chunkNumber, err := strconv.Atoi(c.PostForm("chunk_number"))
	if err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidParameters, "parse chunk_number", err))
		return
	}

	fileHeader, err := c.FormFile("chunk")
	if err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidParameters, "read chunk file field", err))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidParameters, "open chunk file field", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidParameters, "read chunk body", err))
		return
	}

	if err := h.assembler.WriteChunk(c.Request.Context(), uploadID, chunkNumber, data); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

func (h *UploadHandler) Complete(c *gin.Context) {
	uploadID := c.Param("id")
	principalID := middleware.PrincipalFrom(c)

	blobID, err := h.assembler.Complete(c.Request.Context(), uploadID, principalID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.CompleteUploadResponse{BlobID: blobID})
}

func (h *UploadHandler) Abort(c *gin.Context) {
	uploadID := c.Param("id")

	if err := h.assembler.Abort(c.Request.Context(), uploadID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusOK)
}
