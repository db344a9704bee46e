package api

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"docqa/service"
	"docqa/textproc"
	"docqa/types"

	"github.com/gofiber/fiber/v2"
)

type DocumentHandler struct {
	svc       *service.DocumentService
	uploadDir string
	logger    *slog.Logger
}

func NewDocumentHandler(svc *service.DocumentService, uploadDir string, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		svc:       svc,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// HandleUpload accepts a multipart PDF, saves it and runs the ingest
// pipeline. Extraction failure is a 400 (the document row still exists);
// chunk/embed failure is a 201 carrying a processing warning.
func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return NewError(fiber.StatusBadRequest, "file is required")
	}

	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
		return NewError(fiber.StatusBadRequest, "only PDF files are supported")
	}

	path := filepath.Join(h.uploadDir, filepath.Base(fileHeader.Filename))
	if err := c.SaveFile(fileHeader, path); err != nil {
		return fmt.Errorf("save uploaded file: %w", err)
	}
	h.logger.Info("file uploaded", "path", path)

	result, err := h.svc.IngestPDF(c.Context(), path, fileHeader.Filename)
	if err != nil {
		if errors.Is(err, textproc.ErrExtraction) {
			return NewError(fiber.StatusBadRequest, fmt.Sprintf("Error extracting text: %v", err))
		}
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *DocumentHandler) HandleList(c *fiber.Ctx) error {
	docs, err := h.svc.Documents(c.Context())
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []types.Document{}
	}
	return c.JSON(docs)
}

func (h *DocumentHandler) HandleSearch(c *fiber.Ctx) error {
	var params types.SearchParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errs := types.Validate(&params); len(errs) > 0 {
		return NewValidationError(errs)
	}
	if params.Limit == 0 {
		params.Limit = 5
	}

	matches, err := h.svc.Search(c.Context(), params.Query, params.Limit)
	if err != nil {
		return err
	}
	if matches == nil {
		matches = []types.ChunkMatch{}
	}
	return c.JSON(matches)
}

func (h *DocumentHandler) HandleAnswer(c *fiber.Ctx) error {
	var params types.AnswerParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errs := types.Validate(&params); len(errs) > 0 {
		return NewValidationError(errs)
	}

	return c.JSON(h.svc.Answer(c.Context(), params.Query))
}

func (h *DocumentHandler) HandleClearAll(c *fiber.Ctx) error {
	result, err := h.svc.ClearAll(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(result)
}
