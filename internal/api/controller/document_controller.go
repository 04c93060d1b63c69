package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/bassista/go_coalesce/internal/document"
	"github.com/bassista/go_coalesce/internal/logger"
	"github.com/bassista/go_coalesce/internal/repository"
)

// Autosaver is the scheduler surface consumed by the HTTP layer.
type Autosaver interface {
	OnChange(value any) error
	Flush(ctx context.Context) error
	IsSaving() bool
	LastSavedAt() time.Time
	LastError() error
	Pending() bool
}

// DocumentController handles document-related HTTP endpoints. Every mutation
// feeds the resulting document to the autosave scheduler.
type DocumentController struct {
	store     document.EditableStore
	autosaver Autosaver
	validator *validator.Validate
}

// NewDocumentController creates a controller over the given store and scheduler.
func NewDocumentController(store document.EditableStore, autosaver Autosaver) *DocumentController {
	return &DocumentController{
		store:     store,
		autosaver: autosaver,
		validator: validator.New(),
	}
}

// GetDocument handles GET /document - returns the current document.
func (dc *DocumentController) GetDocument(c *gin.Context) {
	logger.WithComponent("api").Debugf("GET /document handler called")
	doc, err := dc.store.Snapshot()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read document"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// PutDocument handles PUT /document - replaces the document content.
func (dc *DocumentController) PutDocument(c *gin.Context) {
	logger.WithComponent("api").Debugf("PUT /document handler called")
	var doc repository.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	doc.ApplyDefaults()
	if err := dc.validator.Struct(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := dc.store.ReplaceContent(doc)
	if err != nil {
		logger.WithComponent("api").Errorf("replace document: cache error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update document"})
		return
	}

	dc.notifyChange(updated)
	c.JSON(http.StatusOK, updated)
}

// UpsertSection handles POST /document/sections - creates or updates a section.
func (dc *DocumentController) UpsertSection(c *gin.Context) {
	logger.WithComponent("api").Debugf("POST /document/sections handler called")
	var section repository.Section
	if err := c.ShouldBindJSON(&section); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := dc.validator.Struct(&section); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := dc.store.UpsertSection(section)
	if err != nil {
		logger.WithComponent("api").Errorf("upsert section %s: cache error: %v", section.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update section"})
		return
	}

	dc.notifyChange(updated)
	c.JSON(http.StatusOK, updated)
}

// DeleteSection handles DELETE /document/sections/:id - removes a section.
func (dc *DocumentController) DeleteSection(c *gin.Context) {
	id := c.Param("id")
	logger.WithComponent("api").Debugf("DELETE /document/sections/%s handler called", id)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing section id"})
		return
	}

	updated, err := dc.store.RemoveSection(id)
	if err != nil {
		if errors.Is(err, document.ErrSectionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "section not found"})
			return
		}
		logger.WithComponent("api").Errorf("delete section %s: cache error: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete section"})
		return
	}

	dc.notifyChange(updated)
	c.JSON(http.StatusOK, updated)
}

// notifyChange feeds the mutated document to the scheduler. Metadata is
// stripped so the persistence timestamp never counts as a content change.
func (dc *DocumentController) notifyChange(doc repository.Document) {
	if err := dc.autosaver.OnChange(doc.Content()); err != nil {
		logger.WithComponent("api").Errorf("autosave notify failed: %v", err)
	}
}
