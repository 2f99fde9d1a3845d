package controllers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fastdiary/fastdiary/middleware"
	"github.com/fastdiary/fastdiary/models"
	"github.com/fastdiary/fastdiary/services"
	"github.com/fastdiary/fastdiary/utils"
)

// EntryController serves the diary entry pages.
type EntryController struct {
	diary   *services.DiaryService
	uploads *services.UploadService
}

// NewEntryController returns an EntryController.
func NewEntryController(diary *services.DiaryService, uploads *services.UploadService) *EntryController {
	return &EntryController{diary: diary, uploads: uploads}
}

// List shows every entry, newest first.
func (e *EntryController) List(ctx *gin.Context) {
	entries, err := e.diary.ListEntries(false)
	if err != nil {
		serverError(ctx, "list entries failed", err)
		return
	}
	render(ctx, http.StatusOK, "entries.html", gin.H{
		"Title":   "Entries",
		"Entries": entries,
	})
}

// View shows one entry with its photos.
func (e *EntryController) View(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	entry, err := e.diary.GetEntry(id)
	if err != nil {
		handleLookupError(ctx, "load entry failed", err)
		return
	}
	render(ctx, http.StatusOK, "entry_view.html", gin.H{
		"Title": entry.When.Format("02 Jan 2006"),
		"Entry": entry,
	})
}

// loadExisting resolves the entry being edited. For /entry/new it returns nil and ok.
func (e *EntryController) loadExisting(ctx *gin.Context) (*models.Entry, bool) {
	if ctx.Param("id") == "" {
		return nil, true
	}
	id, ok := idParam(ctx, "id")
	if !ok {
		return nil, false
	}
	entry, err := e.diary.GetEntry(id)
	if err != nil {
		handleLookupError(ctx, "load entry failed", err)
		return nil, false
	}
	return entry, true
}

// Form shows the create or edit form.
func (e *EntryController) Form(ctx *gin.Context) {
	entry, ok := e.loadExisting(ctx)
	if !ok {
		return
	}
	title := "New entry"
	if entry != nil {
		title = "Edit entry"
	}
	render(ctx, http.StatusOK, "entry_form.html", gin.H{
		"Title": title,
		"Entry": entry,
		"Today": e.diary.Today(),
	})
}

// Save creates or updates an entry from the submitted form and stores attached photos.
func (e *EntryController) Save(ctx *gin.Context) {
	entry, ok := e.loadExisting(ctx)
	if !ok {
		return
	}

	files, err := photoFiles(ctx)
	if err != nil {
		if middleware.IsTooLarge(err) {
			middleware.TooLarge(ctx)
			return
		}
		logger(ctx).Warn("unreadable entry form", zap.Error(err))
		flash(ctx, utils.FlashError, "The form could not be read.")
		redirect(ctx, ctx.Request.URL.Path)
		return
	}

	in, err := services.ParseEntryForm(ctx.PostForm, e.diary.Now())
	if err != nil {
		var fe *services.FormError
		if errors.As(err, &fe) {
			flash(ctx, utils.FlashError, fe.Message)
			redirect(ctx, ctx.Request.URL.Path)
			return
		}
		serverError(ctx, "parse entry form failed", err)
		return
	}

	saved, err := e.diary.SaveEntry(in, entry)
	if err != nil {
		serverError(ctx, "save entry failed", err)
		return
	}

	names, warnings, err := e.uploads.SaveUploads(files)
	for _, w := range warnings {
		flash(ctx, utils.FlashError, w)
	}
	if err != nil {
		logger(ctx).Error("storing photos failed", zap.Uint("entry_id", saved.ID), zap.Error(err))
		flash(ctx, utils.FlashError, "Some photos could not be stored.")
	}
	if _, err := e.diary.AddPhotos(saved.ID, names); err != nil {
		e.uploads.RemoveFiles(names...)
		serverError(ctx, "recording photos failed", err)
		return
	}

	flash(ctx, utils.FlashSuccess, "Entry saved.")
	redirect(ctx, fmt.Sprintf("/entry/%d", saved.ID))
}

// Delete removes an entry, its photo rows and, best effort, their files.
func (e *EntryController) Delete(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	names, err := e.diary.DeleteEntry(id)
	if err != nil {
		handleLookupError(ctx, "delete entry failed", err)
		return
	}
	e.uploads.RemoveFiles(names...)
	flash(ctx, utils.FlashSuccess, "Entry deleted.")
	redirect(ctx, "/entries")
}

// DeletePhoto removes one photo and returns to its entry.
func (e *EntryController) DeletePhoto(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	photo, err := e.diary.DeletePhoto(id)
	if err != nil {
		handleLookupError(ctx, "delete photo failed", err)
		return
	}
	e.uploads.RemoveFiles(photo.Filename)
	flash(ctx, utils.FlashSuccess, "Photo removed.")
	redirect(ctx, fmt.Sprintf("/entry/%d", photo.EntryID))
}

// photoFiles parses the request body and returns the files of the "photos" field.
func photoFiles(ctx *gin.Context) ([]*multipart.FileHeader, error) {
	if !strings.HasPrefix(ctx.ContentType(), "multipart/") {
		return nil, ctx.Request.ParseForm()
	}
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, err
	}
	return form.File["photos"], nil
}
