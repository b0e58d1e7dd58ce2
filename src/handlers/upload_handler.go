package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/username/tradeclean/src/logger"
	"github.com/username/tradeclean/src/models"
	"github.com/username/tradeclean/src/parsers"
	"github.com/username/tradeclean/src/security/validation"
	"github.com/username/tradeclean/src/services"
	"github.com/username/tradeclean/src/storage"
	"github.com/username/tradeclean/src/utils"
	"github.com/username/tradeclean/web"
)

// multipartOverhead is the room left above the file limit for the rest of
// the multipart body.
const multipartOverhead = 1 << 20

type UploadHandler struct {
	uploadService services.UploadService
	templates     *template.Template
	maxUploadSize int64
}

func NewUploadHandler(service services.UploadService, templates *template.Template, maxUploadSize int64) *UploadHandler {
	return &UploadHandler{
		uploadService: service,
		templates:     templates,
		maxUploadSize: maxUploadSize,
	}
}

type tableView struct {
	Columns []string
	Rows    [][]string
}

type downloadLink struct {
	Name string
	Href string
}

type displayPage struct {
	FileName     string
	Transactions tableView
	Summary      tableView
	SummaryError string
	Warnings     []parsers.AmountWarning
	Downloads    []downloadLink
}

func (h *UploadHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, web.IndexPage, nil)
}

func (h *UploadHandler) HandleUploadPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, web.UploadPage, map[string]string{
		"MaxUploadSize": humanize.Bytes(uint64(h.maxUploadSize)),
	})
}

// HandleUploadHTML cleans the uploaded file and renders both tables.
// Failures are reported as JSON, like the API.
func (h *UploadHandler) HandleUploadHTML(w http.ResponseWriter, r *http.Request) {
	file, fileName, ok := h.receiveUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	result, err := h.uploadService.ProcessUpload(r.Context(), file, fileName)
	if err != nil {
		log := logger.FromContext(r.Context())
		if errors.Is(err, services.ErrParsingFailed) {
			log.Warn("Upload could not be cleaned", "filename", fileName, "error", err)
			utils.SendJSONError(w, r, "File could not be cleaned.", http.StatusInternalServerError)
		} else {
			log.Error("Internal error processing upload", "filename", fileName, "error", err)
			utils.SendJSONError(w, r, "An error occurred during file upload.", http.StatusInternalServerError)
		}
		return
	}

	h.renderPage(w, r, http.StatusOK, web.DisplayPage, newDisplayPage(result))
}

// HandleUploadAPI runs the same pipeline as HandleUploadHTML and returns the
// UploadResult as JSON.
func (h *UploadHandler) HandleUploadAPI(w http.ResponseWriter, r *http.Request) {
	file, fileName, ok := h.receiveUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	log := logger.FromContext(r.Context())
	result, err := h.uploadService.ProcessUpload(r.Context(), file, fileName)
	if err != nil {
		if errors.Is(err, services.ErrParsingFailed) {
			log.Warn("Upload processing failed due to CSV parsing errors", "filename", fileName, "error", err)
			utils.SendJSONError(w, r, fmt.Sprintf("Error parsing CSV file: %v", err), http.StatusBadRequest)
		} else if errors.Is(err, services.ErrProcessingFailed) {
			log.Warn("Upload processing failed during summary", "filename", fileName, "error", err)
			utils.SendJSONError(w, r, fmt.Sprintf("Error processing transactions in file: %v", err), http.StatusBadRequest)
		} else {
			log.Error("Internal error processing upload", "filename", fileName, "error", err)
			utils.SendJSONError(w, r, "An internal error occurred while processing the file. Please try again later.", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Location", "/api/uploads/"+result.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

func (h *UploadHandler) HandleGetUploadResult(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")
	log := logger.FromContext(r.Context()).With("uploadID", uploadID)

	result, err := h.uploadService.GetUploadResult(r.Context(), uploadID)
	if err != nil {
		if errors.Is(err, services.ErrUploadNotFound) {
			utils.SendJSONError(w, r, "Upload not found", http.StatusNotFound)
			return
		}
		log.Error("Error retrieving upload result", "error", err)
		utils.SendJSONError(w, r, "Error retrieving upload result", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, private")
	currentETag, etagErr := utils.GenerateETag(result)
	if etagErr != nil {
		log.Warn("Proceeding without ETag check due to ETag generation error", "error", etagErr)
	} else {
		quotedETag := fmt.Sprintf("%q", currentETag)
		w.Header().Set("ETag", quotedETag)
		if clientETag := r.Header.Get("If-None-Match"); clientETag != "" && utils.ETagMatches(clientETag, quotedETag) {
			log.Debug("ETag match for upload result", "etag", currentETag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	render.JSON(w, r, result)
}

func (h *UploadHandler) HandleDownloadArtifact(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")
	kind, ok := storage.ParseArtifactKind(chi.URLParam(r, "artifact"))
	if !ok {
		utils.SendJSONError(w, r, "Unknown artifact", http.StatusNotFound)
		return
	}

	artifact, err := h.uploadService.OpenArtifact(r.Context(), uploadID, kind)
	if err != nil {
		if errors.Is(err, services.ErrUploadNotFound) || errors.Is(err, services.ErrArtifactNotFound) {
			utils.SendJSONError(w, r, "Artifact not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Error opening artifact", "uploadID", uploadID, "kind", kind, "error", err)
		utils.SendJSONError(w, r, "Error reading artifact", http.StatusInternalServerError)
		return
	}
	defer artifact.Close()

	w.Header().Set("Content-Type", kind.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", string(kind)))
	if _, err := io.Copy(w, artifact); err != nil {
		logger.FromContext(r.Context()).Error("Error streaming artifact", "uploadID", uploadID, "kind", kind, "error", err)
	}
}

// HandleDeleteFiles removes every stored upload and reports the outcome on
// the status page.
func (h *UploadHandler) HandleDeleteFiles(w http.ResponseWriter, r *http.Request) {
	message := "Deleted files successfully."
	if _, err := h.uploadService.DeleteAllUploads(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("Error during file deletion", "error", err)
		message = "Error cleaning up uploads directory."
	}
	h.renderPage(w, r, http.StatusOK, web.StatusPage, map[string]string{"Message": message})
}

func (h *UploadHandler) HandleDeleteAllUploads(w http.ResponseWriter, r *http.Request) {
	removed, err := h.uploadService.DeleteAllUploads(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("Error during file deletion", "error", err)
		utils.SendJSONError(w, r, "Error cleaning up uploads directory.", http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, map[string]int{"deleted": removed})
}

// receiveUpload extracts and validates the "file" part. On failure it has
// already written the error response.
func (h *UploadHandler) receiveUpload(w http.ResponseWriter, r *http.Request) (multipart.File, string, bool) {
	log := logger.FromContext(r.Context())
	limit := humanize.Bytes(uint64(h.maxUploadSize))

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			log.Warn("Request too large", "error", err, "limit", h.maxUploadSize)
			utils.SendJSONError(w, r, fmt.Sprintf("File too large, max %s", limit), http.StatusRequestEntityTooLarge)
			return nil, "", false
		}
		log.Warn("Failed to parse multipart form", "error", err)
		utils.SendJSONError(w, r, "No file part", http.StatusBadRequest)
		return nil, "", false
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		// A file input submitted without a selection arrives as a plain value.
		if _, present := r.MultipartForm.Value["file"]; present {
			utils.SendJSONError(w, r, "No selected file", http.StatusBadRequest)
		} else {
			utils.SendJSONError(w, r, "No file part", http.StatusBadRequest)
		}
		return nil, "", false
	}

	fileName := filepath.Base(fileHeader.Filename)
	if fileHeader.Filename == "" || fileName == "." || fileName == string(filepath.Separator) {
		file.Close()
		utils.SendJSONError(w, r, "No selected file", http.StatusBadRequest)
		return nil, "", false
	}

	if fileHeader.Size > h.maxUploadSize {
		file.Close()
		log.Warn("Uploaded file header reports size too large", "fileSize", fileHeader.Size, "limit", h.maxUploadSize)
		utils.SendJSONError(w, r, fmt.Sprintf("File too large, max %s", limit), http.StatusRequestEntityTooLarge)
		return nil, "", false
	}

	if err := validation.ValidateFileName(fileName); err != nil {
		file.Close()
		log.Warn("Invalid file name", "filename", fileName, "error", err)
		utils.SendJSONError(w, r, err.Error(), http.StatusBadRequest)
		return nil, "", false
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		file.Close()
		log.Warn("Invalid client-declared file type", "contentType", clientContentType, "error", err)
		utils.SendJSONError(w, r, err.Error(), http.StatusBadRequest)
		return nil, "", false
	}

	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		file.Close()
		log.Warn("Server-side file content validation failed", "filename", fileName, "error", err)
		utils.SendJSONError(w, r, err.Error(), http.StatusBadRequest)
		return nil, "", false
	}

	log.Info("Processing upload request", "filename", fileName, "size", humanize.Bytes(uint64(fileHeader.Size)), "detectedType", detectedContentType)
	return file, fileName, true
}

func (h *UploadHandler) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		logger.FromContext(r.Context()).Error("Failed to render page", "page", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	render.Status(r, status)
	render.HTML(w, r, buf.String())
}

func newDisplayPage(result *services.UploadResult) displayPage {
	page := displayPage{
		FileName:     result.FileName,
		Transactions: tableView{Columns: result.Columns, Rows: result.Transactions},
		SummaryError: result.SummaryError,
		Warnings:     result.Warnings,
	}
	if result.Table != nil {
		page.Transactions = htmlTable(result.Table)
	}

	page.Summary.Columns = models.SummaryHeader
	for _, s := range result.Summary {
		page.Summary.Rows = append(page.Summary.Rows, s.Record())
	}

	for _, kind := range result.Artifacts {
		page.Downloads = append(page.Downloads, downloadLink{
			Name: string(kind),
			Href: fmt.Sprintf("/api/uploads/%s/%s", result.ID, kind),
		})
	}
	return page
}

// htmlTable renders missing amounts as NaN, the way the table is shown in
// notebooks, while the CSV artifacts keep them empty.
func htmlTable(t *models.Table) tableView {
	view := tableView{Columns: t.Schema.Names(), Rows: make([][]string, len(t.Rows))}
	for i, row := range t.Rows {
		rec := make([]string, len(t.Schema))
		for j, col := range t.Schema {
			if col.Kind == models.KindAmount && !row[j].Amount.Valid {
				rec[j] = "NaN"
				continue
			}
			rec[j] = col.Format(row[j])
		}
		view.Rows[i] = rec
	}
	return view
}
