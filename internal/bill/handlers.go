package bill

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/billscan/internal/intake"
	"github.com/zombor/billscan/internal/scanning"
)

// 50MB to handle high-resolution phone photos; the pipeline applies its own, smaller limit
const defaultMaxUpload = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// errorStatus maps service errors onto HTTP status codes
func errorStatus(err error) int {
	var vErr *intake.ValidationError
	switch {
	case errors.As(err, &vErr):
		if vErr.Field == "size" {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrFileNotFound):
		return http.StatusNotFound
	case IsUnavailable(err):
		return http.StatusServiceUnavailable
	case scanning.IsRecognitionError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// detectContentType prefers the declared part type, then the extension, then sniffing
func detectContentType(declared, filename string, data []byte) string {
	contentType := intake.NormalizeContentType(declared)
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".webp":
		return "image/webp"
	}

	if intake.IsHEIC(data, "") {
		return "image/heic"
	}
	return intake.NormalizeContentType(http.DetectContentType(data))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"breaker": s.service.BreakerState().String(),
	})
}

// handleListBills returns a list of all bills
func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	bills, err := s.service.ListBills()
	if err != nil {
		s.log.Error().Err(err).Msg("Error listing bills")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := writeJSON(w, http.StatusOK, bills); err != nil {
		s.log.Error().Err(err).Msg("Error encoding response")
	}
}

// handleUploadBill handles bill upload
func (s *Server) handleUploadBill(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		s.log.Error().Err(err).Msg("Error parsing multipart form")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Please compress or resize your image.")
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		s.log.Error().Err(err).Msg("Error getting file from form")
		msg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			msg = "No file was selected. Please choose a file to upload."
		}
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		s.log.Error().Err(err).Str("filename", header.Filename).Msg("Error reading file data")
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename, data)

	bill, err := s.service.ScanBill(r.Context(), header.Filename, data, contentType)
	if err != nil {
		s.log.Error().Err(err).Str("filename", header.Filename).Msg("Error processing bill")
		writeError(w, errorStatus(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusCreated, bill); err != nil {
		s.log.Error().Err(err).Msg("Error encoding response")
	}
}

// handleGetBill returns a single bill
func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := s.service.GetBill(r.PathValue("id"))
	if err != nil {
		writeError(w, errorStatus(err), "Bill not found")
		return
	}

	if err := writeJSON(w, http.StatusOK, bill); err != nil {
		s.log.Error().Err(err).Msg("Error encoding response")
	}
}

// handleUpdateBill applies manual corrections
func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	var correction Correction
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&correction); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	bill, err := s.service.UpdateBill(r.PathValue("id"), correction)
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			s.log.Error().Err(err).Msg("Error updating bill")
		}
		writeError(w, status, err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, bill); err != nil {
		s.log.Error().Err(err).Msg("Error encoding response")
	}
}

// handleGetBillFile returns the uploaded file for a bill
func (s *Server) handleGetBillFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetBillFile(r.PathValue("id"))
	if err != nil {
		status := errorStatus(err)
		if status != http.StatusNotFound {
			s.log.Error().Err(err).Msg("Error reading bill file")
			writeError(w, status, "Error reading file")
			return
		}
		writeError(w, status, "File not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteBill deletes a bill
func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteBill(r.PathValue("id")); err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			s.log.Error().Err(err).Msg("Error deleting bill")
		}
		writeError(w, status, "Error deleting bill")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
