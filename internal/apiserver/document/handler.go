// Package document 请假支撑材料的上传下载接口
//
// 文件存入 MinIO，接口只返回对象 key，
// 请假记录通过 document_key 字段引用。
package document

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"leave-admin/internal/shared/objstore"
)

// maxUploadSize 单文件上传上限 10MB
const maxUploadSize = 10 << 20

// Handler 文档 HTTP 处理器
type Handler struct {
	docs *objstore.Client
}

// NewHandler 创建文档处理器，docs 为 nil 时所有接口返回 501
func NewHandler(docs *objstore.Client) *Handler {
	return &Handler{docs: docs}
}

// RegisterRoutes 注册文档路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents", h.Upload)
	mux.HandleFunc("GET /api/documents/{key}", h.Download)
}

// Upload 上传单个文件（multipart 字段名 file）
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.docs == nil {
		writeError(w, http.StatusNotImplemented, "document storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	key := generateKey(header.Filename)
	contentType := header.Header.Get("Content-Type")

	if err := h.docs.Upload(r.Context(), key, file, header.Size, contentType); err != nil {
		log.Printf("[document] upload error: %v", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	log.Printf("[document] Uploaded %s (%d bytes)", key, header.Size)
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

// Download 按 key 流式下载文件
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	if h.docs == nil {
		writeError(w, http.StatusNotImplemented, "document storage is not configured")
		return
	}

	key := r.PathValue("key")
	if !validKey(key) {
		writeError(w, http.StatusBadRequest, "invalid document key")
		return
	}

	reader, contentType, err := h.docs.Download(r.Context(), key)
	if err != nil {
		log.Printf("[document] download error: %v", err)
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	defer reader.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, reader); err != nil {
		log.Printf("[document] stream error for %s: %v", key, err)
	}
}

// generateKey 生成对象 key，保留原始扩展名
func generateKey(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("doc-%d%s", time.Now().UnixNano(), ext)
}

// validKey 只接受本服务生成的 key，拒绝路径穿越
func validKey(key string) bool {
	return strings.HasPrefix(key, "doc-") && !strings.ContainsAny(key, "/\\")
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
