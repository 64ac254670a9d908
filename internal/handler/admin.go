package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pavelanni/codedrill/internal/catalog"
	"github.com/pavelanni/codedrill/internal/model"
)

func (h *Handler) apiListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.catalog.ListUsers(r.Context(), user(r))
	respond(w, r, http.StatusOK, users, err)
}

func (h *Handler) apiCreateUser(w http.ResponseWriter, r *http.Request) {
	var nu catalog.NewUser
	if err := decodeJSON(w, r, &nu); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.catalog.CreateUser(r.Context(), user(r), nu)
	if err == nil {
		slog.Info("user created via admin", "username", created.Username, "role", created.Role, "by", user(r).Username)
	}
	respond(w, r, http.StatusCreated, created, err)
}

func (h *Handler) apiToggleUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.catalog.ToggleUser(r.Context(), user(r), id)
	respond(w, r, http.StatusOK, u, err)
}

// apiImportBank accepts a YAML or JSON question bank as the multipart
// "file" field. Re-uploading identical content is reported as skipped.
func (h *Handler) apiImportBank(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "templateID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, r, fmt.Errorf("%w: file too large", model.ErrValidation))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: no file uploaded", model.ErrValidation))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	res, err := h.catalog.ImportBank(r.Context(), user(r), id, header.Filename, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("question bank uploaded", "filename", header.Filename, "template_id", id,
		"imported", res.Imported, "skipped", res.Skipped)
	writeJSON(w, http.StatusOK, res)
}
