package api

import (
	"net/http"

	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/response"
	"github.com/dtorcivia/trainercal/internal/util"
)

// ListStudents returns the trainer's roster.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.store.ListStudents(r.Context())
	if err != nil {
		util.Error("Failed to list students", "error", err)
		writeStoreError(w, err, "students")
		return
	}
	if students == nil {
		students = []contract.Student{}
	}
	response.JSON(w, http.StatusOK, contract.StudentsResponse{Students: students})
}

// CreateStudent adds a student to the roster.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var in contract.StudentInput
	if !decodeJSON(w, r, &in) {
		return
	}
	st, err := h.store.CreateStudent(r.Context(), in)
	if err != nil {
		writeStoreError(w, err, "student")
		return
	}
	response.JSON(w, http.StatusCreated, st)
}
