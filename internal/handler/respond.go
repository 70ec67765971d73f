// Package handler serves the JSON API of the registry.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/giadinh/internal/validate"
)

const maxBodyBytes = 1 << 20

// Vietnamese messages shared by several handlers.
const (
	msgInvalidJSON = "Dữ liệu gửi lên không hợp lệ"
	msgInvalidID   = "Mã không hợp lệ"
	msgValidation  = "Dữ liệu không hợp lệ"
	msgInternal    = "Lỗi hệ thống, vui lòng thử lại"
)

// Notifier announces changes to connected clients.
type Notifier interface {
	Notify(entity, action string, id int64)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, int64) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// internalError logs err and answers with a generic 500.
func internalError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(r.Context(), msg, "error", err)
	writeError(w, http.StatusInternalServerError, msgInternal)
}

// decodeJSON reads a JSON body into dst and runs struct validation. On
// failure the response has been written and false is returned.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *validate.Validator, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return false
	}
	return validStruct(w, v, dst)
}

func validStruct(w http.ResponseWriter, v *validate.Validator, s any) bool {
	err := v.Struct(s)
	if err == nil {
		return true
	}
	var fe validate.FieldErrors
	if errors.As(err, &fe) {
		writeFieldErrors(w, fe)
		return false
	}
	writeError(w, http.StatusBadRequest, msgValidation)
	return false
}

func writeFieldErrors(w http.ResponseWriter, fe validate.FieldErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  msgValidation,
		"fields": fe,
	})
}

func fieldError(w http.ResponseWriter, field, msg string) {
	writeFieldErrors(w, validate.FieldErrors{field: msg})
}

func parseIDParam(r *http.Request) (int64, error) {
	return parsePathID(r, "id")
}

func parsePathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return id, nil
}

// queryInt parses an optional integer query parameter. A missing value
// yields def; ok is false when the value is present but not a number.
func queryInt(r *http.Request, key string, def int) (n int, ok bool) {
	s := strings.TrimSpace(r.URL.Query().Get(key))
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func queryBool(r *http.Request, key string) (*bool, bool) {
	s := strings.TrimSpace(r.URL.Query().Get(key))
	if s == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, false
	}
	return &b, true
}

// sortParams reads sort and order. order=desc reverses the sort.
func sortParams(r *http.Request) (by string, desc bool) {
	q := r.URL.Query()
	return q.Get("sort"), strings.EqualFold(q.Get("order"), "desc")
}
