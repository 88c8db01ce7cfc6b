package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/TheHyyy/vibe-music/core/room"
)

// apiError 错误响应体
type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// apiResult 统一响应信封：成功 {ok:true,data}，失败 {ok:false,error}
type apiResult struct {
	OK    bool      `json:"ok"`
	Data  any       `json:"data,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&apiResult{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&apiResult{OK: false, Error: &apiError{Message: message}})
}

// writeDomainError 按领域错误选择HTTP状态码
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, room.ErrUnauthorized), errors.Is(err, room.ErrBlacklisted):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, room.ErrMemberNotFound),
		errors.Is(err, room.ErrInvalidPassword),
		errors.Is(err, room.ErrDuplicateSong),
		errors.Is(err, room.ErrQuotaExceeded):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
