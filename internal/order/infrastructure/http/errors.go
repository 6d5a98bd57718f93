package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmehra2102/tableflow/internal/order/domain"
)

type errorResp struct {
	Code      string     `json:"code"`
	Message   string     `json:"message"`
	Holder    string     `json:"holder,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func statusOf(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindState:
		return http.StatusUnprocessableEntity
	}
	return http.StatusServiceUnavailable
}

func writeError(w http.ResponseWriter, err error) {
	var le *domain.LockedError
	if errors.As(err, &le) {
		exp := le.ExpiresAt
		writeJSON(w, http.StatusLocked, errorResp{
			Code:      domain.ErrTableLocked.Code,
			Message:   le.Error(),
			Holder:    le.Holder,
			ExpiresAt: &exp,
		})
		return
	}
	var de *domain.Error
	if errors.As(err, &de) {
		resp := errorResp{Code: de.Code, Message: de.Message}
		if de.Kind == domain.KindPersist {
			resp.Message = domain.ErrPersistence.Message
		}
		writeJSON(w, statusOf(de.Kind), resp)
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, errorResp{Code: domain.ErrPersistence.Code, Message: domain.ErrPersistence.Message})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResp{Code: domain.ErrInvalidRequest.Code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
