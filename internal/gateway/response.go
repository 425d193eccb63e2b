package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
)

// Response 统一响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Code    int         `json:"code,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: data})
}

// statusOf 错误码到HTTP状态码
func statusOf(code xerrors.ErrorCode) int {
	switch code {
	case xerrors.CodeResourceNotFound:
		return http.StatusNotFound
	case xerrors.CodeInvalidToken:
		return http.StatusUnauthorized
	case xerrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case xerrors.CodeDuelConflict, xerrors.CodeStorageConflict, xerrors.CodeAlreadyClaimed:
		return http.StatusConflict
	case xerrors.CodeNotParticipant:
		return http.StatusForbidden
	case xerrors.CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *xerrors.AppError
	if !errors.As(err, &appErr) {
		appErr = xerrors.Wrap(err, xerrors.CodeInternalError, "Internal error")
	}
	message := appErr.Message
	if appErr.Code == xerrors.CodeInternalError {
		message = "Internal error"
	}
	body := Response{Success: false, Message: message, Code: int(appErr.Code)}
	if len(appErr.Metadata) > 0 {
		body.Data = appErr.Metadata
	}
	writeJSON(w, statusOf(appErr.Code), body)
}

// decodeJSON 解析请求体并校验字段
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return xerrors.Wrap(err, xerrors.CodeInvalidParams, "Invalid request body")
	}
	return validateStruct(dst)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return xerrors.Wrap(err, xerrors.CodeInvalidParams, "Invalid request")
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed '%s'", fe.Field(), fe.Tag()))
	}
	return xerrors.New(xerrors.CodeInvalidParams, "Validation failed: "+strings.Join(fields, "; "))
}
