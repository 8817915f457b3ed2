// Package response содержит единый формат JSON-ответов локального сервера
// консоли и перевод ошибок шлюза, сессии и опроса в HTTP-статусы.
package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/wa-connector-console/internal/gateway"
	"github.com/magabrotheeeer/wa-connector-console/internal/lib/sl"
	"github.com/magabrotheeeer/wa-connector-console/internal/poller"
	"github.com/magabrotheeeer/wa-connector-console/internal/services/whatsapp"
	"github.com/magabrotheeeer/wa-connector-console/internal/session"
)

// Response описывает стандартную структуру JSON-ответа сервера.
// Fields заполняется для ошибок валидации: поле -> сообщение.
type Response struct {
	Status string            `json:"status"`
	Error  string            `json:"error,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
	Data   any               `json:"data,omitempty"`
}

const (
	StatusOK    = "OK"
	StatusError = "Error"
)

// OK возвращает успешный Response с данными.
func OK(data any) Response {
	return Response{Status: StatusOK, Data: data}
}

// Error возвращает Response с ошибкой.
func Error(msg string) Response {
	return Response{Status: StatusError, Error: msg}
}

// ValidationError возвращает Response с ошибками полей.
func ValidationError(msg string, fields map[string]string) Response {
	if msg == "" {
		msg = "validation failed"
	}
	return Response{Status: StatusError, Error: msg, Fields: fields}
}

// StatusCode переводит ошибку в HTTP-статус ответа сервера консоли.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrForbiddenRole):
		return http.StatusForbidden
	case errors.Is(err, poller.ErrConnectInFlight), errors.Is(err, whatsapp.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, poller.ErrNotConfirmed):
		return http.StatusBadRequest
	case errors.Is(err, poller.ErrStopped):
		return http.StatusGone
	}

	kind, ok := gateway.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case gateway.KindValidation:
		return http.StatusUnprocessableEntity
	case gateway.KindUnauthenticated:
		return http.StatusUnauthorized
	case gateway.KindForbidden:
		return http.StatusForbidden
	case gateway.KindNotFound:
		return http.StatusNotFound
	case gateway.KindTransient:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// FromError формирует тело ответа: сообщение бэкенда и ошибки полей
// передаются как есть, внутренние ошибки скрываются.
func FromError(err error) Response {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		msg := gwErr.Message
		if msg == "" {
			msg = gwErr.Kind.String()
		}
		if gwErr.Kind == gateway.KindValidation {
			return ValidationError(msg, gwErr.Fields)
		}
		return Error(msg)
	}
	if StatusCode(err) == http.StatusInternalServerError {
		return Error("internal error")
	}
	return Error(rootMessage(err))
}

// Write пишет ошибку с подходящим статусом и логирует её.
func Write(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		log.Error("request failed", sl.Err(err))
	} else {
		log.Info("request rejected", slog.Int("status", code), sl.Err(err))
	}
	render.Status(r, code)
	render.JSON(w, r, FromError(err))
}

func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
