// Package middlewarectx содержит middleware локального сервера консоли:
// допуск к защищённым экранам по сессии и роли, учёт текущего экрана
// и ограничение частоты запросов.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/wa-connector-console/internal/http/response"
	"github.com/magabrotheeeer/wa-connector-console/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// User ключ профиля пользователя в контексте.
const User Key = "user"

// Gate проверяет допуск к экрану.
type Gate interface {
	Gate(role models.Role) (*models.UserProfile, error)
}

// RequireSession пропускает запрос только при открытой сессии с подходящей ролью
// и кладёт профиль в контекст. RoleAdmin требует администратора.
func RequireSession(gate Gate, role models.Role, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.RequireSession"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			user, err := gate.Gate(role)
			if err != nil {
				response.Write(w, r, log, err)
				return
			}
			ctx := context.WithValue(r.Context(), User, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFrom достаёт профиль, положенный RequireSession.
func UserFrom(ctx context.Context) (*models.UserProfile, bool) {
	user, ok := ctx.Value(User).(*models.UserProfile)
	return user, ok && user != nil
}

// writeError пишет ошибку без логирования, для отказов самого middleware.
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	render.Status(r, code)
	render.JSON(w, r, response.Error(msg))
}
