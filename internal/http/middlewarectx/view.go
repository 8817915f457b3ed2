package middlewarectx

import (
	"net/http"

	"github.com/magabrotheeeer/wa-connector-console/internal/view"
)

// Navigator часть навигатора, которую двигает сервер.
type Navigator interface {
	Current() view.Name
	Enter(name view.Name)
	Restore(from, prev view.Name) bool
}

// EnterView отмечает экран name текущим перед обработкой запроса, чтобы
// шлюз знал, публичный ли экран инициировал вызов. Публичный экран живёт
// только на время вызова: если обработчик сам не увёл консоль дальше
// (успешный вход), возвращается прежний экран.
func EnterView(nav Navigator, name view.Name) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			prev := nav.Current()
			nav.Enter(name)
			next.ServeHTTP(w, r)
			if name.Public() && prev != name {
				nav.Restore(name, prev)
			}
		})
	}
}
