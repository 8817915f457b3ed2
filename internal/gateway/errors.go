package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind класс ответа бэкенда.
type Kind int

const (
	// KindOther прочие 4xx (409, 429 и т.п.).
	KindOther Kind = iota
	// KindValidation 400/422, ошибки по полям показываются рядом с формой.
	KindValidation
	// KindUnauthenticated 401, единственный класс с глобальным эффектом.
	KindUnauthenticated
	// KindForbidden 403, сессия валидна, но действие запрещено.
	KindForbidden
	// KindNotFound 404.
	KindNotFound
	// KindTransient нет ответа или 5xx.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	default:
		return "other"
	}
}

// ErrSessionExpired получает вызывающий, чей запрос вызвал сброс сессии по 401.
// Ответ такого запроса использовать нельзя.
var ErrSessionExpired = errors.New("session expired")

// Error классифицированная ошибка запроса.
type Error struct {
	Kind    Kind
	Method  string
	Path    string
	Status  int               // 0, если ответа не было
	Message string            // текст ошибки от бэкенда
	Fields  map[string]string // ошибки валидации по полям
	Err     error             // причина: сетевая ошибка или ErrSessionExpired
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Method, e.Path, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		b.WriteString(" [" + strings.Join(parts, ", ") + "]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf возвращает класс ошибки; для ошибок не из шлюза возвращает KindOther и false.
func KindOf(err error) (Kind, bool) {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind, true
	}
	return KindOther, false
}

func is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsUnauthenticated сообщает, что бэкенд ответил 401.
func IsUnauthenticated(err error) bool { return is(err, KindUnauthenticated) }

// IsForbidden сообщает, что бэкенд ответил 403.
func IsForbidden(err error) bool { return is(err, KindForbidden) }

// IsNotFound сообщает, что бэкенд ответил 404.
func IsNotFound(err error) bool { return is(err, KindNotFound) }

// IsValidation сообщает об ошибке валидации (400/422).
func IsValidation(err error) bool { return is(err, KindValidation) }

// IsTransient сообщает о сетевой ошибке или 5xx.
func IsTransient(err error) bool { return is(err, KindTransient) }

// Classify сопоставляет HTTP-статус классу ошибки.
func Classify(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthenticated
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status >= 500:
		return KindTransient
	default:
		return KindOther
	}
}

// errorBody покрывает оба формата ошибок бэкенда:
// {"error": "..."} / {"message": "..."} и errors в виде объекта или массива.
type errorBody struct {
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
}

type fieldError struct {
	Field   string `json:"field"`
	Path    string `json:"path"`
	Param   string `json:"param"`
	Message string `json:"message"`
	Msg     string `json:"msg"`
}

func parseErrorBody(data []byte) (string, map[string]string) {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data)), nil
	}
	msg := body.Error
	if msg == "" {
		msg = body.Message
	}
	if len(body.Errors) == 0 {
		return msg, nil
	}

	fields := map[string]string{}
	var asMap map[string]string
	if err := json.Unmarshal(body.Errors, &asMap); err == nil {
		for k, v := range asMap {
			fields[k] = v
		}
	} else {
		var asList []fieldError
		if err := json.Unmarshal(body.Errors, &asList); err == nil {
			for _, fe := range asList {
				name := firstNonEmpty(fe.Field, fe.Path, fe.Param)
				text := firstNonEmpty(fe.Message, fe.Msg)
				if name != "" {
					fields[name] = text
				}
			}
		}
	}
	if len(fields) == 0 {
		fields = nil
	}
	return msg, fields
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
