package models

// RedirectURL ответ биллинга: ссылка на страницу платёжного провайдера.
type RedirectURL struct {
	URL string `json:"url"`
}

// SubscribeRequest тело POST /billing/subscribe.
type SubscribeRequest struct {
	PlanType string `json:"planType" validate:"required"`
}
