package models

// GHLStatus ответ GET /ghl/status.
type GHLStatus struct {
	Connected bool   `json:"connected"`
	CompanyID string `json:"companyId,omitempty"`
	AuthURL   string `json:"authUrl,omitempty"`
}

// Location локация CRM, к которой можно привязать саб-аккаунт.
type Location struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// LinkLocationRequest тело POST /ghl/link-location/:id.
type LinkLocationRequest struct {
	LocationID string `json:"locationId" validate:"required"`
}
