package models

import "time"

// SubAccount саб-аккаунт клиента: отдельный номер WhatsApp со своей сессией и оплатой.
type SubAccount struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	PhoneNumber     string           `json:"phoneNumber,omitempty"`
	Status          ConnectionStatus `json:"status"`
	IsActive        bool             `json:"isActive"`
	IsPaid          bool             `json:"isPaid"`
	GHLLocationID   string           `json:"ghlLocationId,omitempty"`
	GHLLocationName string           `json:"ghlLocationName,omitempty"`
	OwnerID         string           `json:"userId,omitempty"`
	OwnerEmail      string           `json:"userEmail,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// CreateSubAccountRequest тело POST /sub-accounts.
type CreateSubAccountRequest struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
}

// UpdateSubAccountRequest тело PUT /sub-accounts/:id.
type UpdateSubAccountRequest struct {
	Name        string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Description string `json:"description,omitempty" validate:"omitempty,max=500"`
}

// SetPaymentRequest тело PUT /admin/sub-accounts/:id/payment.
type SetPaymentRequest struct {
	IsPaid bool `json:"isPaid"`
}
