package models

import "time"

// Stats ответ GET /admin/stats.
type Stats struct {
	TotalCustomers       int `json:"totalCustomers"`
	ActiveCustomers      int `json:"activeCustomers"`
	TotalSubAccounts     int `json:"totalSubAccounts"`
	ConnectedSubAccounts int `json:"connectedSubAccounts"`
	PaidSubAccounts      int `json:"paidSubAccounts"`
}

// Customer клиент в админском списке.
type Customer struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Email              string             `json:"email"`
	IsActive           bool               `json:"isActive"`
	HasUnlimitedAccess bool               `json:"hasUnlimitedAccess"`
	PlanType           string             `json:"planType"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
	SubAccountCount    int                `json:"subAccountCount"`
	CreatedAt          time.Time          `json:"createdAt"`
}

// SetAccessRequest тело PUT /admin/customers/:id/access.
type SetAccessRequest struct {
	HasUnlimitedAccess bool `json:"hasUnlimitedAccess"`
}
