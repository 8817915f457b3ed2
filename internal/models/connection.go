package models

import "time"

// ConnectionStatus статус подключения WhatsApp саб-аккаунта.
// Значение хранится как пришло от бэкенда, даже если оно неизвестно.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusQRReady      ConnectionStatus = "qr_ready"
	StatusConnected    ConnectionStatus = "connected"
)

// Known сообщает, входит ли статус в допустимый набор.
func (s ConnectionStatus) Known() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusQRReady, StatusConnected:
		return true
	}
	return false
}

// Effective возвращает статус для отрисовки: неизвестное значение считается disconnected.
func (s ConnectionStatus) Effective() ConnectionStatus {
	if s.Known() {
		return s
	}
	return StatusDisconnected
}

// ConnectionState ответ GET /whatsapp/:id/status.
type ConnectionState struct {
	Status      ConnectionStatus `json:"status"`
	QRCode      string           `json:"qrCode,omitempty"`
	PhoneNumber string           `json:"phoneNumber,omitempty"`
}

// ConnectionView состояние, безопасное для отрисовки.
// QR показывается только в qr_ready, номер только в connected.
type ConnectionView struct {
	Status      ConnectionStatus `json:"status"`
	Raw         string           `json:"raw"`
	QRCode      string           `json:"qrCode,omitempty"`
	PhoneNumber string           `json:"phoneNumber,omitempty"`
}

// View сворачивает состояние в представление для UI.
func (c ConnectionState) View() ConnectionView {
	v := ConnectionView{
		Status: c.Status.Effective(),
		Raw:    string(c.Status),
	}
	switch v.Status {
	case StatusQRReady:
		v.QRCode = c.QRCode
	case StatusConnected:
		v.PhoneNumber = c.PhoneNumber
	}
	return v
}

// SendMessageRequest тело POST /whatsapp/:id/send.
type SendMessageRequest struct {
	To      string `json:"to" validate:"required,min=5,max=20"`
	Message string `json:"message" validate:"required,max=4096"`
}

// StatusChange событие смены статуса подключения, публикуется в брокер.
type StatusChange struct {
	SubAccountID string           `json:"subAccountId"`
	From         ConnectionStatus `json:"from"`
	To           ConnectionStatus `json:"to"`
	PhoneNumber  string           `json:"phoneNumber,omitempty"`
	At           time.Time        `json:"at"`
}
