package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an Order. The string values are part of
// the wire format and match what the storefront client renders.
type OrderStatus string

const (
	StatusProcessing     OrderStatus = "Processing"
	StatusOutForDelivery OrderStatus = "Out for Delivery"
	StatusDelivered      OrderStatus = "Delivered"
	StatusCancelled      OrderStatus = "Cancelled"
)

// ParseStatus validates a raw status value against the four-member enum.
func ParseStatus(raw string) (OrderStatus, bool) {
	switch OrderStatus(raw) {
	case StatusProcessing, StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return OrderStatus(raw), true
	}
	return "", false
}

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type DeliveryMethod string

const (
	DeliveryMethodDeliver DeliveryMethod = "Deliver"
	DeliveryMethodWalkIn  DeliveryMethod = "Walk-in"
)

type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "Cash on Delivery"
	PaymentGCash          PaymentMethod = "GCash"
	PaymentMaya           PaymentMethod = "Maya"
)

type Product struct {
	ID          string          `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"not null"   json:"name"`
	Description string          `gorm:"not null"   json:"description"`
	Price       decimal.Decimal `gorm:"not null;type:decimal(10,2)" json:"price"`
	ImageID     string          `json:"image_id"`
}

type User struct {
	ID           string `gorm:"primaryKey"      json:"id"`
	Email        string `gorm:"unique;not null" json:"email"`
	PasswordHash string `gorm:"not null"        json:"-"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

// AdminRole is an existence-based capability marker keyed by user id. A row in
// roles_admin grants administrative capability; it carries no other data.
type AdminRole struct {
	UserID    string    `gorm:"primaryKey" json:"user_id"`
	GrantedAt time.Time `gorm:"not null"   json:"granted_at"`
}

func (AdminRole) TableName() string { return "roles_admin" }

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"      json:"id"`
	Token     string `gorm:"unique;not null" json:"token"`
	UserID    string `gorm:"index;not null"  json:"user_id"`
	ExpiresAt int64  `gorm:"not null"        json:"expires_at"`
	Revoked   bool   `gorm:"default:false"   json:"revoked"`
}

// Order is one customer purchase. Shipping fields and totals are immutable
// after creation; only Status changes, and only through the state machine.
type Order struct {
	ID          string          `gorm:"primaryKey"     json:"id"`
	UserID      string          `gorm:"index;not null" json:"user_id"`
	OrderDate   time.Time       `gorm:"index;not null" json:"order_date"`
	TotalAmount decimal.Decimal `gorm:"not null;type:decimal(10,2)" json:"total_amount"`
	Status      OrderStatus     `gorm:"index;not null" json:"status"`

	FirstName string `gorm:"not null" json:"first_name"`
	LastName  string `gorm:"not null" json:"last_name"`
	Address   string `gorm:"not null" json:"address"`
	City      string `gorm:"not null" json:"city"`
	State     string `gorm:"not null" json:"state"`
	ZipCode   string `gorm:"not null" json:"zip_code"`

	DeliveryMethod   DeliveryMethod `gorm:"not null" json:"delivery_method"`
	PaymentMethod    PaymentMethod  `gorm:"not null" json:"payment_method"`
	DeliveryDate     string         `json:"delivery_date,omitempty"`
	DeliveryTimeSlot string         `json:"delivery_time_slot,omitempty"`

	TrackingNumber    string    `gorm:"uniqueIndex;not null" json:"tracking_number"`
	EstimatedDelivery time.Time `gorm:"not null"             json:"estimated_delivery"`
}

// OrderItem is one product line inside an Order. ProductName and UnitPrice are
// point-in-time snapshots, deliberately decoupled from the live catalog so
// receipts stay historically accurate.
type OrderItem struct {
	ID          string          `gorm:"primaryKey"     json:"id"`
	OrderID     string          `gorm:"index;not null" json:"order_id"`
	UserID      string          `gorm:"index;not null" json:"user_id"`
	ProductID   string          `gorm:"not null"       json:"product_id"`
	Quantity    uint            `gorm:"not null;check:quantity>0" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"not null;type:decimal(10,2)" json:"unit_price"`
	ProductName string          `gorm:"not null"       json:"product_name"`
}

// CartItem is one line of a customer's cart as stored in redis. The product is
// embedded so checkout can snapshot name and price without a catalog read.
type CartItem struct {
	Product  Product `json:"product"`
	Quantity uint    `json:"quantity"`
}
