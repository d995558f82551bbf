// Package models holds the MongoDB documents shared by the services.
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

// Image is a Cloudinary asset reference.
type Image struct {
	PublicID string `bson:"public_id" json:"public_id"`
	URL      string `bson:"url" json:"url"`
}

type User struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Username            string             `bson:"username" json:"username"`
	Email               string             `bson:"email" json:"email"`
	Password            string             `bson:"password" json:"-"`
	Avatar              Image              `bson:"avatar" json:"avatar"`
	Role                string             `bson:"role" json:"role"`
	RefreshToken        string             `bson:"refreshToken,omitempty" json:"-"`
	ResetPasswordToken  string             `bson:"resetPasswordToken,omitempty" json:"-"`
	ResetPasswordExpire *time.Time         `bson:"resetPasswordExpire,omitempty" json:"-"`
	CreatedAt           time.Time          `bson:"createdAt" json:"createdAt"`
}

func (u *User) IsSeller() bool { return u.Role == RoleSeller }

type Review struct {
	ID      primitive.ObjectID `bson:"_id" json:"_id"`
	UserID  primitive.ObjectID `bson:"userId" json:"userId"`
	Name    string             `bson:"name" json:"name"`
	Rating  float64            `bson:"rating" json:"rating"`
	Comment string             `bson:"comment" json:"comment"`
}

type Product struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name         string             `bson:"name" json:"name"`
	Description  string             `bson:"description" json:"description"`
	Price        float64            `bson:"price" json:"price"`
	Category     string             `bson:"category" json:"category"`
	Stock        int                `bson:"stock" json:"stock"`
	Images       []Image            `bson:"images" json:"images"`
	Owner        primitive.ObjectID `bson:"owner" json:"owner"`
	Rating       float64            `bson:"rating" json:"rating"`
	NumOfReviews int                `bson:"numOfReviews" json:"numOfReviews"`
	Reviews      []Review           `bson:"reviews" json:"reviews"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
}

// Order line item statuses.
const (
	StatusProcessing = "Processing"
	StatusShipped    = "Shipped"
	StatusDelivered  = "Delivered"
)

type ShippingInfo struct {
	Address string `bson:"address" json:"address" binding:"required"`
	City    string `bson:"city" json:"city" binding:"required"`
	State   string `bson:"state" json:"state" binding:"required"`
	Country string `bson:"country" json:"country" binding:"required"`
	Pincode string `bson:"pincode" json:"pincode" binding:"required,len=6,numeric"`
	Phone   string `bson:"phone" json:"phone" binding:"required,len=10,numeric"`
}

type OrderItem struct {
	ID          primitive.ObjectID `bson:"_id" json:"_id"`
	Product     primitive.ObjectID `bson:"product" json:"product"`
	Name        string             `bson:"name" json:"name"`
	Price       float64            `bson:"price" json:"price"`
	Quantity    int                `bson:"quantity" json:"quantity"`
	Image       string             `bson:"image" json:"image"`
	OrderStatus string             `bson:"orderStatus" json:"orderStatus"`
	DeliveredAt *time.Time         `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
}

type PaymentInfo struct {
	ID     string `bson:"id" json:"id"`
	Status string `bson:"status" json:"status"`
}

type Order struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	ShippingInfo  ShippingInfo       `bson:"shippingInfo" json:"shippingInfo"`
	OrderItems    []OrderItem        `bson:"orderItems" json:"orderItems"`
	PaymentInfo   PaymentInfo        `bson:"paymentInfo" json:"paymentInfo"`
	ItemsPrice    float64            `bson:"itemsPrice" json:"itemsPrice"`
	TaxPrice      float64            `bson:"taxPrice" json:"taxPrice"`
	ShippingPrice float64            `bson:"shippingPrice" json:"shippingPrice"`
	TotalPrice    float64            `bson:"totalPrice" json:"totalPrice"`
	User          primitive.ObjectID `bson:"user" json:"user"`
	PaidAt        time.Time          `bson:"paidAt" json:"paidAt"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	// Version is bumped on every save and checked before writing.
	Version int `bson:"__v" json:"__v"`
}

// Clone returns a copy whose item slice can be modified independently.
func (o *Order) Clone() *Order {
	c := *o
	c.OrderItems = append([]OrderItem(nil), o.OrderItems...)
	return &c
}
