package handler

import (
	"time"

	"github.com/Uvaancovie/nova-prop-backend/internal/api"
	"github.com/Uvaancovie/nova-prop-backend/internal/application"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
)

// Response は成功レスポンスの統一フォーマット
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Count   *int        `json:"count,omitempty"`
	Message string      `json:"message,omitempty"`
}

func ok(data interface{}) Response {
	return Response{Success: true, Data: data}
}

func okList(data interface{}, n int) Response {
	return Response{Success: true, Data: data, Count: &n}
}

type ReservationResponse struct {
	ID               string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	PropertyID       string    `json:"property_id"`
	ClientID         string    `json:"client_id"`
	RealtorID        string    `json:"realtor_id"`
	GuestName        string    `json:"guest_name"`
	GuestEmail       string    `json:"guest_email"`
	GuestPhone       string    `json:"guest_phone,omitempty"`
	PropertyName     string    `json:"property_name"`
	PropertyLocation string    `json:"property_location,omitempty"`
	RealtorName      string    `json:"realtor_name,omitempty"`
	RealtorEmail     string    `json:"realtor_email,omitempty"`
	CheckIn          string    `json:"check_in" example:"2024-03-01"`
	CheckOut         string    `json:"check_out" example:"2024-03-05"`
	Nights           int       `json:"nights" example:"4"`
	Guests           int       `json:"guests" example:"2"`
	TotalAmount      string    `json:"total_amount" example:"1000.00"`
	Status           string    `json:"status" example:"pending"`
	SpecialRequests  string    `json:"special_requests,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CreateReservationResponse は作成結果。請求書は生成できた場合のみ含む
type CreateReservationResponse struct {
	ReservationResponse
	Invoice *application.InvoiceResult `json:"invoice,omitempty"`
}

func toReservationResponse(r *reservation.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:               r.ID,
		PropertyID:       r.PropertyID,
		ClientID:         r.ClientID,
		RealtorID:        r.RealtorID,
		GuestName:        r.GuestName,
		GuestEmail:       r.GuestEmail,
		GuestPhone:       r.GuestPhone,
		PropertyName:     r.PropertyName,
		PropertyLocation: r.PropertyLocation,
		RealtorName:      r.RealtorName,
		RealtorEmail:     r.RealtorEmail,
		CheckIn:          r.CheckIn.Format(api.DateLayout),
		CheckOut:         r.CheckOut.Format(api.DateLayout),
		Nights:           r.Nights(),
		Guests:           r.Guests,
		TotalAmount:      r.TotalAmount.StringFixed(2),
		Status:           string(r.Status),
		SpecialRequests:  r.SpecialRequests,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func toReservationResponses(list []*reservation.Reservation) []ReservationResponse {
	resp := make([]ReservationResponse, len(list))
	for i, r := range list {
		resp[i] = toReservationResponse(r)
	}
	return resp
}
