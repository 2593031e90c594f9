package handler

import (
	"context"

	"github.com/Uvaancovie/nova-prop-backend/internal/application"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
)

// ReservationServiceInterface は予約サービスのインターフェース
type ReservationServiceInterface interface {
	CreateReservation(ctx context.Context, input application.CreateReservationInput) (*application.CreateReservationResult, error)
	GetReservation(ctx context.Context, actor reservation.Actor, id string) (*reservation.Reservation, error)
	ListReservations(ctx context.Context, input application.ListReservationsInput) ([]*reservation.Reservation, error)
	UpdateReservation(ctx context.Context, input application.UpdateReservationInput) (*reservation.Reservation, error)
	DeleteReservation(ctx context.Context, actor reservation.Actor, id string) error
}

// CalendarServiceInterface はカレンダーサービスのインターフェース
type CalendarServiceInterface interface {
	ListEvents(ctx context.Context, actor reservation.Actor, q application.CalendarQuery) ([]application.CalendarEvent, error)
}

// InvoiceServiceInterface は請求書サービスのインターフェース
type InvoiceServiceInterface interface {
	GenerateInvoice(ctx context.Context, actor reservation.Actor, reservationID string) (*application.InvoiceResult, error)
	DownloadInvoice(ctx context.Context, actor reservation.Actor, filename string) (*application.InvoiceDownload, error)
}

var (
	_ ReservationServiceInterface = (*application.ReservationService)(nil)
	_ CalendarServiceInterface    = (*application.CalendarService)(nil)
	_ InvoiceServiceInterface     = (*application.InvoiceService)(nil)
)
