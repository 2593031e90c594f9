package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/invoice"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/property"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/user"
	"github.com/Uvaancovie/nova-prop-backend/internal/infrastructure/memory"
	"github.com/Uvaancovie/nova-prop-backend/internal/infrastructure/storage"
)

var (
	clientA = reservation.Actor{ID: "client-1", Role: user.RoleClient}
	clientB = reservation.Actor{ID: "client-2", Role: user.RoleClient}
	realtor = reservation.Actor{ID: "realtor-1", Role: user.RoleRealtor}
	other   = reservation.Actor{ID: "realtor-2", Role: user.RoleRealtor}
	admin   = reservation.Actor{ID: "admin-1", Role: user.RoleAdmin}
)

// fakeClock はテスト用の進められる時計
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	store        *memory.ReservationStore
	properties   *memory.PropertyStore
	users        *memory.UserStore
	sink         *memory.NotificationSink
	blobs        *storage.MemoryStore
	clock        *fakeClock
	reservations *ReservationService
	invoices     *InvoiceService
	calendar     *CalendarService
}

func newFixture(t testing.TB, opts ...ReservationOption) *fixture {
	t.Helper()

	f := &fixture{
		store: memory.NewReservationStore(),
		properties: memory.NewPropertyStore(
			&property.Property{
				ID: "prop-1", Name: "Seaside Villa", Address: "1 Beach Rd", City: "Cape Town",
				PricePerNight: decimal.NewFromInt(250), MaxGuests: 4, IsAvailable: true,
				RealtorID: "realtor-1", RealtorName: "Rob Realtor", RealtorEmail: "rob@example.com",
			},
			&property.Property{
				ID: "prop-2", Name: "Mountain Cabin", City: "Stellenbosch",
				MaxGuests: 2, IsAvailable: true, RealtorID: "realtor-2", RealtorName: "Rita Realtor",
			},
			&property.Property{ID: "prop-closed", Name: "Closed Flat", IsAvailable: false, RealtorID: "realtor-1"},
		),
		users: memory.NewUserStore(
			clientUser(),
			&user.User{ID: "client-2", Name: "John Guest", Email: "john@example.com", Role: user.RoleClient},
			&user.User{ID: "realtor-1", Name: "Rob Realtor", Email: "rob@example.com", Phone: "+27 21 000 0000", Role: user.RoleRealtor},
			&user.User{ID: "realtor-2", Name: "Rita Realtor", Email: "rita@example.com", Role: user.RoleRealtor},
			&user.User{ID: "admin-1", Name: "Ada Admin", Email: "admin@example.com", Role: user.RoleAdmin},
		),
		sink:  memory.NewNotificationSink(),
		blobs: storage.NewMemoryStore(),
		clock: newFakeClock(time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC)),
	}

	renderer, err := invoice.NewHTMLRenderer("PropStream", "R")
	require.NoError(t, err)

	f.invoices = NewInvoiceService(f.store, f.properties, f.users, renderer, f.blobs, nil, f.clock.Now, time.Second)
	base := []ReservationOption{
		WithInvoiceGenerator(f.invoices),
		WithClock(f.clock.Now),
	}
	f.reservations = NewReservationService(
		memory.NewTxManager(), f.store, f.properties, f.users,
		NewNotifier(f.sink, nil, f.clock.Now),
		append(base, opts...)...,
	)
	f.calendar = NewCalendarService(f.store, nil, time.Minute, time.Second, f.clock.Now)
	return f
}

func clientUser() *user.User {
	return &user.User{ID: "client-1", Name: "Jane Guest", Email: "jane@example.com", Phone: "+27 82 000 0001", Role: user.RoleClient}
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func (f *fixture) request(actor reservation.Actor, propertyID, in, out string, amount int64) CreateReservationInput {
	return CreateReservationInput{
		Actor:       actor,
		PropertyID:  propertyID,
		CheckIn:     date(in),
		CheckOut:    date(out),
		Guests:      2,
		TotalAmount: decimal.NewFromInt(amount),
	}
}

func (f *fixture) create(t testing.TB, actor reservation.Actor, propertyID, in, out string) *reservation.Reservation {
	t.Helper()
	res, err := f.reservations.CreateReservation(context.Background(), f.request(actor, propertyID, in, out, 1000))
	require.NoError(t, err)
	return res.Reservation
}
