package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Uvaancovie/nova-prop-backend/internal/app"
	"github.com/Uvaancovie/nova-prop-backend/internal/config"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/property"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/user"
	"github.com/Uvaancovie/nova-prop-backend/internal/infrastructure/storage"
)

var (
	clientA = reservation.Actor{ID: "client-1", Role: user.RoleClient}
	clientB = reservation.Actor{ID: "client-2", Role: user.RoleClient}
	realtor = reservation.Actor{ID: "realtor-1", Role: user.RoleRealtor}
	admin   = reservation.Actor{ID: "admin-1", Role: user.RoleAdmin}
)

// TestServer はE2Eテスト用のサーバー
type TestServer struct {
	App     *app.App
	Echo    *echo.Echo
	Cleanup func()
}

// NewTestServer は memory ストアで組み立てたテスト用サーバーを作成
// テストごとにストアは独立している
func NewTestServer(t *testing.T, mutate ...func(*config.Config)) *TestServer {
	t.Helper()

	cfg := config.Load()
	cfg.Env = "test"
	cfg.Store.Driver = app.DriverMemory
	cfg.Redis.Enabled = false
	cfg.Invoice.Dir = t.TempDir()
	cfg.Invoice.PDFEnabled = false
	cfg.Invoice.RetryEnabled = false
	cfg.Auth.JWTSecret = ""
	for _, m := range mutate {
		m(cfg)
	}

	a, err := app.New(context.Background(), cfg,
		app.WithRegistry(prometheus.NewRegistry()),
		app.WithClock(func() time.Time { return time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC) }),
		app.WithSeed(seedProperties(), seedUsers()),
		app.WithInvoiceStore(storage.NewMemoryStore()),
	)
	require.NoError(t, err)

	ts := &TestServer{
		App:     a,
		Echo:    a.Router(),
		Cleanup: func() { _ = a.Close() },
	}
	t.Cleanup(ts.Cleanup)
	return ts
}

func seedProperties() []*property.Property {
	return []*property.Property{
		{
			ID: "prop-1", Name: "Seaside Villa", Address: "1 Beach Rd", City: "Cape Town",
			PricePerNight: decimal.NewFromInt(250), MaxGuests: 4, IsAvailable: true,
			RealtorID: "realtor-1", RealtorName: "Rob Realtor", RealtorEmail: "rob@example.com",
		},
		{ID: "prop-closed", Name: "Closed Flat", IsAvailable: false, RealtorID: "realtor-1"},
	}
}

func seedUsers() []*user.User {
	return []*user.User{
		{ID: "client-1", Name: "Jane Guest", Email: "jane@example.com", Role: user.RoleClient},
		{ID: "client-2", Name: "John Guest", Email: "john@example.com", Role: user.RoleClient},
		{ID: "realtor-1", Name: "Rob Realtor", Email: "rob@example.com", Role: user.RoleRealtor},
		{ID: "admin-1", Name: "Ada Admin", Email: "admin@example.com", Role: user.RoleAdmin},
	}
}

// Request はHTTPリクエストを送信し、レスポンスを返す
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	ts.Echo.ServeHTTP(rec, req)
	return rec
}

// As は actor のヘッダーを付けてリクエストを送信する
func (ts *TestServer) As(actor reservation.Actor, method, path string, body interface{}) *httptest.ResponseRecorder {
	return ts.Request(method, path, body, map[string]string{
		"X-User-ID":   actor.ID,
		"X-User-Role": string(actor.Role),
	})
}

// envelope は成功レスポンスとエラーレスポンスの両方を受ける
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Count   *int            `json:"count"`
	Kind    string          `json:"kind"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

type reservationBody struct {
	ID          string `json:"id"`
	PropertyID  string `json:"property_id"`
	ClientID    string `json:"client_id"`
	RealtorID   string `json:"realtor_id"`
	GuestName   string `json:"guest_name"`
	CheckIn     string `json:"check_in"`
	CheckOut    string `json:"check_out"`
	Nights      int    `json:"nights"`
	TotalAmount string `json:"total_amount"`
	Status      string `json:"status"`
	Invoice     *struct {
		Number       string `json:"invoice_number"`
		Filename     string `json:"filename"`
		DownloadPath string `json:"download_path"`
	} `json:"invoice"`
}

func decodeReservation(t *testing.T, rec *httptest.ResponseRecorder) reservationBody {
	t.Helper()
	env := decode(t, rec)
	require.True(t, env.Success, rec.Body.String())
	var body reservationBody
	require.NoError(t, json.Unmarshal(env.Data, &body))
	return body
}

func bookingRequest(propertyID, checkIn, checkOut string, amount float64) map[string]interface{} {
	return map[string]interface{}{
		"property_id":  propertyID,
		"check_in":     checkIn,
		"check_out":    checkOut,
		"guests":       2,
		"total_amount": amount,
	}
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	require.Equal(t, code, rec.Code, rec.Body.String())
}
