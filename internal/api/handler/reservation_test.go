package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Uvaancovie/nova-prop-backend/internal/api"
	"github.com/Uvaancovie/nova-prop-backend/internal/api/middleware"
	"github.com/Uvaancovie/nova-prop-backend/internal/application"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/user"
)

// MockReservationService はReservationServiceInterfaceのモック
type MockReservationService struct {
	mock.Mock
}

func (m *MockReservationService) CreateReservation(ctx context.Context, input application.CreateReservationInput) (*application.CreateReservationResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.CreateReservationResult), args.Error(1)
}

func (m *MockReservationService) GetReservation(ctx context.Context, actor reservation.Actor, id string) (*reservation.Reservation, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) ListReservations(ctx context.Context, input application.ListReservationsInput) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) UpdateReservation(ctx context.Context, input application.UpdateReservationInput) (*reservation.Reservation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) DeleteReservation(ctx context.Context, actor reservation.Actor, id string) error {
	args := m.Called(ctx, actor, id)
	return args.Error(0)
}

// MockCalendarService はCalendarServiceInterfaceのモック
type MockCalendarService struct {
	mock.Mock
}

func (m *MockCalendarService) ListEvents(ctx context.Context, actor reservation.Actor, q application.CalendarQuery) ([]application.CalendarEvent, error) {
	args := m.Called(ctx, actor, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]application.CalendarEvent), args.Error(1)
}

var (
	client  = reservation.Actor{ID: "client-1", Role: user.RoleClient}
	realtor = reservation.Actor{ID: "realtor-1", Role: user.RoleRealtor}
	admin   = reservation.Actor{ID: "admin-1", Role: user.RoleAdmin}
)

func date(s string) time.Time {
	t, err := api.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleReservation() *reservation.Reservation {
	now := time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC)
	return &reservation.Reservation{
		ID:           "res-123",
		PropertyID:   "prop-1",
		ClientID:     client.ID,
		RealtorID:    realtor.ID,
		GuestName:    "Jane Guest",
		GuestEmail:   "jane@example.com",
		PropertyName: "Seaside Villa",
		CheckIn:      date("2024-03-01"),
		CheckOut:     date("2024-03-05"),
		Guests:       2,
		TotalAmount:  decimal.NewFromInt(1000),
		Status:       reservation.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newReservationEcho(rs *MockReservationService, cs *MockCalendarService) *echo.Echo {
	e := NewTestEcho()
	h := NewReservationHandler(rs, cs)
	e.POST("/reservations", h.Create)
	e.GET("/reservations", h.List)
	e.GET("/reservations/calendar", h.Calendar)
	e.GET("/reservations/:id", h.GetByID)
	e.PUT("/reservations/:id", h.Update)
	e.DELETE("/reservations/:id", h.Delete)
	return e
}

func do(e *echo.Echo, method, path, body string, actor reservation.Actor) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if actor.ID != "" {
		req.Header.Set(middleware.HeaderUserID, actor.ID)
		req.Header.Set(middleware.HeaderUserRole, string(actor.Role))
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestReservationHandler_Create(t *testing.T) {
	body := `{
		"property_id": "prop-1",
		"check_in": "2024-03-01",
		"check_out": "2024-03-05",
		"guests": 2,
		"total_amount": 1000,
		"special_requests": "late arrival"
	}`

	t.Run("正常に予約を作成できる", func(t *testing.T) {
		rs := new(MockReservationService)
		want := application.CreateReservationInput{
			Actor:           client,
			PropertyID:      "prop-1",
			CheckIn:         date("2024-03-01"),
			CheckOut:        date("2024-03-05"),
			Guests:          2,
			TotalAmount:     decimal.NewFromInt(1000),
			SpecialRequests: "late arrival",
		}
		rs.On("CreateReservation", mock.Anything, mock.MatchedBy(func(in application.CreateReservationInput) bool {
			return in.Actor == want.Actor && in.PropertyID == want.PropertyID &&
				in.CheckIn.Equal(want.CheckIn) && in.CheckOut.Equal(want.CheckOut) &&
				in.Guests == want.Guests && in.TotalAmount.Equal(want.TotalAmount) &&
				in.SpecialRequests == want.SpecialRequests
		})).Return(&application.CreateReservationResult{
			Reservation: sampleReservation(),
			Invoice:     &application.InvoiceResult{Number: "INV-RES-123", Filename: "invoice-res-123.html", DownloadPath: "/api/v1/invoices/download/invoice-res-123.html"},
		}, nil)

		rec := do(newReservationEcho(rs, nil), http.MethodPost, "/reservations", body, client)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp struct {
			Success bool                      `json:"success"`
			Data    CreateReservationResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "res-123", resp.Data.ID)
		assert.Equal(t, "pending", resp.Data.Status)
		assert.Equal(t, "2024-03-01", resp.Data.CheckIn)
		assert.Equal(t, 4, resp.Data.Nights)
		assert.Equal(t, "1000.00", resp.Data.TotalAmount)
		require.NotNil(t, resp.Data.Invoice)
		assert.Equal(t, "invoice-res-123.html", resp.Data.Invoice.Filename)
		rs.AssertExpectations(t)
	})

	t.Run("請求書がなくても作成は成功する", func(t *testing.T) {
		rs := new(MockReservationService)
		rs.On("CreateReservation", mock.Anything, mock.Anything).
			Return(&application.CreateReservationResult{Reservation: sampleReservation()}, nil)

		rec := do(newReservationEcho(rs, nil), http.MethodPost, "/reservations", body, client)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.NotContains(t, rec.Body.String(), `"invoice"`)
	})

	t.Run("重複は409", func(t *testing.T) {
		rs := new(MockReservationService)
		rs.On("CreateReservation", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: 既存予約 res-1", reservation.ErrConflict))

		rec := do(newReservationEcho(rs, nil), http.MethodPost, "/reservations", body, client)

		assert.Equal(t, http.StatusConflict, rec.Code)
		resp := decodeError(t, rec)
		assert.False(t, resp.Success)
		assert.Equal(t, "ConflictError", resp.Kind)
		assert.Contains(t, resp.Error, "res-1")
	})

	t.Run("主体なしは401", func(t *testing.T) {
		rs := new(MockReservationService)
		rs.On("CreateReservation", mock.Anything, mock.MatchedBy(func(in application.CreateReservationInput) bool {
			return in.Actor.ID == ""
		})).Return(nil, reservation.ErrUnauthenticated)

		rec := do(newReservationEcho(rs, nil), http.MethodPost, "/reservations", body, reservation.Actor{})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	tests := []struct {
		name string
		body string
	}{
		{"JSON 不正", `{"property_id": `},
		{"物件ID なし", `{"check_in": "2024-03-01", "check_out": "2024-03-05", "guests": 1}`},
		{"日付形式不正", `{"property_id": "p", "check_in": "03/01/2024", "check_out": "2024-03-05", "guests": 1}`},
		{"人数なし", `{"property_id": "p", "check_in": "2024-03-01", "check_out": "2024-03-05"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := new(MockReservationService)
			rec := do(newReservationEcho(rs, nil), http.MethodPost, "/reservations", tt.body, client)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			rs.AssertNotCalled(t, "CreateReservation", mock.Anything, mock.Anything)
		})
	}
}

func TestReservationHandler_List(t *testing.T) {
	t.Run("クエリをサービスに渡す", func(t *testing.T) {
		rs := new(MockReservationService)
		rs.On("ListReservations", mock.Anything, application.ListReservationsInput{
			Actor:      realtor,
			PropertyID: "prop-1",
			Statuses:   []reservation.Status{reservation.StatusPending, reservation.StatusConfirmed},
			Limit:      10,
			Offset:     5,
		}).Return([]*reservation.Reservation{sampleReservation()}, nil)

		rec := do(newReservationEcho(rs, nil), http.MethodGet,
			"/reservations?property_id=prop-1&status=pending,Confirmed&limit=10&offset=5", "", realtor)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Success bool                  `json:"success"`
			Count   int                   `json:"count"`
			Data    []ReservationResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, "Jane Guest", resp.Data[0].GuestName)
		rs.AssertExpectations(t)
	})

	t.Run("空の一覧", func(t *testing.T) {
		rs := new(MockReservationService)
		rs.On("ListReservations", mock.Anything, mock.Anything).Return([]*reservation.Reservation{}, nil)

		rec := do(newReservationEcho(rs, nil), http.MethodGet, "/reservations", "", client)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":0`)
	})

	rejections := []struct {
		name  string
		query string
	}{
		{"不明な状態", "?status=archived"},
		{"limit 不正", "?limit=abc"},
		{"offset 負数", "?offset=-1"},
	}
	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			rs := new(MockReservationService)
			rec := do(newReservationEcho(rs, nil), http.MethodGet, "/reservations"+tt.query, "", client)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			rs.AssertNotCalled(t, "ListReservations", mock.Anything, mock.Anything)
		})
	}
}

func TestReservationHandler_GetByID(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"取得できる", nil, http.StatusOK},
		{"存在しない", reservation.ErrReservationNotFound, http.StatusNotFound},
		{"他人の予約", reservation.ErrUnauthorized, http.StatusForbidden},
		{"ストレージ障害", reservation.ErrStorageFailure, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := new(MockReservationService)
			if tt.err != nil {
				rs.On("GetReservation", mock.Anything, client, "res-123").Return(nil, tt.err)
			} else {
				rs.On("GetReservation", mock.Anything, client, "res-123").Return(sampleReservation(), nil)
			}

			rec := do(newReservationEcho(rs, nil), http.MethodGet, "/reservations/res-123", "", client)

			assert.Equal(t, tt.wantCode, rec.Code)
			rs.AssertExpectations(t)
		})
	}
}

func TestReservationHandler_Update(t *testing.T) {
	t.Run("状態遷移", func(t *testing.T) {
		rs := new(MockReservationService)
		confirmed := sampleReservation()
		confirmed.Status = reservation.StatusConfirmed
		rs.On("UpdateReservation", mock.Anything, mock.MatchedBy(func(in application.UpdateReservationInput) bool {
			return in.Actor == realtor && in.ID == "res-123" &&
				in.Status != nil && *in.Status == reservation.StatusConfirmed && in.Details.IsEmpty()
		})).Return(confirmed, nil)

		rec := do(newReservationEcho(rs, nil), http.MethodPut, "/reservations/res-123", `{"status": "confirmed"}`, realtor)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"confirmed"`)
		rs.AssertExpectations(t)
	})

	t.Run("状態以外の項目", func(t *testing.T) {
		rs := new(MockReservationService)
		rs.On("UpdateReservation", mock.Anything, mock.MatchedBy(func(in application.UpdateReservationInput) bool {
			return in.Status == nil &&
				in.Details.CheckOut != nil && in.Details.CheckOut.Equal(date("2024-03-06")) &&
				in.Details.Guests != nil && *in.Details.Guests == 3 &&
				in.Details.CheckIn == nil && in.Details.SpecialRequests == nil
		})).Return(sampleReservation(), nil)

		rec := do(newReservationEcho(rs, nil), http.MethodPut, "/reservations/res-123",
			`{"check_out": "2024-03-06", "guests": 3}`, client)

		assert.Equal(t, http.StatusOK, rec.Code)
		rs.AssertExpectations(t)
	})

	serviceErrors := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"許可されていない遷移", reservation.ErrInvalidTransition, http.StatusBadRequest, "InvalidTransition"},
		{"権限なし", reservation.ErrUnauthorized, http.StatusForbidden, "Unauthorized"},
		{"期間が重複", reservation.ErrConflict, http.StatusConflict, "ConflictError"},
	}
	for _, tt := range serviceErrors {
		t.Run(tt.name, func(t *testing.T) {
			rs := new(MockReservationService)
			rs.On("UpdateReservation", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := do(newReservationEcho(rs, nil), http.MethodPut, "/reservations/res-123", `{"status": "completed"}`, client)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantKind, decodeError(t, rec).Kind)
		})
	}

	t.Run("不明な状態は呼び出さない", func(t *testing.T) {
		rs := new(MockReservationService)
		rec := do(newReservationEcho(rs, nil), http.MethodPut, "/reservations/res-123", `{"status": "archived"}`, admin)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rs.AssertNotCalled(t, "UpdateReservation", mock.Anything, mock.Anything)
	})
}

func TestReservationHandler_Delete(t *testing.T) {
	t.Run("管理者は削除できる", func(t *testing.T) {
		rs := new(MockReservationService)
		rs.On("DeleteReservation", mock.Anything, admin, "res-123").Return(nil)

		rec := do(newReservationEcho(rs, nil), http.MethodDelete, "/reservations/res-123", "", admin)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"success":true`)
	})

	t.Run("管理者以外は403", func(t *testing.T) {
		rs := new(MockReservationService)
		rs.On("DeleteReservation", mock.Anything, client, "res-123").Return(reservation.ErrUnauthorized)

		rec := do(newReservationEcho(rs, nil), http.MethodDelete, "/reservations/res-123", "", client)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestReservationHandler_Calendar(t *testing.T) {
	t.Run("期間と物件を渡す", func(t *testing.T) {
		cs := new(MockCalendarService)
		events := []application.CalendarEvent{{ID: "res-123", Title: "Jane Guest - Seaside Villa", Status: reservation.StatusPending}}
		cs.On("ListEvents", mock.Anything, realtor, application.CalendarQuery{
			Start:      date("2024-03-01"),
			End:        date("2024-04-01"),
			PropertyID: "prop-1",
		}).Return(events, nil)

		rec := do(newReservationEcho(nil, cs), http.MethodGet,
			"/reservations/calendar?start=2024-03-01&end=2024-04-01&property_id=prop-1", "", realtor)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Jane Guest - Seaside Villa")
		cs.AssertExpectations(t)
	})

	t.Run("期間省略はゼロ値で渡す", func(t *testing.T) {
		cs := new(MockCalendarService)
		cs.On("ListEvents", mock.Anything, admin, application.CalendarQuery{}).Return([]application.CalendarEvent{}, nil)

		rec := do(newReservationEcho(nil, cs), http.MethodGet, "/reservations/calendar", "", admin)

		assert.Equal(t, http.StatusOK, rec.Code)
		cs.AssertExpectations(t)
	})

	t.Run("クライアントは403", func(t *testing.T) {
		cs := new(MockCalendarService)
		cs.On("ListEvents", mock.Anything, client, mock.Anything).Return(nil, reservation.ErrUnauthorized)

		rec := do(newReservationEcho(nil, cs), http.MethodGet, "/reservations/calendar", "", client)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("日付不正", func(t *testing.T) {
		cs := new(MockCalendarService)
		rec := do(newReservationEcho(nil, cs), http.MethodGet, "/reservations/calendar?start=soon", "", realtor)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "InvalidInput", decodeError(t, rec).Kind)
	})
}

func TestToReservationResponse(t *testing.T) {
	r := sampleReservation()
	r.TotalAmount = decimal.RequireFromString("869.5")

	resp := toReservationResponse(r)

	assert.Equal(t, r.ID, resp.ID)
	assert.Equal(t, "2024-03-05", resp.CheckOut)
	assert.Equal(t, "869.50", resp.TotalAmount)
	assert.Equal(t, 4, resp.Nights)
	assert.Equal(t, r.CreatedAt, resp.CreatedAt)
}
