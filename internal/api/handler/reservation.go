package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/Uvaancovie/nova-prop-backend/internal/api"
	"github.com/Uvaancovie/nova-prop-backend/internal/api/middleware"
	"github.com/Uvaancovie/nova-prop-backend/internal/application"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
)

type ReservationHandler struct {
	service  ReservationServiceInterface
	calendar CalendarServiceInterface
}

func NewReservationHandler(s ReservationServiceInterface, cal CalendarServiceInterface) *ReservationHandler {
	return &ReservationHandler{service: s, calendar: cal}
}

type CreateReservationRequest struct {
	PropertyID      string          `json:"property_id" validate:"required" example:"prop-1"`
	CheckIn         string          `json:"check_in" validate:"required,date" example:"2024-03-01"`
	CheckOut        string          `json:"check_out" validate:"required,date" example:"2024-03-05"`
	Guests          int             `json:"guests" validate:"required" example:"2"`
	TotalAmount     decimal.Decimal `json:"total_amount" example:"1000.00"`
	SpecialRequests string          `json:"special_requests" validate:"max=2000"`
}

// UpdateReservationRequest は省略した項目を変更しない
type UpdateReservationRequest struct {
	Status          *string `json:"status" example:"confirmed"`
	CheckIn         *string `json:"check_in" validate:"omitempty,date"`
	CheckOut        *string `json:"check_out" validate:"omitempty,date"`
	Guests          *int    `json:"guests"`
	SpecialRequests *string `json:"special_requests" validate:"omitempty,max=2000"`
}

// Create godoc
// @Summary 予約を作成
// @Description 物件の滞在期間を保留中の予約として押さえます
// @Tags reservations
// @Accept json
// @Produce json
// @Param X-User-ID header string true "クライアントID"
// @Param request body CreateReservationRequest true "予約情報"
// @Success 201 {object} CreateReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 401 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "期間が既存の予約と重複"
// @Router /reservations [post]
func (h *ReservationHandler) Create(c echo.Context) error {
	var req CreateReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	checkIn, err := parseDate(req.CheckIn)
	if err != nil {
		return err
	}
	checkOut, err := parseDate(req.CheckOut)
	if err != nil {
		return err
	}

	result, err := h.service.CreateReservation(c.Request().Context(), application.CreateReservationInput{
		Actor:           middleware.ActorFrom(c),
		PropertyID:      req.PropertyID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		Guests:          req.Guests,
		TotalAmount:     req.TotalAmount,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ok(CreateReservationResponse{
		ReservationResponse: toReservationResponse(result.Reservation),
		Invoice:             result.Invoice,
	}))
}

// List godoc
// @Summary 予約一覧を取得
// @Description クライアントは自分の予約、不動産業者は自分の物件の予約、管理者は全件
// @Tags reservations
// @Produce json
// @Param property_id query string false "物件ID"
// @Param status query string false "状態（カンマ区切り）"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} ReservationResponse
// @Failure 401 {object} api.ErrorResponse
// @Router /reservations [get]
func (h *ReservationHandler) List(c echo.Context) error {
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}
	offset, err := intParam(c, "offset")
	if err != nil {
		return err
	}
	var statuses []reservation.Status
	if raw := c.QueryParam("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st, err := reservation.ParseStatus(s)
			if err != nil {
				return err
			}
			statuses = append(statuses, st)
		}
	}

	list, err := h.service.ListReservations(c.Request().Context(), application.ListReservationsInput{
		Actor:      middleware.ActorFrom(c),
		PropertyID: c.QueryParam("property_id"),
		Statuses:   statuses,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, okList(toReservationResponses(list), len(list)))
}

// GetByID godoc
// @Summary 予約を取得
// @Tags reservations
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /reservations/{id} [get]
func (h *ReservationHandler) GetByID(c echo.Context) error {
	r, err := h.service.GetReservation(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok(toReservationResponse(r)))
}

// Update godoc
// @Summary 予約を更新
// @Description 状態遷移と、状態以外の項目の更新を行います
// @Tags reservations
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param request body UpdateReservationRequest true "更新内容"
// @Success 200 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse "許可されていない状態遷移"
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /reservations/{id} [put]
func (h *ReservationHandler) Update(c echo.Context) error {
	var req UpdateReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	input := application.UpdateReservationInput{
		Actor: middleware.ActorFrom(c),
		ID:    c.Param("id"),
		Details: reservation.Details{
			Guests:          req.Guests,
			SpecialRequests: req.SpecialRequests,
		},
	}
	if req.Status != nil {
		st, err := reservation.ParseStatus(*req.Status)
		if err != nil {
			return err
		}
		input.Status = &st
	}
	if req.CheckIn != nil {
		d, err := parseDate(*req.CheckIn)
		if err != nil {
			return err
		}
		input.Details.CheckIn = &d
	}
	if req.CheckOut != nil {
		d, err := parseDate(*req.CheckOut)
		if err != nil {
			return err
		}
		input.Details.CheckOut = &d
	}

	r, err := h.service.UpdateReservation(c.Request().Context(), input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok(toReservationResponse(r)))
}

// Delete godoc
// @Summary 予約を削除
// @Description 管理者のみ
// @Tags reservations
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} Response
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /reservations/{id} [delete]
func (h *ReservationHandler) Delete(c echo.Context) error {
	if err := h.service.DeleteReservation(c.Request().Context(), middleware.ActorFrom(c), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Message: "予約を削除しました"})
}

// Calendar godoc
// @Summary カレンダー表示用の予約一覧
// @Description 期間 [start, end) と重なる有効な予約。期間省略時は今月
// @Tags reservations
// @Produce json
// @Param start query string false "開始日 (YYYY-MM-DD)"
// @Param end query string false "終了日 (YYYY-MM-DD)"
// @Param property_id query string false "物件ID"
// @Success 200 {array} application.CalendarEvent
// @Failure 403 {object} api.ErrorResponse
// @Router /reservations/calendar [get]
func (h *ReservationHandler) Calendar(c echo.Context) error {
	var (
		q   = application.CalendarQuery{PropertyID: c.QueryParam("property_id")}
		err error
	)
	if s := c.QueryParam("start"); s != "" {
		if q.Start, err = parseDate(s); err != nil {
			return err
		}
	}
	if s := c.QueryParam("end"); s != "" {
		if q.End, err = parseDate(s); err != nil {
			return err
		}
	}

	events, err := h.calendar.ListEvents(c.Request().Context(), middleware.ActorFrom(c), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, okList(events, len(events)))
}

func parseDate(s string) (time.Time, error) {
	t, err := api.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", reservation.ErrInvalidInput, err)
	}
	return t, nil
}

func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" は0以上の整数で指定してください")
	}
	return n, nil
}
