package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Uvaancovie/nova-prop-backend/internal/application"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Success bool   `json:"success"`
	Kind    string `json:"kind,omitempty"`
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
}

var kindStatus = map[reservation.Kind]int{
	reservation.KindInvalidInput:         http.StatusBadRequest,
	reservation.KindInvalidDateRange:     http.StatusBadRequest,
	reservation.KindInvalidTransition:    http.StatusBadRequest,
	reservation.KindUnavailable:          http.StatusBadRequest,
	reservation.KindUnauthorized:         http.StatusForbidden,
	reservation.KindNotFound:             http.StatusNotFound,
	reservation.KindConflict:             http.StatusConflict,
	reservation.KindMissingReferenceData: http.StatusUnprocessableEntity,
	reservation.KindStorageFailure:       http.StatusServiceUnavailable,
	reservation.KindInternal:             http.StatusInternalServerError,
}

// StatusForKind はエラー種別に対応する HTTP ステータスを返す
func StatusForKind(kind reservation.Kind) int {
	if code, ok := kindStatus[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
// echo.HTTPError はそのまま、サービス層のエラーは種別からステータスを決める
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	resp := ErrorResponse{Error: "内部サーバーエラー", Code: http.StatusInternalServerError}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		resp.Code = he.Code
		if m, ok := he.Message.(string); ok {
			resp.Error = m
		} else {
			resp.Error = http.StatusText(he.Code)
		}
	} else {
		kind := application.ErrorKind(err)
		resp.Kind = string(kind)
		resp.Code = StatusForKind(kind)
		if errors.Is(err, reservation.ErrUnauthenticated) {
			resp.Code = http.StatusUnauthorized
		}
		if kind != reservation.KindInternal {
			resp.Error = err.Error()
		}
	}

	if resp.Code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", resp.Code),
			zap.String("kind", resp.Kind),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(resp.Code)
	} else {
		err = c.JSON(resp.Code, resp)
	}
	if err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
