package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/Uvaancovie/nova-prop-backend/internal/api"
	"github.com/Uvaancovie/nova-prop-backend/internal/api/middleware"
)

// NewTestEcho はテスト用のEchoインスタンスを作成する
// 主体はヘッダーから解決する
func NewTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	e.Use(middleware.ActorAuth(""))
	return e
}
