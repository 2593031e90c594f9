package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Uvaancovie/nova-prop-backend/internal/api/middleware"
)

type InvoiceHandler struct {
	service InvoiceServiceInterface
}

func NewInvoiceHandler(s InvoiceServiceInterface) *InvoiceHandler {
	return &InvoiceHandler{service: s}
}

// Generate godoc
// @Summary 請求書を生成
// @Description 予約の請求書を生成して保存します。再生成は同じファイルを置き換えます
// @Tags invoices
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} application.InvoiceResult
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 422 {object} api.ErrorResponse "物件・利用者情報が不足"
// @Router /invoices/generate/{id} [post]
func (h *InvoiceHandler) Generate(c echo.Context) error {
	inv, err := h.service.GenerateInvoice(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok(inv))
}

// Download godoc
// @Summary 請求書をダウンロード
// @Tags invoices
// @Produce application/pdf,text/html
// @Param filename path string true "ファイル名"
// @Success 200 {file} file
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /invoices/download/{filename} [get]
func (h *InvoiceHandler) Download(c echo.Context) error {
	dl, err := h.service.DownloadInvoice(c.Request().Context(), middleware.ActorFrom(c), c.Param("filename"))
	if err != nil {
		return err
	}
	defer dl.Body.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", dl.Filename))
	return c.Stream(http.StatusOK, dl.ContentType, dl.Body)
}
