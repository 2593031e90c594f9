package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/invoice"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/property"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/user"
	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/logger"
	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/metrics"
)

// DownloadBasePath はダウンロードURLの接頭辞
const DownloadBasePath = "/api/v1/invoices/download/"

type reservationReader interface {
	GetByID(ctx context.Context, id string) (*reservation.Reservation, error)
}

// InvoiceResult は生成した請求書の参照
type InvoiceResult struct {
	Number       string `json:"invoice_number"`
	Filename     string `json:"filename"`
	DownloadPath string `json:"download_path"`
}

// InvoiceDownload は保存済みの請求書
// 呼び出し側で Body を閉じること
type InvoiceDownload struct {
	Filename    string
	ContentType string
	Body        io.ReadCloser
}

// InvoiceService は請求書の生成と取得を行う
type InvoiceService struct {
	reservations reservationReader
	properties   property.Lookup
	users        user.Lookup
	renderer     invoice.Renderer
	store        invoice.Store
	metrics      *metrics.Metrics
	clock        Clock
	timeout      time.Duration
}

func NewInvoiceService(
	rr reservationReader,
	pl property.Lookup,
	ul user.Lookup,
	renderer invoice.Renderer,
	store invoice.Store,
	m *metrics.Metrics,
	clock Clock,
	timeout time.Duration,
) *InvoiceService {
	if clock == nil {
		clock = time.Now
	}
	return &InvoiceService{
		reservations: rr, properties: pl, users: ul,
		renderer: renderer, store: store,
		metrics: m, clock: clock, timeout: timeout,
	}
}

func (s *InvoiceService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// GenerateInvoice は閲覧権限のある予約の請求書を生成する
func (s *InvoiceService) GenerateInvoice(ctx context.Context, actor reservation.Actor, reservationID string) (*InvoiceResult, error) {
	res, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !reservation.CanView(res, actor) {
		return nil, reservation.ErrUnauthorized
	}
	return s.GenerateForReservation(ctx, res)
}

// GenerateByID は再試行タスク向けに予約IDから請求書を生成する
// 保存済みの請求書がある場合は再生成しない
func (s *InvoiceService) GenerateByID(ctx context.Context, reservationID string) (*InvoiceResult, error) {
	res, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	filename := invoice.Filename(res.ID, s.renderer.Extension())
	existsCtx, cancel := s.withTimeout(ctx)
	ok, err := s.store.Exists(existsCtx, filename)
	cancel()
	switch {
	case err != nil:
		logger.Warn("請求書の存在確認に失敗したため再生成", zap.String("reservation_id", res.ID), zap.Error(err))
	case ok:
		s.metrics.Invoice("exists")
		return &InvoiceResult{
			Number:       invoice.Number(res.ID),
			Filename:     filename,
			DownloadPath: DownloadBasePath + filename,
		}, nil
	}
	return s.GenerateForReservation(ctx, res)
}

func (s *InvoiceService) getReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.reservations.GetByID(ctx, id)
}

// GenerateForReservation は参照データを解決して請求書を生成し、保存する
// 同じ予約の再生成は発行日以外同じ内容で、同じファイル名に置き換わる
func (s *InvoiceService) GenerateForReservation(ctx context.Context, res *reservation.Reservation) (*InvoiceResult, error) {
	result, err := s.generate(ctx, res)
	if err != nil {
		if ErrorKind(err) == reservation.KindMissingReferenceData {
			s.metrics.Invoice("missing_reference")
		} else {
			s.metrics.Invoice("failed")
		}
		return nil, err
	}
	s.metrics.Invoice("success")
	return result, nil
}

func (s *InvoiceService) generate(ctx context.Context, res *reservation.Reservation) (*InvoiceResult, error) {
	lookupCtx, cancel := s.withTimeout(ctx)
	prop, err := lookup(s.properties.GetByID(lookupCtx, res.PropertyID))
	if err != nil {
		cancel()
		return nil, err
	}
	client, err := lookup(s.users.GetByID(lookupCtx, res.ClientID))
	if err != nil {
		cancel()
		return nil, err
	}
	realtor, err := lookup(s.users.GetByID(lookupCtx, res.RealtorID))
	cancel()
	if err != nil {
		return nil, err
	}

	inv, err := invoice.Build(res, prop, client, realtor, s.clock())
	if err != nil {
		return nil, err
	}
	doc, err := s.renderer.Render(ctx, inv)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.store.Put(storeCtx, doc.Filename, doc.Data); err != nil {
		return nil, fmt.Errorf("%w: %w", reservation.ErrStorageFailure, err)
	}

	logger.Info("請求書を生成",
		zap.String("reservation_id", res.ID),
		zap.String("invoice_number", inv.Number),
		zap.String("filename", doc.Filename),
	)
	return &InvoiceResult{
		Number:       inv.Number,
		Filename:     doc.Filename,
		DownloadPath: DownloadBasePath + doc.Filename,
	}, nil
}

// lookup は存在しない参照を nil として扱い、請求書の組み立て側で MissingReferenceData にする
func lookup[T any](v *T, err error) (*T, error) {
	if err == nil {
		return v, nil
	}
	if errors.Is(err, property.ErrPropertyNotFound) || errors.Is(err, user.ErrUserNotFound) {
		return nil, nil
	}
	return nil, err
}

// DownloadInvoice は保存済みの請求書を開く
// 予約が残っている場合はその閲覧権限で判定し、削除済みの予約の請求書は管理者のみ取得できる
func (s *InvoiceService) DownloadInvoice(ctx context.Context, actor reservation.Actor, filename string) (*InvoiceDownload, error) {
	reservationID, err := invoice.ReservationIDFromFilename(filename)
	if err != nil {
		return nil, err
	}

	res, err := s.getReservation(ctx, reservationID)
	switch {
	case err == nil:
		if !reservation.CanView(res, actor) {
			return nil, reservation.ErrUnauthorized
		}
	case errors.Is(err, reservation.ErrReservationNotFound):
		if !actor.IsAdmin() {
			return nil, reservation.ErrUnauthorized
		}
	default:
		return nil, err
	}

	body, err := s.store.Open(ctx, filename)
	if err != nil {
		return nil, err
	}
	return &InvoiceDownload{
		Filename:    filename,
		ContentType: contentTypeOf(filename),
		Body:        body,
	}, nil
}

func contentTypeOf(filename string) string {
	if path.Ext(filename) == ".pdf" {
		return invoice.ContentTypePDF
	}
	return invoice.ContentTypeHTML
}

var _ InvoiceGenerator = (*InvoiceService)(nil)
