package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/property"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/transaction"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/user"
	redisinfra "github.com/Uvaancovie/nova-prop-backend/internal/infrastructure/redis"
	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/logger"
	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/metrics"
)

type ReservationService struct {
	txManager       transaction.Manager
	reservationRepo reservation.Repository
	properties      property.Lookup
	users           user.Lookup
	notifier        *Notifier
	invoices        InvoiceGenerator
	invoiceQueue    InvoiceEnqueuer
	lockManager     redisinfra.LockManagerInterface
	calendarCache   CalendarCache
	metrics         *metrics.Metrics
	clock           Clock
	cfg             ServiceConfig
}

// ReservationOption は ReservationService の任意の依存を設定する
type ReservationOption func(*ReservationService)

// WithLockManager は DB トランザクションの前に取得する分散ロックを設定する
func WithLockManager(lm redisinfra.LockManagerInterface) ReservationOption {
	return func(s *ReservationService) { s.lockManager = lm }
}

// WithInvoiceGenerator は予約作成時の請求書生成を設定する
func WithInvoiceGenerator(g InvoiceGenerator) ReservationOption {
	return func(s *ReservationService) { s.invoices = g }
}

// WithInvoiceQueue は請求書生成に失敗したときの再試行キューを設定する
func WithInvoiceQueue(q InvoiceEnqueuer) ReservationOption {
	return func(s *ReservationService) { s.invoiceQueue = q }
}

// WithCalendarCache は更新時に無効化するカレンダーキャッシュを設定する
func WithCalendarCache(c CalendarCache) ReservationOption {
	return func(s *ReservationService) { s.calendarCache = c }
}

func WithMetrics(m *metrics.Metrics) ReservationOption {
	return func(s *ReservationService) { s.metrics = m }
}

func WithClock(c Clock) ReservationOption {
	return func(s *ReservationService) { s.clock = c }
}

func WithServiceConfig(cfg ServiceConfig) ReservationOption {
	return func(s *ReservationService) { s.cfg = cfg }
}

func NewReservationService(
	txm transaction.Manager,
	rr reservation.Repository,
	pl property.Lookup,
	ul user.Lookup,
	notifier *Notifier,
	opts ...ReservationOption,
) *ReservationService {
	s := &ReservationService{
		txManager:       txm,
		reservationRepo: rr,
		properties:      pl,
		users:           ul,
		notifier:        notifier,
		clock:           time.Now,
		cfg:             DefaultServiceConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ReservationService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

func (s *ReservationService) now() time.Time {
	return s.clock().UTC()
}

type CreateReservationInput struct {
	Actor           reservation.Actor
	PropertyID      string
	CheckIn         time.Time
	CheckOut        time.Time
	Guests          int
	TotalAmount     decimal.Decimal
	SpecialRequests string
}

// CreateReservationResult は作成された予約と、生成できた場合はその請求書
type CreateReservationResult struct {
	Reservation *reservation.Reservation
	Invoice     *InvoiceResult
}

// CreateReservation は重複確認と挿入を1つの排他区間で行い、保留中の予約を作成する
// 請求書と通知は作成後のベストエフォートな副作用で、失敗しても予約は残る
func (s *ReservationService) CreateReservation(ctx context.Context, input CreateReservationInput) (*CreateReservationResult, error) {
	if err := reservation.AuthorizeCreate(input.Actor); err != nil {
		return nil, err
	}
	if _, err := reservation.NewInterval(input.CheckIn, input.CheckOut); err != nil {
		return nil, err
	}

	res, err := s.createReservation(ctx, input)
	if err != nil {
		s.metrics.ReservationAttempt(attemptStatus(err))
		return nil, err
	}
	s.metrics.ReservationAttempt("success")
	s.invalidateCalendar(ctx, res.RealtorID)

	result := &CreateReservationResult{Reservation: res}
	invoiceRef := ""
	if inv := s.generateInvoice(ctx, res); inv != nil {
		result.Invoice = inv
		invoiceRef = inv.Filename
	}
	s.notifier.Created(ctx, res, invoiceRef)

	logger.Info("予約を作成",
		zap.String("reservation_id", res.ID),
		zap.String("property_id", res.PropertyID),
		zap.String("client_id", res.ClientID),
	)
	return result, nil
}

func (s *ReservationService) createReservation(ctx context.Context, input CreateReservationInput) (*reservation.Reservation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	prop, err := s.properties.GetByID(ctx, input.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("物件取得に失敗: %w", err)
	}
	if !prop.IsAvailable {
		return nil, property.ErrPropertyUnavailable
	}
	if !prop.Accommodates(input.Guests) {
		return nil, property.ErrCapacityExceeded
	}
	client, err := s.users.GetByID(ctx, input.Actor.ID)
	if err != nil {
		return nil, fmt.Errorf("クライアント取得に失敗: %w", err)
	}

	res := reservation.NewReservation(reservation.Draft{
		PropertyID:      prop.ID,
		ClientID:        input.Actor.ID,
		CheckIn:         input.CheckIn,
		CheckOut:        input.CheckOut,
		Guests:          input.Guests,
		TotalAmount:     input.TotalAmount,
		SpecialRequests: input.SpecialRequests,
	}, prop, client, s.now())
	if err := res.Validate(); err != nil {
		return nil, err
	}

	release, err := s.acquirePropertyLock(ctx, prop.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.checkAvailability(ctx, tx, res, ""); err != nil {
		return nil, err
	}
	if err := s.reservationRepo.Create(ctx, tx, res); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// checkAvailability は物件ロックを取得し、res と重なる有効な予約がないことを確認する
func (s *ReservationService) checkAvailability(ctx context.Context, tx transaction.Tx, res *reservation.Reservation, excludeID string) error {
	if err := s.reservationRepo.LockProperty(ctx, tx, res.PropertyID); err != nil {
		return err
	}
	live, err := s.reservationRepo.ListLiveByProperty(ctx, tx, res.PropertyID)
	if err != nil {
		return err
	}
	if c := reservation.FindConflict(res.PropertyID, res.Interval(), live, excludeID); c != nil {
		return fmt.Errorf("%w: %s〜%s は予約 %s と重なります",
			reservation.ErrConflict, ymd(res.CheckIn), ymd(res.CheckOut), c.ID)
	}
	return nil
}

// acquirePropertyLock は分散ロックを取得し、解放関数を返す
// ロックが混雑している場合や Redis 自体の障害時は DB のアドバイザリロックのみで続行する
func (s *ReservationService) acquirePropertyLock(ctx context.Context, propertyID string) (func(), error) {
	noop := func() {}
	if s.lockManager == nil {
		return noop, nil
	}
	start := time.Now()
	lock, err := s.lockManager.AcquireLockWithRetry(ctx, redisinfra.PropertyLockKey(propertyID),
		s.cfg.LockTTL, s.cfg.LockRetries, s.cfg.LockRetryDelay)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.metrics.LockObserved("acquire", "failed", time.Since(start))
			return nil, fmt.Errorf("%w: %w", reservation.ErrStorageFailure, ctxErr)
		}
		if errors.Is(err, redisinfra.ErrLockNotAcquired) {
			s.metrics.LockObserved("acquire", "contended", time.Since(start))
			logger.Warn("分散ロックが混雑しているためDBロックで直列化",
				zap.String("property_id", propertyID))
			return noop, nil
		}
		s.metrics.LockObserved("acquire", "failed", time.Since(start))
		logger.Warn("分散ロックを取得できないためDBロックのみで続行",
			zap.String("property_id", propertyID), zap.Error(err))
		return noop, nil
	}
	s.metrics.LockObserved("acquire", "success", time.Since(start))

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			logger.Warn("分散ロックの解放に失敗", zap.String("property_id", propertyID), zap.Error(err))
		}
	}, nil
}

func (s *ReservationService) generateInvoice(ctx context.Context, res *reservation.Reservation) *InvoiceResult {
	if s.invoices == nil {
		return nil
	}
	inv, err := s.invoices.GenerateForReservation(ctx, res)
	if err == nil {
		return inv
	}
	logger.Error("請求書の生成に失敗", zap.String("reservation_id", res.ID), zap.Error(err))
	if s.invoiceQueue != nil && ErrorKind(err) != reservation.KindMissingReferenceData {
		if qErr := s.invoiceQueue.EnqueueInvoice(context.WithoutCancel(ctx), res.ID); qErr != nil {
			logger.Error("請求書の再生成を予約できませんでした", zap.String("reservation_id", res.ID), zap.Error(qErr))
		}
	}
	return nil
}

func attemptStatus(err error) string {
	switch reservation.KindOf(err) {
	case reservation.KindConflict:
		return "conflict"
	case reservation.KindStorageFailure:
		return "storage_failure"
	case reservation.KindUnauthorized:
		return "unauthorized"
	}
	return "rejected"
}

// GetReservation は閲覧権限のある予約を取得する
func (s *ReservationService) GetReservation(ctx context.Context, actor reservation.Actor, id string) (*reservation.Reservation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.reservationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !reservation.CanView(res, actor) {
		return nil, reservation.ErrUnauthorized
	}
	return res, nil
}

type ListReservationsInput struct {
	Actor      reservation.Actor
	PropertyID string
	Statuses   []reservation.Status
	Limit      int
	Offset     int
}

// ListReservations は主体の役割に応じた予約一覧を新しい順に返す
func (s *ReservationService) ListReservations(ctx context.Context, input ListReservationsInput) ([]*reservation.Reservation, error) {
	filter := reservation.ListFilter{
		PropertyID: input.PropertyID,
		Statuses:   input.Statuses,
		Limit:      input.Limit,
		Offset:     input.Offset,
	}
	switch input.Actor.Role {
	case user.RoleClient:
		filter.ClientID = input.Actor.ID
	case user.RoleRealtor:
		filter.RealtorID = input.Actor.ID
	case user.RoleAdmin, user.RoleSystem:
	default:
		return nil, reservation.ErrUnauthorized
	}
	if input.Actor.ID == "" {
		return nil, reservation.ErrUnauthenticated
	}
	for _, st := range input.Statuses {
		if !st.IsValid() {
			return nil, reservation.ErrInvalidStatus
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.reservationRepo.List(ctx, filter)
}

type UpdateReservationInput struct {
	Actor   reservation.Actor
	ID      string
	Status  *reservation.Status
	Details reservation.Details
}

// UpdateReservation は状態遷移と状態以外の項目の更新を1つのトランザクションで行う
// 通知は状態が変わった場合のみ記録する
func (s *ReservationService) UpdateReservation(ctx context.Context, input UpdateReservationInput) (*reservation.Reservation, error) {
	if input.Status == nil && input.Details.IsEmpty() {
		return nil, fmt.Errorf("%w: 更新項目がありません", reservation.ErrInvalidInput)
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, reservation.ErrInvalidStatus
	}

	res, from, err := s.updateReservation(ctx, input)
	if err != nil {
		return nil, err
	}
	s.invalidateCalendar(ctx, res.RealtorID)
	if input.Status != nil {
		s.afterTransition(ctx, res, input.Actor, from, *input.Status)
	}
	return res, nil
}

// UpdateStatus は状態遷移のみを行う
func (s *ReservationService) UpdateStatus(ctx context.Context, actor reservation.Actor, id string, to reservation.Status) (*reservation.Reservation, error) {
	return s.UpdateReservation(ctx, UpdateReservationInput{Actor: actor, ID: id, Status: &to})
}

func (s *ReservationService) updateReservation(ctx context.Context, input UpdateReservationInput) (*reservation.Reservation, reservation.Status, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	res, err := s.reservationRepo.GetByIDForUpdate(ctx, tx, input.ID)
	if err != nil {
		return nil, "", err
	}
	if !reservation.CanView(res, input.Actor) {
		return nil, "", reservation.ErrUnauthorized
	}

	now := s.now()
	wasLive := res.IsLive()
	needsCheck := false

	if !input.Details.IsEmpty() {
		if !reservation.CanEdit(res, input.Actor) {
			return nil, "", reservation.ErrUnauthorized
		}
		if res.Status.IsTerminal() && !input.Actor.IsAdmin() {
			return nil, "", fmt.Errorf("%w: %s の予約は変更できません", reservation.ErrInvalidTransition, res.Status)
		}
		if err := res.ApplyDetails(input.Details, now); err != nil {
			return nil, "", err
		}
		needsCheck = input.Details.ChangesInterval()
	}

	from := res.Status
	if input.Status != nil {
		if from, err = res.Transition(input.Actor, *input.Status, now); err != nil {
			return nil, "", err
		}
		needsCheck = needsCheck || (!wasLive && res.IsLive())
	}

	if needsCheck && res.IsLive() {
		if err := s.checkAvailability(ctx, tx, res, res.ID); err != nil {
			return nil, "", err
		}
	}
	if !input.Details.IsEmpty() {
		if err := s.reservationRepo.UpdateDetails(ctx, tx, res); err != nil {
			return nil, "", err
		}
	}
	if input.Status != nil {
		if err := s.reservationRepo.UpdateStatus(ctx, tx, res.ID, from, res.Status, now); err != nil {
			return nil, "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, "", err
	}
	return res, from, nil
}

func (s *ReservationService) afterTransition(ctx context.Context, res *reservation.Reservation, actor reservation.Actor, from, to reservation.Status) {
	s.metrics.Transition(string(from), string(to), string(actor.Role))
	if actor.IsAdmin() {
		logger.Warn("管理者による状態変更",
			zap.Bool("admin_override", true),
			zap.Bool("modeled_edge", reservation.IsModeled(from, to)),
			zap.String("reservation_id", res.ID),
			zap.String("actor_id", actor.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
	}
	s.notifier.Transitioned(ctx, res, actor, from, to)
}

// DeleteReservation は予約を物理削除する（管理者のみ）
func (s *ReservationService) DeleteReservation(ctx context.Context, actor reservation.Actor, id string) error {
	if !actor.IsAdmin() {
		return reservation.ErrUnauthorized
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.reservationRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.reservationRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateCalendar(ctx, res.RealtorID)
	logger.Warn("予約を削除", zap.String("reservation_id", id), zap.String("actor_id", actor.ID))
	return nil
}

// ElapsedReservations は次回の完了処理の対象となる予約を返す。状態は変更しない
func (s *ReservationService) ElapsedReservations(ctx context.Context, now time.Time) ([]*reservation.Reservation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.reservationRepo.ListElapsedConfirmed(ctx, now.UTC(), reservation.ElapsedCursor{}, s.cfg.SweepBatchSize)
}

// CompleteElapsedReservations はチェックアウト日を過ぎた確定済み予約を完了にする
// 対象がなくなるまでバッチ単位で処理する。カーソルは先へ進むだけなので失敗した予約は同じ実行で再度選ばれない
// 1件の失敗はログに残して次の予約へ進み、完了にできた件数を返す
func (s *ReservationService) CompleteElapsedReservations(ctx context.Context, now time.Time) (int, error) {
	batch := s.cfg.SweepBatchSize
	if batch <= 0 {
		batch = DefaultServiceConfig().SweepBatchSize
	}
	var (
		cursor    reservation.ElapsedCursor
		completed int
	)
	for {
		listCtx, cancel := s.withTimeout(ctx)
		candidates, err := s.reservationRepo.ListElapsedConfirmed(listCtx, now, cursor, batch)
		cancel()
		if err != nil {
			return completed, fmt.Errorf("滞在終了予約の取得に失敗: %w", err)
		}

		for _, c := range candidates {
			if err := ctx.Err(); err != nil {
				return completed, err
			}
			cursor = reservation.CursorOf(c)
			res, err := s.completeOne(ctx, c.ID, now)
			if err != nil {
				if errors.Is(err, reservation.ErrStatusChanged) {
					logger.Debug("他の操作で状態が変わったためスキップ", zap.String("reservation_id", c.ID))
				} else {
					logger.Error("予約の完了処理に失敗", zap.String("reservation_id", c.ID), zap.Error(err))
				}
				continue
			}
			completed++
			s.invalidateCalendar(ctx, res.RealtorID)
			s.afterTransition(ctx, res, reservation.SystemActor, reservation.StatusConfirmed, reservation.StatusCompleted)
		}
		if len(candidates) < batch {
			return completed, nil
		}
	}
}

func (s *ReservationService) completeOne(ctx context.Context, id string, now time.Time) (*reservation.Reservation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	res, err := s.reservationRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if res.Status != reservation.StatusConfirmed {
		return nil, reservation.ErrStatusChanged
	}
	from, err := res.Transition(reservation.SystemActor, reservation.StatusCompleted, now)
	if err != nil {
		return nil, err
	}
	if err := s.reservationRepo.UpdateStatus(ctx, tx, res.ID, from, res.Status, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *ReservationService) invalidateCalendar(ctx context.Context, realtorID string) {
	if s.calendarCache == nil || realtorID == "" {
		return
	}
	if err := s.calendarCache.Invalidate(ctx, realtorID); err != nil {
		logger.Warn("カレンダーキャッシュの無効化に失敗", zap.String("realtor_id", realtorID), zap.Error(err))
	}
}
