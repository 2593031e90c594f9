package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/Uvaancovie/nova-prop-backend/internal/application"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
	"github.com/Uvaancovie/nova-prop-backend/internal/infrastructure/queue"
)

// MockInvoiceRegenerator は InvoiceRegenerator のモック
type MockInvoiceRegenerator struct {
	mock.Mock
}

func (m *MockInvoiceRegenerator) GenerateByID(ctx context.Context, reservationID string) (*application.InvoiceResult, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.InvoiceResult), args.Error(1)
}

func TestInvoiceTaskHandler_ProcessTask(t *testing.T) {
	tests := []struct {
		name      string
		genErr    error
		wantErr   bool
		wantRetry bool
	}{
		{name: "成功"},
		{name: "ストレージ障害は再試行する", genErr: reservation.ErrStorageFailure, wantErr: true, wantRetry: true},
		{name: "予約が削除済みなら再試行しない", genErr: reservation.ErrReservationNotFound, wantErr: true},
		{name: "参照データ不足は再試行しない", genErr: reservation.ErrMissingReferenceData, wantErr: true},
		{name: "権限エラーは再試行しない", genErr: reservation.ErrUnauthorized, wantErr: true},
		{name: "PDF変換の失敗は再試行する", genErr: errors.New("PDF変換に失敗: chromedp timeout"), wantErr: true, wantRetry: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := new(MockInvoiceRegenerator)
			if tt.genErr != nil {
				gen.On("GenerateByID", mock.Anything, "res-1").Return(nil, tt.genErr)
			} else {
				gen.On("GenerateByID", mock.Anything, "res-1").
					Return(&application.InvoiceResult{Filename: "invoice-res-1.pdf"}, nil)
			}

			task, err := queue.NewInvoiceTask("res-1")
			assert.NoError(t, err)

			err = NewInvoiceTaskHandler(gen).ProcessTask(context.Background(), task)

			if !tt.wantErr {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Equal(t, !tt.wantRetry, errors.Is(err, asynq.SkipRetry))
				assert.ErrorIs(t, err, tt.genErr)
			}
			gen.AssertExpectations(t)
		})
	}
}

func TestInvoiceTaskHandler_InvalidPayload(t *testing.T) {
	gen := new(MockInvoiceRegenerator)
	task := asynq.NewTask(queue.TypeInvoiceGenerate, []byte(`{"reservation_id":""}`))

	err := NewInvoiceTaskHandler(gen).ProcessTask(context.Background(), task)

	assert.ErrorIs(t, err, asynq.SkipRetry)
	gen.AssertNotCalled(t, "GenerateByID", mock.Anything, mock.Anything)
}

func TestInvoiceTaskHandler_Register(t *testing.T) {
	gen := new(MockInvoiceRegenerator)
	gen.On("GenerateByID", mock.Anything, "res-1").Return(&application.InvoiceResult{}, nil)

	mux := asynq.NewServeMux()
	NewInvoiceTaskHandler(gen).Register(mux)

	task, _ := queue.NewInvoiceTask("res-1")
	assert.NoError(t, mux.ProcessTask(context.Background(), task))
	gen.AssertExpectations(t)
}
