package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/songsmith/backend/internal/gateway"
	"github.com/songsmith/backend/internal/models"
	"github.com/songsmith/backend/internal/songapi"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePayment(ctx context.Context, req gateway.CreatePaymentRequest) (*gateway.CreatePaymentResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.CreatePaymentResponse), args.Error(1)
}

func (m *MockGateway) GetPayment(ctx context.Context, reference string) (*gateway.PaymentDetails, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PaymentDetails), args.Error(1)
}

func (m *MockGateway) CapturePayment(ctx context.Context, reference string, amount int64) error {
	args := m.Called(ctx, reference, amount)
	return args.Error(0)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Debit(ctx context.Context, userID int, amount int64, description, relatedRef string) (*models.CreditTransaction, error) {
	args := m.Called(ctx, userID, amount, description, relatedRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CreditTransaction), args.Error(1)
}

func (m *MockLedger) Credit(ctx context.Context, userID int, amount int64, kind models.TransactionKind, description, relatedRef string) (*models.CreditTransaction, error) {
	args := m.Called(ctx, userID, amount, kind, description, relatedRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CreditTransaction), args.Error(1)
}

func (m *MockLedger) HasRefundFor(ctx context.Context, userID int, relatedRef string) (bool, error) {
	args := m.Called(ctx, userID, relatedRef)
	return args.Bool(0), args.Error(1)
}

type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Generate(ctx context.Context, req songapi.GenerateRequest) (*songapi.GenerateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*songapi.GenerateResponse), args.Error(1)
}
