package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/storiqa/billing/internal/clients/stripe"
	"github.com/storiqa/billing/internal/domain/fee"
	ierr "github.com/storiqa/billing/internal/errors"
	"github.com/storiqa/billing/internal/types"
)

// FeeService exposes marketplace commission records and bills them to
// merchants through the card gateway.
type FeeService interface {
	// GetByOrderID returns the fee recognized on an order, or nil when
	// the order has none yet.
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*fee.Fee, error)
	// CreateCharge bills a not-paid fee off-session and records the
	// outcome on the fee row.
	CreateCharge(ctx context.Context, feeID int64) (*fee.Fee, error)
}

type feeService struct {
	ServiceParams
}

func NewFeeService(params ServiceParams) FeeService {
	return &feeService{ServiceParams: params}
}

func (s *feeService) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*fee.Fee, error) {
	f, err := s.FeeRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

func (s *feeService) CreateCharge(ctx context.Context, feeID int64) (*fee.Fee, error) {
	f, err := s.FeeRepo.Get(ctx, feeID)
	if err != nil {
		return nil, err
	}
	if f.Status == types.FeeStatusPaid {
		return nil, ierr.NewError("fee is already paid").
			WithReportableDetails(map[string]interface{}{
				"fee_id":    f.ID,
				"charge_id": f.ChargeID,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	o, err := s.OrderRepo.Get(ctx, f.OrderID)
	if err != nil {
		return nil, err
	}

	amount, err := f.Amount.ToUint64()
	if err != nil {
		return nil, err
	}

	charge, err := s.StripeClient.CreateCharge(ctx, stripe.NewCharge{
		Amount:      amount,
		Currency:    f.Currency,
		Description: fmt.Sprintf("marketplace fee for order %s", o.ID),
	}, types.Metadata{
		"order_id": o.ID.String(),
		"fee_id":   strconv.FormatInt(f.ID, 10),
	})
	if err != nil {
		return nil, err
	}

	status := types.FeeStatusFail
	if charge.Paid {
		status = types.FeeStatusPaid
	}
	updated, err := s.FeeRepo.Update(ctx, f.ID, fee.UpdateFee{
		Status:   &status,
		ChargeID: &charge.ID,
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("charged fee",
		"fee_id", f.ID,
		"order_id", o.ID,
		"charge_id", charge.ID,
		"status", status,
	)
	return updated, nil
}
