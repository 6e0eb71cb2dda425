package grpcsvc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
	"github.com/vladislavdragonenkov/carrier-pricelist/internal/pricelist"
)

var (
	validationErrors = []error{
		domain.ErrCompanyRequired,
		domain.ErrCurrencyRequired,
		domain.ErrCustomerRequired,
		domain.ErrLineTypeInvalid,
		domain.ErrLineQuantityInvalid,
		domain.ErrLinePriceInvalid,
		domain.ErrLineProductRequired,
		domain.ErrSaleCarrierRequired,
	}
	notFoundErrors = []error{
		domain.ErrSaleNotFound,
		domain.ErrShipmentNotFound,
		domain.ErrCarrierNotFound,
		domain.ErrProductNotFound,
		domain.ErrPriceListNotFound,
		domain.ErrCurrencyNotFound,
	}
	preconditionErrors = []error{
		domain.ErrInvalidTransition,
		domain.ErrSaleNotEditable,
		domain.ErrCurrencyRateInvalid,
		pricelist.ErrInvalidFormula,
		pricelist.ErrNegativePrice,
	}
)

// statusCode классифицирует доменную ошибку в gRPC-код.
func statusCode(err error) codes.Code {
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}

	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case domain.IsConfigurationError(err):
		return codes.FailedPrecondition
	case domain.IsNotFound(err), isAny(err, notFoundErrors):
		return codes.NotFound
	case domain.IsVersionConflict(err):
		return codes.Aborted
	case isAny(err, validationErrors):
		return codes.InvalidArgument
	case isAny(err, preconditionErrors):
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// toStatus превращает ошибку в gRPC status; внутренние детали наружу не отдаются.
func (s *ShippingCostService) toStatus(err error, operation string) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := statusCode(err)
	entry := s.logger.WithError(err).WithField("operation", operation)
	if code == codes.Internal {
		entry.Error("request failed")
		return status.Error(codes.Internal, operation+" failed")
	}
	entry.WithField("code", code.String()).Warn("request rejected")
	return status.Error(code, err.Error())
}
