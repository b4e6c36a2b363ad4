package services

import "github.com/alumnet-hq/alumnet/pkg/serrors"

var (
	ErrDuplicateRegistration    = serrors.NewError("DUPLICATE_REGISTRATION", "subject already has an active request for this offering", "Enrollment.Errors.DuplicateRegistration")
	ErrOfferingNotOpen          = serrors.NewError("OFFERING_NOT_OPEN", "offering is unpublished or past its submission deadline", "Enrollment.Errors.OfferingNotOpen")
	ErrCapacityExceeded         = serrors.NewError("CAPACITY_EXCEEDED", "no seats remaining for this slot", "Enrollment.Errors.CapacityExceeded")
	ErrSlotRequired             = serrors.NewError("SLOT_REQUIRED", "offering is capacity-bound and requires a slot", "Enrollment.Errors.SlotRequired")
	ErrRefundChannelUnavailable = serrors.NewError("REFUND_CHANNEL_UNAVAILABLE", "wallet credit failed, refund flagged for manual processing", "Enrollment.Errors.RefundChannelUnavailable")
)
