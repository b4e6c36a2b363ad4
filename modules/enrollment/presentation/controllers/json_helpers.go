package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/capacity"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/offering"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/request"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
	"github.com/alumnet-hq/alumnet/modules/enrollment/services"
	"github.com/alumnet-hq/alumnet/pkg/serrors"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		panic(err)
	}
}

func writeAPIError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message})
}

// writeServiceError maps domain errors onto HTTP statuses; the error code in
// the body comes from the structured error itself.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, request.ErrNotFound),
		errors.Is(err, offering.ErrNotFound),
		errors.Is(err, capacity.ErrPoolNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrDuplicateRegistration),
		errors.Is(err, services.ErrCapacityExceeded),
		errors.Is(err, workflow.ErrAlreadyFinalized),
		errors.Is(err, request.ErrConcurrencyConflict):
		status = http.StatusConflict
	case errors.Is(err, services.ErrOfferingNotOpen),
		errors.Is(err, services.ErrSlotRequired),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrMissingReason),
		errors.Is(err, workflow.ErrUnknownDomain):
		status = http.StatusUnprocessableEntity
	}

	var base *serrors.BaseError
	if errors.As(err, &base) {
		writeAPIError(w, status, base.Code, base.Message)
		return
	}
	writeAPIError(w, status, "ENROLLMENT_INTERNAL", "internal error")
}
