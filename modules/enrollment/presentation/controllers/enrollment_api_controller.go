package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/request"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
	"github.com/alumnet-hq/alumnet/modules/enrollment/presentation/mappers"
	"github.com/alumnet-hq/alumnet/modules/enrollment/services"
)

// EnrollmentAPIController exposes admission, transitions and forced
// cancellation over JSON. The acting admin is taken from the X-Actor-ID and
// X-Actor-Role headers set by the edge proxy after authentication.
type EnrollmentAPIController struct {
	admission    *services.AdmissionService
	requests     *services.RequestService
	cancellation *services.CancellationService
	log          *logrus.Logger
	basePath     string
}

func NewEnrollmentAPIController(
	admission *services.AdmissionService,
	requests *services.RequestService,
	cancellation *services.CancellationService,
	log *logrus.Logger,
) *EnrollmentAPIController {
	return &EnrollmentAPIController{
		admission:    admission,
		requests:     requests,
		cancellation: cancellation,
		log:          log,
		basePath:     "/enrollment/api",
	}
}

func (c *EnrollmentAPIController) Key() string {
	return c.basePath
}

func (c *EnrollmentAPIController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("/requests", c.List).Methods(http.MethodGet)
	router.HandleFunc("/requests", c.Admit).Methods(http.MethodPost)
	router.HandleFunc("/requests/{id}", c.Get).Methods(http.MethodGet)
	router.HandleFunc("/requests/{id}/payment", c.MarkPaymentReceived).Methods(http.MethodPost)
	router.HandleFunc("/requests/{id}/transitions/{action}", c.Transition).Methods(http.MethodPost)
	router.HandleFunc("/requests/{id}/cancel", c.ForceCancel).Methods(http.MethodPost)
}

func actorFrom(r *http.Request) services.Actor {
	id, err := uuid.Parse(strings.TrimSpace(r.Header.Get("X-Actor-ID")))
	if err != nil {
		return services.Actor{}
	}
	return services.Actor{ID: id, Role: strings.TrimSpace(r.Header.Get("X-Actor-Role"))}
}

func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	return id, err == nil
}

type admitBody struct {
	SubjectID  uuid.UUID `json:"subject_id"`
	OfferingID uuid.UUID `json:"offering_id"`
	SlotID     uuid.UUID `json:"slot_id"`
	Delivery   string    `json:"delivery"`
}

func (c *EnrollmentAPIController) Admit(w http.ResponseWriter, r *http.Request) {
	var body admitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, http.StatusBadRequest, "ENROLLMENT_INVALID_JSON", "invalid json")
		return
	}
	if body.SubjectID == uuid.Nil || body.OfferingID == uuid.Nil {
		writeAPIError(w, http.StatusUnprocessableEntity, "ENROLLMENT_VALIDATION_FAILED", "subject_id and offering_id are required")
		return
	}

	created, err := c.admission.Admit(r.Context(), services.AdmitDTO{
		SubjectID:  body.SubjectID,
		OfferingID: body.OfferingID,
		SlotID:     body.SlotID,
		Delivery:   workflow.DeliveryMethod(body.Delivery),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mappers.RequestToListItem(created))
}

func (c *EnrollmentAPIController) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "ENROLLMENT_INVALID_ID", "invalid request id")
		return
	}

	entity, err := c.requests.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mappers.RequestToListItem(entity))
}

func (c *EnrollmentAPIController) List(w http.ResponseWriter, r *http.Request) {
	params := &request.FindParams{Limit: 20}

	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 100 {
			params.Limit = parsed
		}
	}
	if v := strings.TrimSpace(q.Get("offset")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			params.Offset = parsed
		}
	}
	if v := strings.TrimSpace(q.Get("subject_id")); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "ENROLLMENT_INVALID_ID", "invalid subject_id")
			return
		}
		params.SubjectID = id
	}
	if v := strings.TrimSpace(q.Get("offering_id")); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "ENROLLMENT_INVALID_ID", "invalid offering_id")
			return
		}
		params.OfferingID = id
	}
	if v := strings.TrimSpace(q.Get("domain")); v != "" {
		params.Domain = workflow.Domain(v)
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		params.Status = workflow.State(v)
	}

	items, total, err := c.requests.GetPaginated(r.Context(), params)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]mappers.RequestListItem, 0, len(items))
	for _, item := range items {
		out = append(out, mappers.RequestToListItem(item))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": out,
		"total": total,
	})
}

type transitionBody struct {
	Reason         string `json:"reason"`
	Notes          string `json:"notes"`
	TicketVerified bool   `json:"ticket_verified"`
}

func (c *EnrollmentAPIController) Transition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "ENROLLMENT_INVALID_ID", "invalid request id")
		return
	}
	action := workflow.Action(mux.Vars(r)["action"])

	var body transitionBody
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeAPIError(w, http.StatusBadRequest, "ENROLLMENT_INVALID_JSON", "invalid json")
			return
		}
	}

	updated, err := c.requests.Transition(r.Context(), id, action, services.TransitionPayload{
		Reason:         body.Reason,
		Notes:          body.Notes,
		TicketVerified: body.TicketVerified,
	}, actorFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mappers.RequestToListItem(updated))
}

func (c *EnrollmentAPIController) MarkPaymentReceived(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "ENROLLMENT_INVALID_ID", "invalid request id")
		return
	}

	updated, err := c.requests.MarkPaymentReceived(r.Context(), id, actorFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mappers.RequestToListItem(updated))
}

type cancelBody struct {
	Reason string `json:"reason"`
}

func (c *EnrollmentAPIController) ForceCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "ENROLLMENT_INVALID_ID", "invalid request id")
		return
	}

	var body cancelBody
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeAPIError(w, http.StatusBadRequest, "ENROLLMENT_INVALID_JSON", "invalid json")
			return
		}
	}

	rec, err := c.cancellation.ForceCancel(r.Context(), id, body.Reason, actorFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mappers.CancellationToResult(rec))
}
