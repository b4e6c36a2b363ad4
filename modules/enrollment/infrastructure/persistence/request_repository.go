package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/request"
	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
	"github.com/alumnet-hq/alumnet/pkg/composables"
)

const requestColumns = `id, subject_id, offering_id, slot_id, domain, status, payment_state,
	delivery_method, amount::text, admin_notes, rejection_reason, version, created_at, last_transition_at`

type PgRequestRepository struct{}

func NewRequestRepository() request.Repository {
	return &PgRequestRepository{}
}

func (r *PgRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (request.WorkflowRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return request.WorkflowRequest{}, err
	}

	row := tx.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM enrollment_requests WHERE id = $1`,
		pgUUID(id),
	)
	entity, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return request.WorkflowRequest{}, request.ErrNotFound
		}
		return request.WorkflowRequest{}, gerrors.Wrap(err, "get request by id")
	}
	return entity, nil
}

func (r *PgRequestRepository) GetPaginated(ctx context.Context, params *request.FindParams) ([]request.WorkflowRequest, int64, error) {
	if params == nil {
		params = &request.FindParams{}
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, 0, err
	}

	where, args := requestFilters(params)

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	q := fmt.Sprintf(
		`SELECT %s FROM enrollment_requests %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		requestColumns, where, limit, offset,
	)
	rows, err := tx.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, gerrors.Wrap(err, "list requests")
	}
	defer rows.Close()

	var out []request.WorkflowRequest
	for rows.Next() {
		entity, err := scanRequest(rows)
		if err != nil {
			return nil, 0, gerrors.Wrap(err, "scan request")
		}
		out = append(out, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	countQ := `SELECT COUNT(*) FROM enrollment_requests ` + where
	if err := tx.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, gerrors.Wrap(err, "count requests")
	}

	return out, total, nil
}

func (r *PgRequestRepository) ExistsActive(ctx context.Context, subjectID, offeringID uuid.UUID) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM enrollment_requests
			WHERE subject_id = $1 AND offering_id = $2 AND NOT is_terminal
		)`,
		pgUUID(subjectID), pgUUID(offeringID),
	).Scan(&exists)
	if err != nil {
		return false, gerrors.Wrap(err, "check active request")
	}
	return exists, nil
}

func (r *PgRequestRepository) Create(ctx context.Context, entity request.WorkflowRequest) (request.WorkflowRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return request.WorkflowRequest{}, err
	}

	terminal, err := isTerminal(entity)
	if err != nil {
		return request.WorkflowRequest{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO enrollment_requests (
			id, subject_id, offering_id, slot_id, domain, status, payment_state,
			delivery_method, amount, admin_notes, rejection_reason, is_terminal,
			version, created_at, last_transition_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		pgUUID(entity.ID()),
		pgUUID(entity.SubjectID()),
		pgUUID(entity.OfferingID()),
		pgNullableUUID(entity.SlotID()),
		string(entity.Domain()),
		string(entity.Status()),
		string(entity.PaymentState()),
		string(entity.Delivery()),
		entity.Amount().String(),
		entity.AdminNotes(),
		entity.RejectionReason(),
		terminal,
		entity.Version(),
		entity.CreatedAt(),
		entity.LastTransitionAt(),
	)
	if err != nil {
		// The partial unique index closes the gap between the ExistsActive
		// read and this insert under concurrent admissions.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "enrollment_requests_active_uq" {
			return request.WorkflowRequest{}, request.ErrDuplicateActive
		}
		return request.WorkflowRequest{}, gerrors.Wrap(err, "insert request")
	}
	return entity, nil
}

func (r *PgRequestRepository) Update(ctx context.Context, entity request.WorkflowRequest) (request.WorkflowRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return request.WorkflowRequest{}, err
	}

	terminal, err := isTerminal(entity)
	if err != nil {
		return request.WorkflowRequest{}, err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE enrollment_requests SET
			status = $2, payment_state = $3, admin_notes = $4, rejection_reason = $5,
			is_terminal = $6, last_transition_at = $7, version = version + 1
		WHERE id = $1 AND version = $8`,
		pgUUID(entity.ID()),
		string(entity.Status()),
		string(entity.PaymentState()),
		entity.AdminNotes(),
		entity.RejectionReason(),
		terminal,
		entity.LastTransitionAt(),
		entity.Version(),
	)
	if err != nil {
		return request.WorkflowRequest{}, gerrors.Wrap(err, "update request")
	}
	if tag.RowsAffected() == 0 {
		// The row either vanished or moved on under us; both surface as a
		// conflict the caller can resolve by re-reading.
		return request.WorkflowRequest{}, request.ErrConcurrencyConflict
	}

	return request.Hydrate(
		entity.ID(), entity.SubjectID(), entity.OfferingID(), entity.SlotID(),
		entity.Domain(), entity.Status(), entity.PaymentState(), entity.Delivery(),
		entity.Amount(), entity.AdminNotes(), entity.RejectionReason(),
		entity.Version()+1, entity.CreatedAt(), entity.LastTransitionAt(),
	), nil
}

func isTerminal(entity request.WorkflowRequest) (bool, error) {
	table, err := workflow.TableFor(entity.Domain())
	if err != nil {
		return false, err
	}
	return table.Terminal(entity.Status()), nil
}

func requestFilters(params *request.FindParams) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if params.SubjectID != uuid.Nil {
		add("subject_id = $%d", pgUUID(params.SubjectID))
	}
	if params.OfferingID != uuid.Nil {
		add("offering_id = $%d", pgUUID(params.OfferingID))
	}
	if params.Domain != "" {
		add("domain = $%d", string(params.Domain))
	}
	if params.Status != "" {
		add("status = $%d", string(params.Status))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func scanRequest(row pgx.Row) (request.WorkflowRequest, error) {
	var (
		id, subjectID, offeringID pgtype.UUID
		slotID                    pgtype.UUID
		domain, status, payState  string
		delivery                  string
		amountText                string
		adminNotes, reason        string
		version                   int64
		createdAt, transitionedAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&id, &subjectID, &offeringID, &slotID, &domain, &status, &payState,
		&delivery, &amountText, &adminNotes, &reason, &version, &createdAt, &transitionedAt,
	); err != nil {
		return request.WorkflowRequest{}, err
	}

	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return request.WorkflowRequest{}, gerrors.Wrap(err, "parse amount")
	}

	return request.Hydrate(
		fromPgUUID(id),
		fromPgUUID(subjectID),
		fromPgUUID(offeringID),
		fromPgUUID(slotID),
		workflow.Domain(domain),
		workflow.State(status),
		request.PaymentState(payState),
		workflow.DeliveryMethod(delivery),
		amount,
		adminNotes,
		reason,
		version,
		createdAt.Time,
		transitionedAt.Time,
	), nil
}
