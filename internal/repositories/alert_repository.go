package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"familink-service/internal/models"
)

var ErrAlertNotFound = errors.New("alert not found")

const alertColumns = `id, child_id, parent_id, room_id, status, parent_call_attempts,
    emergency_call_attempts, resolved_at, resolved_by, metadata, created_at, updated_at`

// AlertRepository persists SOS alerts and their call history. All state
// transitions are field-level atomic updates guarded by the current status,
// so a stale timer losing the race simply affects zero rows.
type AlertRepository interface {
	CreateAlert(ctx context.Context, alert models.SosAlert) (models.SosAlert, error)
	GetAlert(ctx context.Context, alertID int64) (models.SosAlert, error)
	ActiveAlertForChild(ctx context.Context, childID int64) (models.SosAlert, error)
	ListAlertsForChild(ctx context.Context, childID int64) ([]models.SosAlert, error)
	AdvanceStatus(ctx context.Context, alertID int64, from []models.AlertStatus, to models.AlertStatus) (bool, error)
	IncrementParentAttempts(ctx context.Context, alertID int64, ifStatus models.AlertStatus) (bool, error)
	IncrementEmergencyAttempts(ctx context.Context, alertID int64, ifStatus models.AlertStatus) (bool, error)
	MarkResolved(ctx context.Context, alertID int64, status models.AlertStatus, resolvedBy string, at time.Time) (bool, error)
	AppendCallAttempt(ctx context.Context, attempt models.CallAttempt) (models.CallAttempt, error)
	MarkLatestParentAttemptAnswered(ctx context.Context, alertID int64) error
}

// AlertRepo is a sqlx implementation of AlertRepository.
type AlertRepo struct {
	db *sqlx.DB
}

// NewAlertRepo constructs an AlertRepo.
func NewAlertRepo(db *sqlx.DB) *AlertRepo {
	return &AlertRepo{db: db}
}

// CreateAlert inserts a new alert row.
func (r *AlertRepo) CreateAlert(ctx context.Context, alert models.SosAlert) (models.SosAlert, error) {
	var out models.SosAlert
	err := r.db.GetContext(ctx, &out,
		`INSERT INTO sos_alerts (child_id, parent_id, room_id, status, parent_call_attempts, emergency_call_attempts, metadata)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         RETURNING `+alertColumns,
		alert.ChildID, alert.ParentID, alert.RoomID, alert.Status,
		alert.ParentCallAttempts, alert.EmergencyCallAttempts, alert.Metadata)
	return out, err
}

// GetAlert fetches an alert with its ordered call history.
func (r *AlertRepo) GetAlert(ctx context.Context, alertID int64) (models.SosAlert, error) {
	var alert models.SosAlert
	err := r.db.GetContext(ctx, &alert, `SELECT `+alertColumns+` FROM sos_alerts WHERE id=$1`, alertID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SosAlert{}, ErrAlertNotFound
	}
	if err != nil {
		return models.SosAlert{}, err
	}
	if err := r.loadHistory(ctx, &alert); err != nil {
		return models.SosAlert{}, err
	}
	return alert, nil
}

// ActiveAlertForChild returns the child's alert in a non-terminal status.
func (r *AlertRepo) ActiveAlertForChild(ctx context.Context, childID int64) (models.SosAlert, error) {
	var alert models.SosAlert
	err := r.db.GetContext(ctx, &alert,
		`SELECT `+alertColumns+` FROM sos_alerts WHERE child_id=$1 AND status = ANY($2)`,
		childID, statusArray(models.ActiveAlertStatuses))
	if errors.Is(err, sql.ErrNoRows) {
		return models.SosAlert{}, ErrAlertNotFound
	}
	if err != nil {
		return models.SosAlert{}, err
	}
	if err := r.loadHistory(ctx, &alert); err != nil {
		return models.SosAlert{}, err
	}
	return alert, nil
}

// ListAlertsForChild returns the child's alerts newest first, without history.
func (r *AlertRepo) ListAlertsForChild(ctx context.Context, childID int64) ([]models.SosAlert, error) {
	var alerts []models.SosAlert
	err := r.db.SelectContext(ctx, &alerts,
		`SELECT `+alertColumns+` FROM sos_alerts WHERE child_id=$1 ORDER BY id DESC`, childID)
	return alerts, err
}

// AdvanceStatus moves the alert to a new status only if it is still in one
// of the expected states. Returns false when the compare-and-swap lost.
func (r *AlertRepo) AdvanceStatus(ctx context.Context, alertID int64, from []models.AlertStatus, to models.AlertStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sos_alerts SET status=$2, updated_at=NOW() WHERE id=$1 AND status = ANY($3)`,
		alertID, to, statusArray(from))
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

// IncrementParentAttempts bumps the parent attempt counter while the alert
// is still in the expected status.
func (r *AlertRepo) IncrementParentAttempts(ctx context.Context, alertID int64, ifStatus models.AlertStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sos_alerts SET parent_call_attempts = parent_call_attempts + 1, updated_at=NOW()
         WHERE id=$1 AND status=$2`, alertID, ifStatus)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

// IncrementEmergencyAttempts bumps the emergency attempt counter.
func (r *AlertRepo) IncrementEmergencyAttempts(ctx context.Context, alertID int64, ifStatus models.AlertStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sos_alerts SET emergency_call_attempts = emergency_call_attempts + 1, updated_at=NOW()
         WHERE id=$1 AND status=$2`, alertID, ifStatus)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

// MarkResolved stamps a terminal status with resolution metadata, only if
// the alert is still active.
func (r *AlertRepo) MarkResolved(ctx context.Context, alertID int64, status models.AlertStatus, resolvedBy string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sos_alerts SET status=$2, resolved_by=$3, resolved_at=$4, updated_at=NOW()
         WHERE id=$1 AND status = ANY($5)`,
		alertID, status, resolvedBy, at, statusArray(models.ActiveAlertStatuses))
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

// AppendCallAttempt adds an entry to the alert's call history.
func (r *AlertRepo) AppendCallAttempt(ctx context.Context, attempt models.CallAttempt) (models.CallAttempt, error) {
	var out models.CallAttempt
	err := r.db.GetContext(ctx, &out,
		`INSERT INTO call_attempts (alert_id, call_type, status, answered, phone_number)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING id, alert_id, call_type, status, answered, phone_number, created_at`,
		attempt.AlertID, attempt.CallType, attempt.Status, attempt.Answered, attempt.PhoneNumber)
	return out, err
}

// MarkLatestParentAttemptAnswered flips the newest unanswered parent call
// entry to answered.
func (r *AlertRepo) MarkLatestParentAttemptAnswered(ctx context.Context, alertID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE call_attempts SET answered = TRUE
         WHERE id = (SELECT id FROM call_attempts
                     WHERE alert_id=$1 AND call_type=$2 AND NOT answered
                     ORDER BY id DESC LIMIT 1)`,
		alertID, models.CallParent)
	return err
}

func (r *AlertRepo) loadHistory(ctx context.Context, alert *models.SosAlert) error {
	return r.db.SelectContext(ctx, &alert.CallHistory,
		`SELECT id, alert_id, call_type, status, answered, phone_number, created_at
         FROM call_attempts WHERE alert_id=$1 ORDER BY id`, alert.ID)
}

func statusArray(statuses []models.AlertStatus) pq.StringArray {
	arr := make(pq.StringArray, len(statuses))
	for i, s := range statuses {
		arr[i] = string(s)
	}
	return arr
}
