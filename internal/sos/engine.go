// Package sos runs the per-alert escalation state machine: ring the parent
// through the room's call channel first and, if unanswered, instruct the
// child's device to dial the emergency number.
package sos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"familink-service/internal/access"
	"familink-service/internal/models"
	"familink-service/internal/repositories"
	"familink-service/internal/telemetry"
)

// EventBus decouples alert notifications from the transport's concrete
// broadcast API; the websocket hub implements it in production and tests
// supply a fake.
type EventBus interface {
	RoomSignal(roomID int64, event models.Event)
	ToParent(parentID int64, event models.Event)
	ToChild(childID int64, event models.Event)
}

// Config tunes the escalation behavior.
type Config struct {
	RetryInterval     time.Duration
	MaxParentAttempts int
	EmergencyNumber   string
}

// DefaultConfig matches the reference escalation behavior.
func DefaultConfig() Config {
	return Config{
		RetryInterval:     30 * time.Second,
		MaxParentAttempts: 2,
		EmergencyNumber:   "112",
	}
}

// Engine drives SOS alerts through their lifecycle. Every timer callback
// reloads the alert from the store before acting, and every mutation is a
// status-guarded atomic update, so stale firings degrade to no-ops.
type Engine struct {
	alerts repositories.AlertRepository
	rooms  repositories.RoomRepository
	links  repositories.LinkRepository
	bus    EventBus
	sched  Scheduler
	audit  *telemetry.AuditEmitter
	cfg    Config
	log    zerolog.Logger
}

// NewEngine constructs the escalation engine.
func NewEngine(
	alerts repositories.AlertRepository,
	rooms repositories.RoomRepository,
	links repositories.LinkRepository,
	bus EventBus,
	sched Scheduler,
	audit *telemetry.AuditEmitter,
	cfg Config,
	log zerolog.Logger,
) *Engine {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultConfig().RetryInterval
	}
	if cfg.MaxParentAttempts <= 0 {
		cfg.MaxParentAttempts = DefaultConfig().MaxParentAttempts
	}
	if cfg.EmergencyNumber == "" {
		cfg.EmergencyNumber = DefaultConfig().EmergencyNumber
	}
	return &Engine{
		alerts: alerts,
		rooms:  rooms,
		links:  links,
		bus:    bus,
		sched:  sched,
		audit:  audit,
		cfg:    cfg,
		log:    log,
	}
}

// TriggerLocation is the child device position captured at trigger time.
type TriggerLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Trigger raises an alert for a child. Only the child itself may trigger.
// Re-triggering while an alert is active returns the existing alert
// unchanged, so repeated button presses cannot storm.
func (e *Engine) Trigger(ctx context.Context, childID int64, actor models.Principal, location *TriggerLocation) (models.SosAlert, error) {
	if actor.Kind != models.PrincipalChild || actor.ID != childID {
		return models.SosAlert{}, access.ErrForbidden
	}

	if existing, err := e.alerts.ActiveAlertForChild(ctx, childID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repositories.ErrAlertNotFound) {
		return models.SosAlert{}, err
	}

	parentID, err := e.links.PrimaryParent(ctx, childID)
	if err != nil {
		return models.SosAlert{}, err
	}

	// rooms are a precondition, never auto-created here
	room, err := e.rooms.ActiveRoomForPair(ctx, parentID, childID)
	if err != nil {
		return models.SosAlert{}, err
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"room_id":  room.ID,
		"location": location,
	})

	alert, err := e.alerts.CreateAlert(ctx, models.SosAlert{
		ChildID:            childID,
		ParentID:           parentID,
		RoomID:             room.ID,
		Status:             models.AlertCallingParent,
		ParentCallAttempts: 1,
		Metadata:           metadata,
	})
	if err != nil {
		return models.SosAlert{}, err
	}

	if _, err := e.alerts.AppendCallAttempt(ctx, models.CallAttempt{
		AlertID:  alert.ID,
		CallType: models.CallParent,
		Status:   "RINGING",
	}); err != nil {
		e.log.Warn().Err(err).Int64("alert_id", alert.ID).Msg("failed to append call history")
	}

	e.ringParent(alert)
	e.audit.EmitAlertTransition(ctx, alert.ID, childID, string(models.AlertCallingParent), "triggered")
	e.log.Info().Int64("alert_id", alert.ID).Int64("child_id", childID).Msg("sos alert triggered")

	e.sched.Schedule(alert.ID, e.cfg.RetryInterval, func() {
		e.checkCallStatus(context.Background(), alert.ID)
	})
	return alert, nil
}

func (e *Engine) ringParent(alert models.SosAlert) {
	e.bus.RoomSignal(alert.RoomID, models.Event{
		Type:       models.EventSignal,
		RoomID:     alert.RoomID,
		SignalType: models.SignalSosCallOffer,
		Alert:      &alert,
	})
	e.bus.ToParent(alert.ParentID, models.Event{
		Type:  models.EventSosCall,
		Alert: &alert,
	})
}

// checkCallStatus is the delayed re-check. A firing that finds the alert
// already terminal or answered is treated as success and does nothing.
func (e *Engine) checkCallStatus(ctx context.Context, alertID int64) {
	alert, err := e.alerts.GetAlert(ctx, alertID)
	if err != nil {
		e.log.Warn().Err(err).Int64("alert_id", alertID).Msg("recheck failed to load alert")
		return
	}
	if alert.Status.Terminal() {
		return
	}

	if alert.ParentCallAttempts < e.cfg.MaxParentAttempts {
		ok, err := e.alerts.IncrementParentAttempts(ctx, alertID, models.AlertCallingParent)
		if err != nil {
			e.log.Warn().Err(err).Int64("alert_id", alertID).Msg("recheck increment failed")
			return
		}
		if !ok {
			// lost the race against a resolution, nothing to do
			return
		}
		if _, err := e.alerts.AppendCallAttempt(ctx, models.CallAttempt{
			AlertID:  alertID,
			CallType: models.CallParent,
			Status:   "RETRY",
		}); err != nil {
			e.log.Warn().Err(err).Int64("alert_id", alertID).Msg("failed to append call history")
		}

		alert.ParentCallAttempts++
		e.ringParent(alert)
		e.audit.EmitAlertTransition(ctx, alertID, alert.ChildID, string(models.AlertCallingParent),
			fmt.Sprintf("retry %d", alert.ParentCallAttempts))

		e.sched.Schedule(alertID, e.cfg.RetryInterval, func() {
			e.checkCallStatus(context.Background(), alertID)
		})
		return
	}

	e.callEmergency(ctx, alertID)
}

// callEmergency escalates to the child's native dialer.
func (e *Engine) callEmergency(ctx context.Context, alertID int64) {
	alert, err := e.alerts.GetAlert(ctx, alertID)
	if err != nil {
		e.log.Warn().Err(err).Int64("alert_id", alertID).Msg("escalation failed to load alert")
		return
	}
	if alert.Status.Terminal() {
		return
	}

	ok, err := e.alerts.AdvanceStatus(ctx, alertID, models.ActiveAlertStatuses, models.AlertCallingEmergency)
	if err != nil || !ok {
		if err != nil {
			e.log.Warn().Err(err).Int64("alert_id", alertID).Msg("escalation transition failed")
		}
		return
	}
	if _, err := e.alerts.IncrementEmergencyAttempts(ctx, alertID, models.AlertCallingEmergency); err != nil {
		e.log.Warn().Err(err).Int64("alert_id", alertID).Msg("escalation increment failed")
	}

	e.bus.ToChild(alert.ChildID, models.Event{
		Type:        models.EventSosEmergency,
		Alert:       &alert,
		PhoneNumber: e.cfg.EmergencyNumber,
	})

	if _, err := e.alerts.AppendCallAttempt(ctx, models.CallAttempt{
		AlertID:     alertID,
		CallType:    models.CallEmergency,
		Status:      "DIALED",
		PhoneNumber: e.cfg.EmergencyNumber,
	}); err != nil {
		e.log.Warn().Err(err).Int64("alert_id", alertID).Msg("failed to append call history")
	}

	if _, err := e.alerts.AdvanceStatus(ctx, alertID, []models.AlertStatus{models.AlertCallingEmergency}, models.AlertEmergencyCalled); err != nil {
		e.log.Warn().Err(err).Int64("alert_id", alertID).Msg("escalation finalize failed")
		return
	}
	e.sched.Cancel(alertID)
	e.audit.EmitAlertTransition(ctx, alertID, alert.ChildID, string(models.AlertEmergencyCalled), e.cfg.EmergencyNumber)
	e.log.Info().Int64("alert_id", alertID).Msg("sos escalated to emergency call")
}

// MarkParentAnswered settles the alert when the parent picks up the call.
func (e *Engine) MarkParentAnswered(ctx context.Context, alertID int64, actor models.Principal) (models.SosAlert, error) {
	alert, err := e.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return models.SosAlert{}, err
	}
	if actor.Kind != models.PrincipalParent || actor.ID != alert.ParentID {
		return models.SosAlert{}, access.ErrForbidden
	}

	ok, err := e.alerts.MarkResolved(ctx, alertID, models.AlertParentAnswered, resolvedBy(actor), time.Now())
	if err != nil {
		return models.SosAlert{}, err
	}
	if ok {
		e.sched.Cancel(alertID)
		if err := e.alerts.MarkLatestParentAttemptAnswered(ctx, alertID); err != nil {
			e.log.Warn().Err(err).Int64("alert_id", alertID).Msg("failed to mark call answered")
		}
		e.notifyResolved(ctx, alertID, alert.ChildID, models.AlertParentAnswered)
	}
	return e.alerts.GetAlert(ctx, alertID)
}

// Resolve closes the alert explicitly.
func (e *Engine) Resolve(ctx context.Context, alertID int64, actor models.Principal) (models.SosAlert, error) {
	return e.settle(ctx, alertID, actor, models.AlertResolved)
}

// Cancel dismisses the alert without resolution.
func (e *Engine) Cancel(ctx context.Context, alertID int64, actor models.Principal) (models.SosAlert, error) {
	return e.settle(ctx, alertID, actor, models.AlertCancelled)
}

func (e *Engine) settle(ctx context.Context, alertID int64, actor models.Principal, status models.AlertStatus) (models.SosAlert, error) {
	alert, err := e.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return models.SosAlert{}, err
	}
	if err := e.assertAlertActor(ctx, alert, actor); err != nil {
		return models.SosAlert{}, err
	}

	ok, err := e.alerts.MarkResolved(ctx, alertID, status, resolvedBy(actor), time.Now())
	if err != nil {
		return models.SosAlert{}, err
	}
	if ok {
		e.sched.Cancel(alertID)
		e.notifyResolved(ctx, alertID, alert.ChildID, status)
	}
	return e.alerts.GetAlert(ctx, alertID)
}

func (e *Engine) notifyResolved(ctx context.Context, alertID, childID int64, status models.AlertStatus) {
	alert, err := e.alerts.GetAlert(ctx, alertID)
	if err != nil {
		e.log.Warn().Err(err).Int64("alert_id", alertID).Msg("failed to reload resolved alert")
		return
	}
	e.bus.ToChild(childID, models.Event{Type: models.EventSosResolved, Alert: &alert})
	e.audit.EmitAlertTransition(ctx, alertID, childID, string(status), "")
}

// ActiveAlert returns the child's non-terminal alert, if any.
func (e *Engine) ActiveAlert(ctx context.Context, childID int64, actor models.Principal) (models.SosAlert, error) {
	if err := e.assertChildReader(ctx, childID, actor); err != nil {
		return models.SosAlert{}, err
	}
	return e.alerts.ActiveAlertForChild(ctx, childID)
}

// AlertHistory returns the child's alerts newest first.
func (e *Engine) AlertHistory(ctx context.Context, childID int64, actor models.Principal) ([]models.SosAlert, error) {
	if err := e.assertChildReader(ctx, childID, actor); err != nil {
		return nil, err
	}
	return e.alerts.ListAlertsForChild(ctx, childID)
}

// assertAlertActor admits the alert's child, its parent or any linked
// parent, and admins.
func (e *Engine) assertAlertActor(ctx context.Context, alert models.SosAlert, actor models.Principal) error {
	switch actor.Kind {
	case models.PrincipalAdmin:
		return nil
	case models.PrincipalChild:
		if actor.ID == alert.ChildID {
			return nil
		}
	case models.PrincipalParent:
		if actor.ID == alert.ParentID {
			return nil
		}
		linked, err := e.links.IsLinked(ctx, alert.ChildID, actor.ID)
		if err != nil {
			return err
		}
		if linked {
			return nil
		}
	}
	return access.ErrForbidden
}

func (e *Engine) assertChildReader(ctx context.Context, childID int64, actor models.Principal) error {
	switch actor.Kind {
	case models.PrincipalAdmin:
		return nil
	case models.PrincipalChild:
		if actor.ID == childID {
			return nil
		}
	case models.PrincipalParent:
		linked, err := e.links.IsLinked(ctx, childID, actor.ID)
		if err != nil {
			return err
		}
		if linked {
			return nil
		}
	}
	return access.ErrForbidden
}

func resolvedBy(actor models.Principal) string {
	return fmt.Sprintf("%s:%d", actor.Kind, actor.ID)
}
