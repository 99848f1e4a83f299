package service

import (
	"context"
	"strings"
	"time"

	"tiger-life/internal/models"
	"tiger-life/internal/store"
	"tiger-life/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventService runs the submit/approve/revoke workflow for campus events
type EventService struct {
	store  EventStore
	cache  Cache
	logger *zap.Logger
}

// NewEventService creates a new event service. cache may be nil.
func NewEventService(store EventStore, cache Cache) *EventService {
	return &EventService{
		store:  store,
		cache:  cacheOrNoop(cache),
		logger: util.ComponentLogger("events"),
	}
}

// EventRequest holds the organizer-editable fields of an event
type EventRequest struct {
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	EventDatetime time.Time `json:"event_datetime"`
	Location      string    `json:"location"`
}

func (r *EventRequest) validate() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Location = strings.TrimSpace(r.Location)
	if r.Title == "" {
		return validationError("Title is required")
	}
	if r.Location == "" {
		return validationError("Location is required")
	}
	if r.EventDatetime.IsZero() {
		return validationError("Event date and time are required")
	}
	return nil
}

// Visible reports whether a viewer may see an event: admins see everything,
// everyone else sees approved events plus their own submissions.
func Visible(e *models.Event, sess Session) bool {
	if sess.IsAdmin || e.IsApproved {
		return true
	}
	return sess.Authenticated() && e.OrganizerID == sess.UserID
}

func visibilityCacheKey(sess Session) string {
	switch {
	case sess.IsAdmin:
		return "admin"
	case sess.Authenticated():
		return "viewer:" + sess.UserID.String()
	default:
		return "public"
	}
}

// Submit creates an event owned by the caller. Submissions always start
// pending, whoever submits them.
func (s *EventService) Submit(ctx context.Context, sess Session, req *EventRequest) (*models.Event, error) {
	ctx, span := util.StartSpan(ctx, "EventService.Submit")
	defer span.End()

	if err := requireAuth(sess); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	event := &models.Event{
		Title:         req.Title,
		Description:   req.Description,
		EventDatetime: req.EventDatetime,
		Location:      req.Location,
		OrganizerID:   sess.UserID,
		IsApproved:    false,
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		util.FailSpan(span, err)
		return nil, backendError("Failed to submit event", err)
	}

	invalidate(ctx, s.cache, s.logger, NamespaceEvents)
	s.logger.Info("Event submitted",
		zap.String("event_id", event.ID.String()),
		zap.String("organizer_id", sess.UserID.String()))
	return event, nil
}

// SetApproval approves or revokes an event. Only admins may do this; revoking
// puts the event back to pending.
func (s *EventService) SetApproval(ctx context.Context, sess Session, eventID uuid.UUID, approve bool) (*models.Event, error) {
	ctx, span := util.StartSpan(ctx, "EventService.SetApproval")
	defer span.End()

	if !sess.IsAdmin {
		util.EventApprovalsTotal.WithLabelValues("denied").Inc()
		return nil, permissionError("Only admins can approve events")
	}

	current, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, lookupError("Event not found", "Failed to load event", err)
	}

	eventType, outcome := models.EventTypeEventRevoked, "revoked"
	if approve {
		eventType, outcome = models.EventTypeEventApproved, "approved"
	}
	announce, err := models.NewOutboxMessage(&models.EventApprovalEvent{
		BaseEvent:     models.NewBaseEvent(eventType),
		CampusEventID: current.ID,
		OrganizerID:   current.OrganizerID,
		ActorID:       sess.UserID,
		Approved:      approve,
	})
	if err != nil {
		s.logger.Error("Failed to encode approval event", zap.Error(err))
	}

	event, err := s.store.SetEventApproval(ctx, eventID, approve, announce)
	if err != nil {
		util.FailSpan(span, err)
		return nil, lookupError("Event not found", "Failed to update event", err)
	}

	invalidate(ctx, s.cache, s.logger, NamespaceEvents)
	util.EventApprovalsTotal.WithLabelValues(outcome).Inc()

	s.logger.Info("Event approval changed",
		zap.String("event_id", event.ID.String()),
		zap.Bool("approved", approve))
	return event, nil
}

// ParseEventStatus validates an approval-state filter. "all" and "" both
// mean no filter.
func ParseEventStatus(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all":
		return store.EventStatusAll, nil
	case store.EventStatusPending:
		return store.EventStatusPending, nil
	case store.EventStatusApproved:
		return store.EventStatusApproved, nil
	default:
		return "", validationError("Status must be one of all, pending or approved")
	}
}

// List returns the events the caller may see, soonest first. status narrows
// the list to pending or approved events; the visibility rule still applies,
// so non-admins only ever see their own pending events.
func (s *EventService) List(ctx context.Context, sess Session, status string) ([]models.Event, error) {
	ctx, span := util.StartSpan(ctx, "EventService.List")
	defer span.End()

	status, err := ParseEventStatus(status)
	if err != nil {
		return nil, err
	}

	key := visibilityCacheKey(sess)
	if status != store.EventStatusAll {
		key += ":" + status
	}
	events, err := readThrough(ctx, s.cache, s.logger, NamespaceEvents, key, func() ([]models.Event, error) {
		return s.store.ListEvents(ctx, store.EventFilter{ViewerID: sess.viewerID(), IsAdmin: sess.IsAdmin, Status: status})
	})
	if err != nil {
		util.FailSpan(span, err)
		return nil, backendError("Failed to load events", err)
	}

	// the same rule the query applies, enforced again on whatever came back
	visible := make([]models.Event, 0, len(events))
	for i := range events {
		if Visible(&events[i], sess) {
			visible = append(visible, events[i])
		}
	}
	return visible, nil
}

// Get returns one event if the caller may see it. Hidden events are reported
// as missing.
func (s *EventService) Get(ctx context.Context, sess Session, id uuid.UUID) (*models.Event, error) {
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, lookupError("Event not found", "Failed to load event", err)
	}
	if !Visible(event, sess) {
		return nil, notFoundError("Event not found")
	}
	return event, nil
}

// Update edits an event's details. The organizer and admins may edit; the
// approval flag is left alone.
func (s *EventService) Update(ctx context.Context, sess Session, id uuid.UUID, req *EventRequest) (*models.Event, error) {
	ctx, span := util.StartSpan(ctx, "EventService.Update")
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := s.authorizeOwner(ctx, sess, id); err != nil {
		return nil, err
	}

	event := &models.Event{
		ID:            id,
		Title:         req.Title,
		Description:   req.Description,
		EventDatetime: req.EventDatetime,
		Location:      req.Location,
	}
	if err := s.store.UpdateEventDetails(ctx, event); err != nil {
		util.FailSpan(span, err)
		return nil, backendError("Failed to update event", err)
	}

	invalidate(ctx, s.cache, s.logger, NamespaceEvents)
	return event, nil
}

// Delete removes an event. The organizer and admins may delete.
func (s *EventService) Delete(ctx context.Context, sess Session, id uuid.UUID) error {
	ctx, span := util.StartSpan(ctx, "EventService.Delete")
	defer span.End()

	if err := s.authorizeOwner(ctx, sess, id); err != nil {
		return err
	}
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		util.FailSpan(span, err)
		return backendError("Failed to delete event", err)
	}

	invalidate(ctx, s.cache, s.logger, NamespaceEvents)
	s.logger.Info("Event deleted", zap.String("event_id", id.String()))
	return nil
}

func (s *EventService) authorizeOwner(ctx context.Context, sess Session, id uuid.UUID) error {
	if err := requireAuth(sess); err != nil {
		return err
	}
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return lookupError("Event not found", "Failed to load event", err)
	}
	if !sess.IsAdmin && event.OrganizerID != sess.UserID {
		return permissionError("Only the organizer or an admin can change this event")
	}
	return nil
}

// InvalidateCache drops cached event lists. Called when the change feed
// reports an events row change made outside this process.
func (s *EventService) InvalidateCache(ctx context.Context) {
	invalidate(ctx, s.cache, s.logger, NamespaceEvents)
}
