package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/event-attendance-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-attendance-backend/internal/core/errors"
	"github.com/lorrc/event-attendance-backend/internal/core/ports"
	"github.com/lorrc/event-attendance-backend/internal/core/utils"
)

// EventRepository persists events and their attendee sets.
//
// Membership lives in event_attendees, keyed by user_id, so a user can be
// in at most one attendee set. Attendance mutations lock the caller's
// membership row first and the event row second; keeping that order in
// every transaction avoids lock cycles between concurrent join and leave.
type EventRepository struct {
	pool *pgxpool.Pool
	tm   *TransactionManager
}

var _ ports.EventRepository = (*EventRepository)(nil)

// NewEventRepository creates a new event repository.
func NewEventRepository(pool *pgxpool.Pool) ports.EventRepository {
	return &EventRepository{
		pool: pool,
		tm:   NewTransactionManager(pool),
	}
}

const eventSelect = `
	SELECT e.id, e.title, e.description, e.date, e.category,
	       e.attendance_version, e.created_at,
	       u.id, u.name, u.email
	FROM events e
	JOIN users u ON u.id = e.creator_id`

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var (
		id, creatorID pgtype.UUID
		event         domain.Event
	)
	err := row.Scan(
		&id, &event.Title, &event.Description, &event.Date, &event.Category,
		&event.AttendanceVersion, &event.CreatedAt,
		&creatorID, &event.Creator.Name, &event.Creator.Email,
	)
	if err != nil {
		return nil, err
	}
	event.ID = utils.FromUUID(id)
	event.Creator.ID = utils.FromUUID(creatorID)
	event.Date = event.Date.UTC()
	event.CreatedAt = event.CreatedAt.UTC()
	event.Attendees = []domain.UserInfo{}
	return &event, nil
}

// Create inserts a new event and returns it resolved.
func (r *EventRepository) Create(ctx context.Context, event *domain.Event) (*domain.Event, error) {
	var created *domain.Event
	err := r.tm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO events (id, title, description, date, category, creator_id, attendance_version, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, 0, $7)`,
			utils.ToUUID(event.ID), event.Title, event.Description, event.Date,
			event.Category, utils.ToUUID(event.Creator.ID), event.CreatedAt,
		)
		if err != nil {
			if isPgError(err, pgForeignKeyViolation) {
				return apperrors.ErrUserNotFound
			}
			return fmt.Errorf("insert event: %w", err)
		}

		created, err = loadEvent(ctx, tx, event.ID)
		return err
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return created, nil
}

// GetByID returns the resolved event or ErrEventNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	var event *domain.Event
	err := r.tm.WithReadOnlyTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		event, err = loadEvent(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return event, nil
}

// List returns events matching filter ordered by date, attendee sets
// resolved from the same snapshot.
func (r *EventRepository) List(ctx context.Context, filter domain.EventFilter) ([]*domain.Event, error) {
	var events []*domain.Event
	err := r.tm.WithReadOnlyTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, eventSelect+`
			WHERE ($1::text IS NULL OR e.category = $1)
			  AND ($2::timestamptz IS NULL OR e.date >= $2)
			  AND ($3::timestamptz IS NULL OR e.date <= $3)
			ORDER BY e.date ASC, e.created_at ASC`,
			utils.ToNullString(filter.Category),
			utils.ToNullTimestamptz(filter.StartDate),
			utils.ToNullTimestamptz(filter.EndDate),
		)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		defer rows.Close()

		byID := make(map[uuid.UUID]*domain.Event)
		ids := make([]string, 0)
		for rows.Next() {
			event, err := scanEvent(rows)
			if err != nil {
				return fmt.Errorf("scan event: %w", err)
			}
			events = append(events, event)
			byID[event.ID] = event
			ids = append(ids, event.ID.String())
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		attendees, err := tx.Query(ctx,
			`SELECT a.event_id, u.id, u.name, u.email
			 FROM event_attendees a
			 JOIN users u ON u.id = a.user_id
			 WHERE a.event_id = ANY($1::uuid[])
			 ORDER BY a.joined_at ASC, a.user_id ASC`,
			ids,
		)
		if err != nil {
			return fmt.Errorf("list attendees: %w", err)
		}
		defer attendees.Close()

		for attendees.Next() {
			var (
				eventID, userID pgtype.UUID
				info            domain.UserInfo
			)
			if err := attendees.Scan(&eventID, &userID, &info.Name, &info.Email); err != nil {
				return fmt.Errorf("scan attendee: %w", err)
			}
			info.ID = utils.FromUUID(userID)
			if event, ok := byID[utils.FromUUID(eventID)]; ok {
				event.Attendees = append(event.Attendees, info)
			}
		}
		return attendees.Err()
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	if events == nil {
		events = []*domain.Event{}
	}
	return events, nil
}

// AddAttendee adds userID to the attendee set of eventID.
//
// A user already attending a different event gets ErrAlreadyAttending; this
// check precedes the existence check on eventID. Joining the event the user
// already attends returns it with Changed false.
func (r *EventRepository) AddAttendee(ctx context.Context, eventID, userID uuid.UUID) (*domain.AttendanceResult, error) {
	var result *domain.AttendanceResult
	err := r.tm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		current, err := lockMembership(ctx, tx, userID)
		if err != nil {
			return err
		}
		if current != uuid.Nil && current != eventID {
			return apperrors.ErrAlreadyAttending
		}

		if err := lockEvent(ctx, tx, eventID); err != nil {
			return err
		}

		changed := false
		if current == uuid.Nil {
			tag, err := tx.Exec(ctx,
				`INSERT INTO event_attendees (user_id, event_id)
				 VALUES ($1, $2)
				 ON CONFLICT (user_id) DO NOTHING`,
				utils.ToUUID(userID), utils.ToUUID(eventID),
			)
			if err != nil {
				if isPgError(err, pgForeignKeyViolation) {
					return apperrors.ErrUserNotFound
				}
				return fmt.Errorf("insert attendee: %w", err)
			}

			if tag.RowsAffected() == 0 {
				// A concurrent join by the same user committed first.
				winner, err := lockMembership(ctx, tx, userID)
				if err != nil {
					return err
				}
				switch winner {
				case eventID:
				case uuid.Nil:
					return fmt.Errorf("%w: membership changed concurrently", apperrors.ErrConflict)
				default:
					return apperrors.ErrAlreadyAttending
				}
			} else {
				if err := bumpVersion(ctx, tx, eventID); err != nil {
					return err
				}
				changed = true
			}
		}

		event, err := loadEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		result = &domain.AttendanceResult{Event: event, Changed: changed}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return result, nil
}

// RemoveAttendee removes userID from the attendee set of eventID. A user who
// is not a member gets the event back with Changed false.
func (r *EventRepository) RemoveAttendee(ctx context.Context, eventID, userID uuid.UUID) (*domain.AttendanceResult, error) {
	var result *domain.AttendanceResult
	err := r.tm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := lockMembership(ctx, tx, userID); err != nil {
			return err
		}
		if err := lockEvent(ctx, tx, eventID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM event_attendees WHERE user_id = $1 AND event_id = $2`,
			utils.ToUUID(userID), utils.ToUUID(eventID),
		)
		if err != nil {
			return fmt.Errorf("delete attendee: %w", err)
		}

		changed := tag.RowsAffected() > 0
		if changed {
			if err := bumpVersion(ctx, tx, eventID); err != nil {
				return err
			}
		}

		event, err := loadEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		result = &domain.AttendanceResult{Event: event, Changed: changed}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return result, nil
}

// lockMembership returns the event userID currently attends, or uuid.Nil,
// holding a row lock on the membership until the transaction ends.
func lockMembership(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (uuid.UUID, error) {
	var eventID pgtype.UUID
	err := tx.QueryRow(ctx,
		`SELECT event_id FROM event_attendees WHERE user_id = $1 FOR UPDATE`,
		utils.ToUUID(userID),
	).Scan(&eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("lock membership: %w", err)
	}
	return utils.FromUUID(eventID), nil
}

// lockEvent takes a row lock on the event, serialising attendance
// changes per event.
func lockEvent(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) error {
	var version int64
	err := tx.QueryRow(ctx,
		`SELECT attendance_version FROM events WHERE id = $1 FOR UPDATE`,
		utils.ToUUID(eventID),
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrEventNotFound
		}
		return fmt.Errorf("lock event: %w", err)
	}
	return nil
}

func bumpVersion(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE events SET attendance_version = attendance_version + 1 WHERE id = $1`,
		utils.ToUUID(eventID),
	)
	if err != nil {
		return fmt.Errorf("bump attendance version: %w", err)
	}
	return nil
}

// loadEvent reads the resolved event through q.
func loadEvent(ctx context.Context, q DBTX, id uuid.UUID) (*domain.Event, error) {
	event, err := scanEvent(q.QueryRow(ctx, eventSelect+` WHERE e.id = $1`, utils.ToUUID(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT u.id, u.name, u.email
		 FROM event_attendees a
		 JOIN users u ON u.id = a.user_id
		 WHERE a.event_id = $1
		 ORDER BY a.joined_at ASC, a.user_id ASC`,
		utils.ToUUID(id),
	)
	if err != nil {
		return nil, fmt.Errorf("get attendees: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID pgtype.UUID
			info   domain.UserInfo
		)
		if err := rows.Scan(&userID, &info.Name, &info.Email); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		info.ID = utils.FromUUID(userID)
		event.Attendees = append(event.Attendees, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get attendees: %w", err)
	}
	return event, nil
}
