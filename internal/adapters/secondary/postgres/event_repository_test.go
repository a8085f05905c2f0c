package postgres

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/event-attendance-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-attendance-backend/internal/core/errors"
	"github.com/lorrc/event-attendance-backend/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func createTestEvent(t *testing.T, eventRepo ports.EventRepository, creator *domain.User, category string, date time.Time) *domain.Event {
	t.Helper()

	event, err := domain.NewEvent(domain.EventParams{
		Title:     "Event " + uuid.NewString()[:8],
		Date:      date,
		Category:  category,
		CreatorID: creator.ID,
	})
	require.NoError(t, err)

	created, err := eventRepo.Create(context.Background(), event)
	require.NoError(t, err, "Failed to create event")
	return created
}

// attendingCount returns how many attendee sets contain userID.
func attendingCount(t *testing.T, userID uuid.UUID) int {
	t.Helper()

	var n int
	err := testPool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM event_attendees WHERE user_id = $1`, userID.String(),
	).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestEventRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	eventRepo, userRepo := newTestRepos(t)

	creator := createTestUser(t, userRepo, "Creator")
	created := createTestEvent(t, eventRepo, creator, "tech", time.Now().Add(48*time.Hour))

	assert.Equal(t, creator.ID, created.Creator.ID)
	assert.Equal(t, "Creator", created.Creator.Name)
	assert.Empty(t, created.Attendees)
	assert.Zero(t, created.AttendanceVersion)

	found, err := eventRepo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, found.Title)

	_, err = eventRepo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrEventNotFound)
}

func TestEventRepository_Create_UnknownCreator(t *testing.T) {
	eventRepo, _ := newTestRepos(t)

	event, err := domain.NewEvent(domain.EventParams{
		Title:     "Orphan",
		Date:      time.Now(),
		Category:  "tech",
		CreatorID: uuid.New(),
	})
	require.NoError(t, err)

	_, err = eventRepo.Create(context.Background(), event)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestEventRepository_JoinLeave(t *testing.T) {
	ctx := context.Background()
	eventRepo, userRepo := newTestRepos(t)

	creator := createTestUser(t, userRepo, "Creator")
	user := createTestUser(t, userRepo, "Attendee")
	first := createTestEvent(t, eventRepo, creator, "social", time.Now().Add(24*time.Hour))
	second := createTestEvent(t, eventRepo, creator, "social", time.Now().Add(72*time.Hour))

	t.Run("join adds the user and bumps the version", func(t *testing.T) {
		result, err := eventRepo.AddAttendee(ctx, first.ID, user.ID)
		require.NoError(t, err)

		assert.True(t, result.Changed)
		assert.Equal(t, int64(1), result.Event.AttendanceVersion)
		require.Len(t, result.Event.Attendees, 1)
		assert.Equal(t, domain.UserInfo{ID: user.ID, Name: "Attendee", Email: user.Email}, result.Event.Attendees[0])
	})

	t.Run("rejoin is a no-op", func(t *testing.T) {
		result, err := eventRepo.AddAttendee(ctx, first.ID, user.ID)
		require.NoError(t, err)

		assert.False(t, result.Changed)
		assert.Equal(t, int64(1), result.Event.AttendanceVersion)
		assert.Len(t, result.Event.Attendees, 1)
	})

	t.Run("joining another event is rejected", func(t *testing.T) {
		_, err := eventRepo.AddAttendee(ctx, second.ID, user.ID)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyAttending)

		unchanged, err := eventRepo.GetByID(ctx, second.ID)
		require.NoError(t, err)
		assert.Empty(t, unchanged.Attendees)
		assert.Zero(t, unchanged.AttendanceVersion)
	})

	t.Run("already attending wins over unknown event", func(t *testing.T) {
		_, err := eventRepo.AddAttendee(ctx, uuid.New(), user.ID)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyAttending)
	})

	t.Run("leaving a non-member event is a no-op", func(t *testing.T) {
		result, err := eventRepo.RemoveAttendee(ctx, second.ID, user.ID)
		require.NoError(t, err)
		assert.False(t, result.Changed)
		assert.Zero(t, result.Event.AttendanceVersion)
	})

	t.Run("leave then join elsewhere", func(t *testing.T) {
		result, err := eventRepo.RemoveAttendee(ctx, first.ID, user.ID)
		require.NoError(t, err)
		assert.True(t, result.Changed)
		assert.Empty(t, result.Event.Attendees)
		assert.Equal(t, int64(2), result.Event.AttendanceVersion)

		joined, err := eventRepo.AddAttendee(ctx, second.ID, user.ID)
		require.NoError(t, err)
		assert.True(t, joined.Event.HasAttendee(user.ID))
		assert.Equal(t, 1, attendingCount(t, user.ID))
	})

	t.Run("unknown event", func(t *testing.T) {
		other := createTestUser(t, userRepo, "Other")

		_, err := eventRepo.AddAttendee(ctx, uuid.New(), other.ID)
		assert.ErrorIs(t, err, apperrors.ErrEventNotFound)

		_, err = eventRepo.RemoveAttendee(ctx, uuid.New(), other.ID)
		assert.ErrorIs(t, err, apperrors.ErrEventNotFound)
	})
}

func TestEventRepository_AttendeeOrder(t *testing.T) {
	ctx := context.Background()
	eventRepo, userRepo := newTestRepos(t)

	creator := createTestUser(t, userRepo, "Creator")
	event := createTestEvent(t, eventRepo, creator, "music", time.Now().Add(24*time.Hour))

	var want []uuid.UUID
	for i := 0; i < 3; i++ {
		u := createTestUser(t, userRepo, "Fan")
		_, err := eventRepo.AddAttendee(ctx, event.ID, u.ID)
		require.NoError(t, err)
		want = append(want, u.ID)
	}

	found, err := eventRepo.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, want, found.AttendeeIDs())
	assert.Equal(t, int64(3), found.AttendanceVersion)
}

func TestEventRepository_ConcurrentJoinsBySameUser(t *testing.T) {
	ctx := context.Background()
	eventRepo, userRepo := newTestRepos(t)

	creator := createTestUser(t, userRepo, "Creator")
	user := createTestUser(t, userRepo, "Racer")

	const n = 8
	events := make([]*domain.Event, n)
	for i := range events {
		events[i] = createTestEvent(t, eventRepo, creator, "race", time.Now().Add(time.Duration(i+1)*time.Hour))
	}

	var successes, rejected atomic.Int32
	var g errgroup.Group
	for _, event := range events {
		g.Go(func() error {
			_, err := eventRepo.AddAttendee(ctx, event.ID, user.ID)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, apperrors.ErrAlreadyAttending):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(n-1), rejected.Load())
	assert.Equal(t, 1, attendingCount(t, user.ID))
}

func TestEventRepository_ConcurrentJoinsByManyUsers(t *testing.T) {
	ctx := context.Background()
	eventRepo, userRepo := newTestRepos(t)

	creator := createTestUser(t, userRepo, "Creator")
	event := createTestEvent(t, eventRepo, creator, "crowd", time.Now().Add(time.Hour))

	const n = 10
	users := make([]*domain.User, n)
	for i := range users {
		users[i] = createTestUser(t, userRepo, "Crowd")
	}

	var g errgroup.Group
	for _, u := range users {
		g.Go(func() error {
			_, err := eventRepo.AddAttendee(ctx, event.ID, u.ID)
			return err
		})
	}
	require.NoError(t, g.Wait())

	found, err := eventRepo.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Len(t, found.Attendees, n)
	assert.Equal(t, int64(n), found.AttendanceVersion)
}

func TestEventRepository_List(t *testing.T) {
	ctx := context.Background()
	eventRepo, userRepo := newTestRepos(t)

	creator := createTestUser(t, userRepo, "Creator")
	category := "list-" + uuid.NewString()[:8]

	base := time.Date(2030, 3, 10, 12, 0, 0, 0, time.UTC)
	late := createTestEvent(t, eventRepo, creator, category, base.Add(48*time.Hour))
	early := createTestEvent(t, eventRepo, creator, category, base)
	middle := createTestEvent(t, eventRepo, creator, category, base.Add(24*time.Hour))

	attendee := createTestUser(t, userRepo, "Attendee")
	_, err := eventRepo.AddAttendee(ctx, middle.ID, attendee.ID)
	require.NoError(t, err)

	t.Run("category only, sorted by date", func(t *testing.T) {
		events, err := eventRepo.List(ctx, domain.EventFilter{Category: &category})
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, early.ID, events[0].ID)
		assert.Equal(t, middle.ID, events[1].ID)
		assert.Equal(t, late.ID, events[2].ID)
		assert.True(t, events[1].HasAttendee(attendee.ID))
		assert.Empty(t, events[0].Attendees)
	})

	t.Run("start bound alone", func(t *testing.T) {
		start := base.Add(24 * time.Hour)
		events, err := eventRepo.List(ctx, domain.EventFilter{Category: &category, StartDate: &start})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, middle.ID, events[0].ID)
	})

	t.Run("inclusive range", func(t *testing.T) {
		start := base
		end := base.Add(24 * time.Hour)
		events, err := eventRepo.List(ctx, domain.EventFilter{Category: &category, StartDate: &start, EndDate: &end})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, early.ID, events[0].ID)
		assert.Equal(t, middle.ID, events[1].ID)
	})

	t.Run("no match", func(t *testing.T) {
		missing := "missing-" + uuid.NewString()
		events, err := eventRepo.List(ctx, domain.EventFilter{Category: &missing})
		require.NoError(t, err)
		assert.NotNil(t, events)
		assert.Empty(t, events)
	})
}

func TestEventRepository_Timeout(t *testing.T) {
	eventRepo, _ := newTestRepos(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := eventRepo.GetByID(ctx, uuid.New())
	assert.True(t, apperrors.IsTransient(err), "expected transient error, got %v", err)
}
