package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/terminbooking/internal/clock"
	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/repository/memory"
	"github.com/Domenick1991/terminbooking/internal/service/availability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Mock структуры

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) AcquireSlotLock(ctx context.Context, key domain.SlotKey, owner string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, owner, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) ReleaseSlotLock(ctx context.Context, key domain.SlotKey, owner string) error {
	args := m.Called(ctx, key, owner)
	return args.Error(0)
}

type MockAvailability struct {
	mock.Mock
}

func (m *MockAvailability) IsOpen(ctx context.Context, locationID, serviceID string, start time.Time) (*domain.Service, bool, error) {
	args := m.Called(ctx, locationID, serviceID, start)
	svc, _ := args.Get(0).(*domain.Service)
	return svc, args.Bool(1), args.Error(2)
}

func (m *MockAvailability) Invalidate(ctx context.Context, locationID, serviceID string, start time.Time) {
	m.Called(ctx, locationID, serviceID, start)
}

type MockMatcher struct {
	mock.Mock
}

func (m *MockMatcher) EnqueueMatch(ctx context.Context, slot domain.FreedSlot) error {
	args := m.Called(ctx, slot)
	return args.Error(0)
}

// memLocker is a process-local set-if-absent lock.
type memLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLocker() *memLocker { return &memLocker{held: make(map[string]string)} }

func lockKey(k domain.SlotKey) string {
	return fmt.Sprintf("%s:%s:%d", k.LocationID, k.ServiceID, k.Start.Unix())
}

func (l *memLocker) AcquireSlotLock(_ context.Context, key domain.SlotKey, owner string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[lockKey(key)]; ok {
		return false, nil
	}
	l.held[lockKey(key)] = owner
	return true, nil
}

func (l *memLocker) ReleaseSlotLock(_ context.Context, key domain.SlotKey, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[lockKey(key)] == owner {
		delete(l.held, lockKey(key))
	}
	return nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []domain.TransitionEvent
}

func (r *recordingEmitter) Emit(ev domain.TransitionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

var (
	ctx       = context.Background()
	berlin, _ = time.LoadLocation("Europe/Berlin")
	now       = time.Date(2026, time.May, 1, 10, 0, 0, 0, berlin)
	slotStart = time.Date(2026, time.May, 4, 9, 0, 0, 0, berlin)
)

func tod(s string) *domain.TimeOfDay {
	t, _ := domain.ParseTimeOfDay(s)
	return &t
}

func newStore() *memory.Store {
	store := memory.NewStore()
	var windows []domain.CalendarWindow
	for d := time.Monday; d <= time.Friday; d++ {
		windows = append(windows, domain.CalendarWindow{
			DayOfWeek: d, OpenTime: *tod("08:00"), CloseTime: *tod("16:00"),
			BreakStart: tod("12:00"), BreakEnd: tod("13:00"),
		})
	}
	store.PutSchedule(domain.LocationSchedule{LocationID: "loc-1", Timezone: "Europe/Berlin", Windows: windows})
	store.PutService(domain.Service{ID: "svc-1", DurationMinutes: 15, BufferMinutes: 5, MaxParallelBookings: 1})
	store.PutResource("res-1", "loc-1", "svc-1")
	return store
}

type fixture struct {
	store   *memory.Store
	clock   *clock.Fixed
	events  *recordingEmitter
	matcher *MockMatcher
	svc     *BookingService
}

func newFixture(locker SlotLocker) *fixture {
	store := newStore()
	clk := clock.NewFixed(now)
	avail := availability.NewAvailabilityService(store.Schedules(), store.Appointments(), nil, clk,
		availability.Options{MinAdvance: time.Hour}, zap.NewNop())
	f := &fixture{store: store, clock: clk, events: &recordingEmitter{}, matcher: &MockMatcher{}}
	f.svc = NewBookingService(store.Appointments(), store.Schedules(), locker, avail, f.events, f.matcher, clk,
		Options{LockTTL: 5 * time.Minute, CancelLead: 24 * time.Hour, CodePrefix: "TRM"}, zap.NewNop())
	return f
}

func validInput() BookInput {
	return BookInput{
		LocationID: "loc-1", ServiceID: "svc-1", SlotStart: slotStart,
		CitizenName: "Anna Schmidt", CitizenEmail: "anna@example.com",
	}
}

func TestBook_Success(t *testing.T) {
	f := newFixture(newMemLocker())

	appt, err := f.svc.Book(ctx, validInput())
	require.NoError(t, err)
	assert.Regexp(t, `^TRM-[A-Z2-9]{6}$`, appt.BookingCode)
	assert.Equal(t, "res-1", appt.ResourceID)
	assert.Equal(t, domain.AppointmentStatusBooked, appt.Status)
	assert.Equal(t, domain.AppointmentSourceOnline, appt.Source)
	assert.Equal(t, slotStart.Add(15*time.Minute), appt.EndTime)
	assert.Equal(t, []domain.EventType{domain.EventAppointmentCreated}, f.events.types())
	assert.Equal(t, f.clock.Now(), appt.CreatedAt)

	stored, err := f.svc.Lookup(ctx, appt.BookingCode)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, stored.ID)

	_, err = f.svc.Book(ctx, validInput())
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
}

func TestBook_Validation(t *testing.T) {
	f := newFixture(&MockLocker{})

	cases := map[string]struct {
		mutate func(*BookInput)
		want   error
	}{
		"no location": {func(in *BookInput) { in.LocationID = "" }, domain.ErrInvalidLocationID},
		"no service":  {func(in *BookInput) { in.ServiceID = "" }, domain.ErrInvalidServiceID},
		"no start":    {func(in *BookInput) { in.SlotStart = time.Time{} }, domain.ErrInvalidSlotStart},
		"blank name":  {func(in *BookInput) { in.CitizenName = "  " }, domain.ErrCitizenName},
		"no contact":  {func(in *BookInput) { in.CitizenEmail = "" }, domain.ErrContactRequired},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := f.svc.Book(ctx, in)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestBook_ContestedFailsFast(t *testing.T) {
	locker := &MockLocker{}
	avail := &MockAvailability{}
	svc := NewBookingService(nil, nil, locker, avail, nil, nil, clock.NewFixed(now), Options{LockTTL: time.Minute}, zap.NewNop())

	locker.On("AcquireSlotLock", ctx, mock.Anything, mock.AnythingOfType("string"), time.Minute).Return(false, nil).Once()

	_, err := svc.Book(ctx, validInput())
	assert.ErrorIs(t, err, domain.ErrSlotContested)
	locker.AssertNotCalled(t, "ReleaseSlotLock", mock.Anything, mock.Anything, mock.Anything)
	avail.AssertNotCalled(t, "IsOpen", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBook_ReleasesLockOnUnavailable(t *testing.T) {
	locker := &MockLocker{}
	avail := &MockAvailability{}
	svc := NewBookingService(nil, nil, locker, avail, nil, nil, clock.NewFixed(now), Options{}, zap.NewNop())

	var owner string
	locker.On("AcquireSlotLock", ctx, mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { owner = args.String(2) }).Return(true, nil).Once()
	locker.On("ReleaseSlotLock", mock.Anything, mock.Anything, mock.MatchedBy(func(o string) bool { return o == owner })).Return(nil).Once()
	avail.On("IsOpen", ctx, "loc-1", "svc-1", slotStart).Return(&domain.Service{ID: "svc-1", DurationMinutes: 15}, false, nil).Once()

	_, err := svc.Book(ctx, validInput())
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
	locker.AssertExpectations(t)
}

func TestBook_ReleasesLockOnPanic(t *testing.T) {
	locker := &MockLocker{}
	avail := &MockAvailability{}
	svc := NewBookingService(nil, nil, locker, avail, nil, nil, clock.NewFixed(now), Options{}, zap.NewNop())

	locker.On("AcquireSlotLock", ctx, mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Once()
	locker.On("ReleaseSlotLock", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	avail.On("IsOpen", ctx, "loc-1", "svc-1", slotStart).Run(func(mock.Arguments) { panic("store exploded") })

	assert.Panics(t, func() { _, _ = svc.Book(ctx, validInput()) })
	locker.AssertExpectations(t)
}

func TestBook_LockErrorPropagates(t *testing.T) {
	locker := &MockLocker{}
	svc := NewBookingService(nil, nil, locker, nil, nil, nil, clock.NewFixed(now), Options{}, zap.NewNop())
	boom := errors.New("redis unreachable")
	locker.On("AcquireSlotLock", ctx, mock.Anything, mock.Anything, mock.Anything).Return(false, boom).Once()

	_, err := svc.Book(ctx, validInput())
	assert.ErrorIs(t, err, boom)
	assert.False(t, domain.IsConflict(err))
}

func TestBook_ConcurrentSingleAdmission(t *testing.T) {
	f := newFixture(newMemLocker())

	const attempts = 25
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		other []error
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			in := validInput()
			in.CitizenName = fmt.Sprintf("Citizen %d", i)
			_, err := f.svc.Book(ctx, in)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			other = append(other, err)
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	for _, err := range other {
		assert.True(t, errors.Is(err, domain.ErrSlotContested) || errors.Is(err, domain.ErrSlotUnavailable), err.Error())
	}

	starts, err := f.store.Appointments().BookedStarts(ctx, "loc-1", "svc-1", slotStart, slotStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, starts, 1)
}

func TestCreateWithCode_RetriesOnCollision(t *testing.T) {
	calls := 0
	create := func(_ context.Context, appt *domain.Appointment) error {
		calls++
		if calls < 3 {
			return domain.ErrDuplicateBookingCode
		}
		return nil
	}

	appt := &domain.Appointment{}
	require.NoError(t, CreateWithCode(ctx, create, appt, "WL"))
	assert.Equal(t, 3, calls)
	assert.Regexp(t, `^WL-`, appt.BookingCode)

	calls = 0
	always := func(context.Context, *domain.Appointment) error { calls++; return domain.ErrDuplicateBookingCode }
	err := CreateWithCode(ctx, always, &domain.Appointment{}, "WL")
	assert.ErrorIs(t, err, domain.ErrDuplicateBookingCode)
	assert.Equal(t, codeAttempts, calls)

	boom := errors.New("connection reset")
	err = CreateWithCode(ctx, func(context.Context, *domain.Appointment) error { return boom }, &domain.Appointment{}, "WL")
	assert.ErrorIs(t, err, boom)
}

func seed(t *testing.T, f *fixture, code string, start time.Time, status domain.AppointmentStatus) {
	t.Helper()
	require.NoError(t, f.store.Appointments().Create(ctx, &domain.Appointment{
		LocationID: "loc-1", ServiceID: "svc-1", ResourceID: "res-1", BookingCode: code,
		StartTime: start, EndTime: start.Add(15 * time.Minute), Status: status,
	}))
}

func TestCancel_DeadlineBoundary(t *testing.T) {
	f := newFixture(newMemLocker())
	boundary := now.Add(24 * time.Hour)
	seed(t, f, "TRM-EXACT2", boundary, domain.AppointmentStatusBooked)
	seed(t, f, "TRM-EARLY2", boundary.Add(-time.Second), domain.AppointmentStatusBooked)

	loc := "loc-1"
	f.matcher.On("EnqueueMatch", ctx, domain.FreedSlot{
		ServiceID: "svc-1", LocationID: &loc, Start: boundary, End: boundary.Add(15 * time.Minute),
	}).Return(nil).Once()

	cancelled, err := f.svc.Cancel(ctx, "TRM-EXACT2", "moved away")
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentStatusCancelled, cancelled.Status)
	assert.Equal(t, "moved away", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, now, *cancelled.CancelledAt)

	_, err = f.svc.Cancel(ctx, "TRM-EARLY2", "")
	assert.ErrorIs(t, err, domain.ErrPastCancelDeadline)
	assert.True(t, domain.IsRuleViolation(err))

	f.matcher.AssertExpectations(t)
	assert.Equal(t, []domain.EventType{domain.EventAppointmentCancelled}, f.events.types())
}

func TestCancel_Rejections(t *testing.T) {
	f := newFixture(newMemLocker())
	later := now.Add(72 * time.Hour)
	seed(t, f, "TRM-DONE22", later, domain.AppointmentStatusCompleted)
	seed(t, f, "TRM-BUSY22", later, domain.AppointmentStatusInProgress)
	seed(t, f, "TRM-GONE22", later, domain.AppointmentStatusCancelled)

	for _, code := range []string{"TRM-DONE22", "TRM-BUSY22", "TRM-GONE22"} {
		_, err := f.svc.Cancel(ctx, code, "")
		assert.ErrorIs(t, err, domain.ErrAlreadyTerminal, code)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition, code)
	}

	_, err := f.svc.Cancel(ctx, "TRM-NOPE22", "")
	assert.True(t, domain.IsNotFound(err))
	f.matcher.AssertNotCalled(t, "EnqueueMatch", mock.Anything, mock.Anything)
}

func TestCancel_MatcherFailureIsLogged(t *testing.T) {
	f := newFixture(newMemLocker())
	seed(t, f, "TRM-LATE22", now.Add(48*time.Hour), domain.AppointmentStatusConfirmed)
	f.matcher.On("EnqueueMatch", ctx, mock.Anything).Return(errors.New("broker down")).Once()

	cancelled, err := f.svc.Cancel(ctx, "TRM-LATE22", "")
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentStatusCancelled, cancelled.Status)
}

func TestCancel_FreesSlotForBooking(t *testing.T) {
	f := newFixture(newMemLocker())
	f.matcher.On("EnqueueMatch", ctx, mock.Anything).Return(nil)

	appt, err := f.svc.Book(ctx, validInput())
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, appt.BookingCode, "")
	require.NoError(t, err)

	again, err := f.svc.Book(ctx, validInput())
	require.NoError(t, err)
	assert.NotEqual(t, appt.BookingCode, again.BookingCode)
}

func TestCheckIn(t *testing.T) {
	f := newFixture(newMemLocker())
	seed(t, f, "TRM-HERE22", slotStart, domain.AppointmentStatusBooked)

	appt, err := f.svc.CheckIn(ctx, "TRM-HERE22")
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentStatusCheckedIn, appt.Status)
	require.NotNil(t, appt.CheckedInAt)

	_, err = f.svc.CheckIn(ctx, "TRM-HERE22")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, []domain.EventType{domain.EventAppointmentCheckedIn}, f.events.types())
}
