package testfixtures

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/team-hours/internal/application"
	"github.com/example/team-hours/internal/persistence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Gate        application.Gate
	Notifier    *RecordingNotifier
	Location    *time.Location
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults. The default
// gate allows every action.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Gate:        AllowAll(),
		Notifier:    &RecordingNotifier{},
		Location:    time.UTC,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Notifier == nil {
		factory.Notifier = &RecordingNotifier{}
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithGate overrides the authorization gate.
func WithGate(gate application.Gate) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Gate = gate
	}
}

// WithLocation overrides the default statistics time zone.
func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Location = loc
	}
}

// NewAttendanceService builds an attendance service over store.
func (f *ServiceFactory) NewAttendanceService(store persistence.Store) *application.AttendanceService {
	return application.NewAttendanceServiceWithLogger(store, f.Gate, f.Notifier, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewMemberService builds a member service over store.
func (f *ServiceFactory) NewMemberService(store persistence.Store) *application.MemberService {
	return application.NewMemberServiceWithLogger(store, f.Gate, f.Notifier, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewTeamService builds a team service over store.
func (f *ServiceFactory) NewTeamService(store persistence.Store) *application.TeamService {
	return application.NewTeamServiceWithLogger(store, f.Gate, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewStatsService builds a statistics service over store.
func (f *ServiceFactory) NewStatsService(store persistence.Store) *application.StatsService {
	return application.NewStatsServiceWithLogger(store, f.Gate, f.Clock.NowFunc(), f.Location, f.Logger)
}

// AllowAll returns a gate that permits every action.
func AllowAll() application.Gate {
	return application.GateFunc(func(context.Context, application.Principal, application.Action, application.Resource) (bool, error) {
		return true, nil
	})
}

// DenyAll returns a gate that rejects every action.
func DenyAll() application.Gate {
	return application.GateFunc(func(context.Context, application.Principal, application.Action, application.Resource) (bool, error) {
		return false, nil
	})
}

// ErrNotifierUnavailable is returned by a RecordingNotifier configured to fail.
var ErrNotifierUnavailable = errors.New("notifier unavailable")

// RecordingNotifier captures published events. When Fail is set Publish
// returns ErrNotifierUnavailable without recording.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []application.Event
	Fail   bool
}

// Publish records the event.
func (n *RecordingNotifier) Publish(_ context.Context, event application.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail {
		return ErrNotifierUnavailable
	}
	n.events = append(n.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (n *RecordingNotifier) Events() []application.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]application.Event(nil), n.events...)
}

// Reset discards recorded events.
func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	n.events = nil
	n.mu.Unlock()
}
