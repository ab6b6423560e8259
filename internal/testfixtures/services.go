package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/conference-scheduler/internal/application"
	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/persistence"
)

// FastPasswordHasher keeps argon2 cheap enough for tests.
var FastPasswordHasher = application.PasswordHasher{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
}

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
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

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// Services bundles the application services over one coordinator.
type Services struct {
	Coordinator *application.ScheduleCoordinator
	Rooms       *application.RoomService
	Accounts    *application.AccountService
	Catalog     *application.EventCatalog
	Snapshots   *application.SnapshotService
}

// NewCoordinator wraps state in a coordinator evaluating open hours in UTC.
func (f *ServiceFactory) NewCoordinator(state *conference.State) *application.ScheduleCoordinator {
	return application.NewScheduleCoordinatorWithLogger(state, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), time.UTC, f.Logger)
}

// NewServices builds every service over state. repo may be nil when the test
// does not exercise snapshots.
func (f *ServiceFactory) NewServices(state *conference.State, repo persistence.SnapshotRepository) Services {
	coordinator := f.NewCoordinator(state)
	services := Services{
		Coordinator: coordinator,
		Rooms:       application.NewRoomServiceWithLogger(coordinator, 0, f.Logger),
		Accounts:    application.NewAccountServiceWithLogger(coordinator, FastPasswordHasher, f.IDGenerator.NextFunc(), f.Logger),
		Catalog:     application.NewEventCatalogWithLogger(coordinator, f.Clock.NowFunc(), f.Logger),
	}
	if repo != nil {
		services.Snapshots = application.NewSnapshotServiceWithLogger(coordinator, repo, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
	}
	return services
}
