package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/scheduler"
)

const minPasswordLength = 8

// AccountService registers people and manages their VIP status.
type AccountService struct {
	coordinator *ScheduleCoordinator
	hasher      PasswordHasher
	idGenerator func() string
	logger      *slog.Logger
}

// NewAccountService constructs an account service using the default hasher.
func NewAccountService(coordinator *ScheduleCoordinator, idGenerator func() string) *AccountService {
	return NewAccountServiceWithLogger(coordinator, DefaultPasswordHasher, idGenerator, nil)
}

// NewAccountServiceWithLogger constructs an account service with a specified
// hasher and logger.
func NewAccountServiceWithLogger(coordinator *ScheduleCoordinator, hasher PasswordHasher, idGenerator func() string, logger *slog.Logger) *AccountService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if hasher.KeyLength == 0 {
		hasher = DefaultPasswordHasher
	}
	return &AccountService{coordinator: coordinator, hasher: hasher, idGenerator: idGenerator, logger: defaultLogger(logger)}
}

func (s *AccountService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AccountService", operation, attrs...)
}

// Register validates input and creates an account with a hashed password.
func (s *AccountService) Register(ctx context.Context, input AccountInput) (account Account, err error) {
	if s == nil || s.coordinator == nil {
		err = fmt.Errorf("AccountService is not configured")
		return
	}

	logger := s.loggerWith(ctx, "Register", "kind", input.Kind, "username", input.Username)
	defer func() {
		logOutcome(ctx, logger, err, "failed to register account", "account registered", "account_id", account.ID)
	}()

	kind, username, vErr := validateAccountInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var hash string
	hash, err = s.hasher.Hash(input.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	err = s.coordinator.write(func(st *conference.State, j *conference.Journal) error {
		if _, taken := st.ParticipantByUsername(username); taken {
			return fmt.Errorf("%w: username %s", ErrAlreadyExists, username)
		}
		id := s.idGenerator()
		if id == "" {
			return fmt.Errorf("account id generator returned an empty id")
		}
		p := conference.NewAccount(id, kind, username, hash)
		if err := j.AddParticipant(p); err != nil {
			return mapDomainError(err)
		}
		account = accountView(p)
		return nil
	})
	if err != nil {
		account = Account{}
	}
	return
}

// VerifyPassword returns the account when username and password match.
func (s *AccountService) VerifyPassword(ctx context.Context, username, password string) (account Account, err error) {
	if s == nil || s.coordinator == nil {
		err = fmt.Errorf("AccountService is not configured")
		return
	}
	logger := s.loggerWith(ctx, "VerifyPassword", "username", username)

	var hash string
	err = s.coordinator.read(func(st *conference.State) error {
		p, ok := st.ParticipantByUsername(strings.TrimSpace(username))
		if !ok {
			return ErrInvalidCredentials
		}
		hash = p.PasswordHash
		account = accountView(p)
		return nil
	})
	if err == nil {
		err = s.hasher.Verify(hash, password)
	}
	if err != nil {
		account = Account{}
		if !errors.Is(err, ErrInvalidCredentials) {
			logger.ErrorContext(ctx, "stored password hash unreadable", "error", err)
		}
		err = ErrInvalidCredentials
		logger.WarnContext(ctx, "credential check failed", "error_kind", ErrorKind(err))
		return
	}
	logger.DebugContext(ctx, "credentials verified", "account_id", account.ID)
	return
}

// Get returns one account.
func (s *AccountService) Get(ctx context.Context, accountID string) (account Account, err error) {
	if s == nil || s.coordinator == nil {
		err = fmt.Errorf("AccountService is not configured")
		return
	}
	err = s.coordinator.read(func(st *conference.State) error {
		p, err := lookupAccount(st, accountID)
		if err != nil {
			return err
		}
		account = accountView(p)
		return nil
	})
	return
}

// List returns the accounts of the given kinds (all accounts when none given)
// sorted by username.
func (s *AccountService) List(ctx context.Context, kinds ...conference.Kind) (accounts []Account, err error) {
	if s == nil || s.coordinator == nil {
		err = fmt.Errorf("AccountService is not configured")
		return
	}
	err = s.coordinator.read(func(st *conference.State) error {
		for _, p := range st.Participants(kinds...) {
			if !p.Kind.IsAccount() {
				continue
			}
			accounts = append(accounts, accountView(p))
		}
		return nil
	})
	sort.Slice(accounts, func(i, j int) bool {
		return strings.ToLower(accounts[i].Username) < strings.ToLower(accounts[j].Username)
	})
	return
}

// UpgradeToVIP turns an attendee into a VIP. Bookings stay in place; VIP-only
// events the account already attends enter its specialist set.
func (s *AccountService) UpgradeToVIP(ctx context.Context, accountID string) (account Account, err error) {
	if s == nil || s.coordinator == nil {
		err = fmt.Errorf("AccountService is not configured")
		return
	}
	logger := s.loggerWith(ctx, "UpgradeToVIP", "account_id", accountID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to upgrade account", "account upgraded")
	}()

	err = s.coordinator.write(func(st *conference.State, j *conference.Journal) error {
		p, err := lookupAccount(st, accountID)
		if err != nil {
			return err
		}
		if p.Kind != conference.KindAttendee {
			return fmt.Errorf("%w: only attendees can be upgraded, %s is %s", ErrNotEligible, p.ID, p.Kind)
		}
		if err := j.ChangeKind(p, conference.KindVIP); err != nil {
			return mapDomainError(err)
		}
		for _, eventID := range p.ScheduledEvents() {
			e, ok := st.Event(eventID)
			if !ok {
				return fmt.Errorf("%w: event %s vanished", ErrInvariantViolation, eventID)
			}
			if e.RequiresSpecialist(p) {
				j.Mark(p, e.ID)
			}
			if err := verifyEvent(st, e.ID); err != nil {
				return err
			}
		}
		account = accountView(p)
		return nil
	})
	return
}

// DowngradeVIP turns a VIP back into an attendee. The account leaves every
// VIP-only event it attends; the ids of those events are returned.
func (s *AccountService) DowngradeVIP(ctx context.Context, accountID string) (account Account, dropped []string, err error) {
	if s == nil || s.coordinator == nil {
		err = fmt.Errorf("AccountService is not configured")
		return
	}
	logger := s.loggerWith(ctx, "DowngradeVIP", "account_id", accountID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to downgrade account", "account downgraded", "dropped_events", dropped)
	}()

	err = s.coordinator.write(func(st *conference.State, j *conference.Journal) error {
		p, err := lookupAccount(st, accountID)
		if err != nil {
			return err
		}
		if p.Kind != conference.KindVIP {
			return fmt.Errorf("%w: only VIPs can be downgraded, %s is %s", ErrNotEligible, p.ID, p.Kind)
		}
		for _, eventID := range p.ScheduledEvents() {
			e, ok := st.Event(eventID)
			if !ok {
				return fmt.Errorf("%w: event %s vanished", ErrInvariantViolation, eventID)
			}
			if !e.VIPOnly || !e.HasAttendee(p.ID) {
				continue
			}
			if err := j.Release(p, e.ID, e.Intervals); err != nil {
				return mapDomainError(err)
			}
			j.DropAttendee(e, p.ID)
			j.Unmark(p, e.ID)
			dropped = append(dropped, e.ID)
		}
		if err := j.ChangeKind(p, conference.KindAttendee); err != nil {
			return mapDomainError(err)
		}
		touched := append(p.ScheduledEvents(), dropped...)
		for _, eventID := range touched {
			if err := verifyEvent(st, eventID); err != nil {
				return err
			}
		}
		account = accountView(p)
		return nil
	})
	if err != nil {
		dropped = nil
	}
	return
}

// AvailableSpeakers lists speakers free for every interval.
func (s *AccountService) AvailableSpeakers(ctx context.Context, intervals []scheduler.Interval) (speakers []Account, err error) {
	if s == nil || s.coordinator == nil {
		err = fmt.Errorf("AccountService is not configured")
		return
	}
	normalized, normErr := scheduler.Normalize(intervals)
	if normErr != nil {
		vErr := &ValidationError{}
		vErr.add("intervals", intervalMessage(normErr))
		err = vErr
		return
	}
	err = s.coordinator.read(func(st *conference.State) error {
		speakers = availableSpeakers(st, normalized, nil)
		return nil
	})
	return
}

// AvailableSpeakersForEvent lists speakers who could host the event: those
// free for all of its intervals plus its current hosts.
func (s *AccountService) AvailableSpeakersForEvent(ctx context.Context, eventID string) (speakers []Account, err error) {
	if s == nil || s.coordinator == nil {
		err = fmt.Errorf("AccountService is not configured")
		return
	}
	err = s.coordinator.read(func(st *conference.State) error {
		e, err := requireEvent(st, eventID)
		if err != nil {
			return err
		}
		speakers = availableSpeakers(st, e.Intervals, e)
		return nil
	})
	return
}

func availableSpeakers(st *conference.State, intervals []scheduler.Interval, event *conference.Event) []Account {
	var out []Account
	for _, p := range st.Participants(conference.KindSpeaker) {
		switch {
		case event != nil && event.HasHost(p.ID):
		case event != nil && event.HasAttendee(p.ID):
			continue
		case !p.IsFreeForAll(intervals):
			continue
		}
		out = append(out, accountView(p))
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	return out
}

func validateAccountInput(input AccountInput) (conference.Kind, string, *ValidationError) {
	vErr := &ValidationError{}

	kind, err := conference.ParseKind(input.Kind)
	if err != nil || !kind.IsAccount() {
		vErr.add("kind", "kind must be attendee, speaker, organizer or vip")
	}
	username := strings.TrimSpace(input.Username)
	switch {
	case username == "":
		vErr.add("username", "username is required")
	case strings.IndexFunc(username, unicode.IsSpace) >= 0:
		vErr.add("username", "username must not contain spaces")
	}
	if len(input.Password) < minPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	return kind, username, vErr
}

func accountView(p *conference.Participant) Account {
	return Account{
		ID:         p.ID,
		Kind:       p.Kind,
		Username:   p.Username,
		IsVIP:      p.IsVIP(),
		Specialist: p.Specialist(),
	}
}

// lookupAccount resolves an account addressed by id. Rooms share the id
// space but are not accounts, so they read as missing.
func lookupAccount(st *conference.State, id string) (*conference.Participant, error) {
	p, err := requireParticipant(st, id)
	if err != nil {
		return nil, err
	}
	if !p.Kind.IsAccount() {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	return p, nil
}
