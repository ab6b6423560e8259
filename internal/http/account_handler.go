package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/conference-scheduler/internal/application"
	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/scheduler"
)

type accountService interface {
	Register(ctx context.Context, input application.AccountInput) (application.Account, error)
	Get(ctx context.Context, accountID string) (application.Account, error)
	List(ctx context.Context, kinds ...conference.Kind) ([]application.Account, error)
	UpgradeToVIP(ctx context.Context, accountID string) (application.Account, error)
	DowngradeVIP(ctx context.Context, accountID string) (application.Account, []string, error)
	AvailableSpeakers(ctx context.Context, intervals []scheduler.Interval) ([]application.Account, error)
	AvailableSpeakersForEvent(ctx context.Context, eventID string) ([]application.Account, error)
}

type attendableFinder interface {
	AttendableFor(ctx context.Context, accountID string) ([]conference.Event, error)
}

// AccountHandler serves account registration, VIP status and the speaker
// and event finders.
type AccountHandler struct {
	service   accountService
	events    attendableFinder
	responder responder
	logger    *slog.Logger
}

func NewAccountHandler(service accountService, events attendableFinder, logger *slog.Logger) *AccountHandler {
	base := defaultLogger(logger)
	return &AccountHandler{service: service, events: events, responder: newResponder(base), logger: base}
}

func (h *AccountHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AccountHandler", operation, attrs...)
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode account request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "username", req.Username, "kind", req.Kind)
	account, err := h.service.Register(r.Context(), application.AccountInput{
		Kind:     strings.TrimSpace(req.Kind),
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "account registration failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("account_id", account.ID).InfoContext(r.Context(), "account registered")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, accountResponse{Account: toAccountDTO(account)})
}

// List answers GET /accounts with an optional kind=speaker,vip filter.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var kinds []conference.Kind
	for _, raw := range parseCSV(r.URL.Query().Get("kind")) {
		kind, err := conference.ParseKind(raw)
		if err != nil {
			h.log(r.Context(), "List", "error_kind", "bad_request").WarnContext(r.Context(), "invalid kind filter", "error", err)
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
			return
		}
		kinds = append(kinds, kind)
	}

	accounts, err := h.service.List(r.Context(), kinds...)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listAccountsResponse{Accounts: toAccountDTOs(accounts)})
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	account, err := h.service.Get(r.Context(), accountID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, accountResponse{Account: toAccountDTO(account)})
}

func (h *AccountHandler) UpgradeVIP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	logger := h.log(r.Context(), "UpgradeVIP", "account_id", accountID)
	account, err := h.service.UpgradeToVIP(r.Context(), accountID)
	if err != nil {
		logger.WarnContext(r.Context(), "vip upgrade failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "account upgraded to vip")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, accountResponse{Account: toAccountDTO(account)})
}

func (h *AccountHandler) DowngradeVIP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	logger := h.log(r.Context(), "DowngradeVIP", "account_id", accountID)
	account, dropped, err := h.service.DowngradeVIP(r.Context(), accountID)
	if err != nil {
		logger.WarnContext(r.Context(), "vip downgrade failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "vip downgraded", "dropped_events", len(dropped))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, accountResponse{Account: toAccountDTO(account), DroppedEvents: dropped})
}

func (h *AccountHandler) Attendable(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.events == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	events, err := h.events.AttendableFor(r.Context(), accountID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEventsResponse{Events: toEventDTOs(events)})
}

// AvailableSpeakers answers GET /speakers/available with either event=id or
// repeated start/end pairs.
func (h *AccountHandler) AvailableSpeakers(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	values := r.URL.Query()
	var (
		speakers []application.Account
		err      error
	)
	if eventID := strings.TrimSpace(values.Get("event")); eventID != "" {
		speakers, err = h.service.AvailableSpeakersForEvent(r.Context(), eventID)
	} else {
		intervals, qErr := queryIntervals(values)
		if qErr != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
			return
		}
		speakers, err = h.service.AvailableSpeakers(r.Context(), intervals)
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listAccountsResponse{Accounts: toAccountDTOs(speakers)})
}

func (h *AccountHandler) accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID, ok := ParticipantIDFromContext(r.Context())
	if !ok || strings.TrimSpace(accountID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidParticipantID)
		return "", false
	}
	return accountID, true
}

type accountRequest struct {
	Kind     string `json:"kind"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type accountResponse struct {
	Account       accountDTO `json:"account"`
	DroppedEvents []string   `json:"dropped_events,omitempty"`
}

type listAccountsResponse struct {
	Accounts []accountDTO `json:"accounts"`
}

type accountDTO struct {
	ID         string   `json:"id"`
	Kind       string   `json:"kind"`
	Username   string   `json:"username"`
	IsVIP      bool     `json:"is_vip"`
	Specialist []string `json:"specialist,omitempty"`
}

func toAccountDTO(account application.Account) accountDTO {
	return accountDTO{
		ID:         account.ID,
		Kind:       string(account.Kind),
		Username:   account.Username,
		IsVIP:      account.IsVIP,
		Specialist: account.Specialist,
	}
}

func toAccountDTOs(accounts []application.Account) []accountDTO {
	out := make([]accountDTO, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, toAccountDTO(account))
	}
	return out
}
