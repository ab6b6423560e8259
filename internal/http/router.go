package http

import (
	"net/http"
	"strings"
)

type RouterConfig struct {
	Events       *EventHandler
	Rooms        *RoomHandler
	Accounts     *AccountHandler
	Participants *ParticipantHandler
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Events != nil {
		mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Events.List(w, r)
			case http.MethodPost:
				cfg.Events.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/events/", func(w http.ResponseWriter, r *http.Request) {
			parts := pathSegments(r.URL.Path, "/events/")
			if len(parts) == 0 {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithEventID(r.Context(), parts[0]))
			routeEvent(cfg.Events, parts[1:], w, r)
		})
	}

	if cfg.Rooms != nil {
		mux.HandleFunc("/rooms", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Rooms.List(w, r)
			case http.MethodPost:
				cfg.Rooms.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/rooms/available", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Rooms.Available(w, r)
		})
		mux.HandleFunc("/rooms/", func(w http.ResponseWriter, r *http.Request) {
			parts := pathSegments(r.URL.Path, "/rooms/")
			if len(parts) != 1 {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Rooms.Get(w, r.WithContext(ContextWithParticipantID(r.Context(), parts[0])))
		})
		mux.HandleFunc("/features", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Rooms.ListFeatures(w, r)
			case http.MethodPost:
				cfg.Rooms.AddFeature(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
	}

	if cfg.Accounts != nil {
		mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Accounts.List(w, r)
			case http.MethodPost:
				cfg.Accounts.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/accounts/", func(w http.ResponseWriter, r *http.Request) {
			parts := pathSegments(r.URL.Path, "/accounts/")
			if len(parts) == 0 || len(parts) > 2 {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithParticipantID(r.Context(), parts[0]))
			action := ""
			if len(parts) == 2 {
				action = parts[1]
			}
			switch action {
			case "":
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Accounts.Get(w, r)
			case "vip":
				switch r.Method {
				case http.MethodPost:
					cfg.Accounts.UpgradeVIP(w, r)
				case http.MethodDelete:
					cfg.Accounts.DowngradeVIP(w, r)
				default:
					methodNotAllowed(w, http.MethodPost, http.MethodDelete)
				}
			case "attendable":
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Accounts.Attendable(w, r)
			default:
				http.NotFound(w, r)
			}
		})
		mux.HandleFunc("/speakers/available", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Accounts.AvailableSpeakers(w, r)
		})
	}

	if cfg.Participants != nil {
		mux.HandleFunc("/participants/", func(w http.ResponseWriter, r *http.Request) {
			parts := pathSegments(r.URL.Path, "/participants/")
			if len(parts) != 2 {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			r = r.WithContext(ContextWithParticipantID(r.Context(), parts[0]))
			switch parts[1] {
			case "schedule":
				cfg.Participants.Schedule(w, r)
			case "schedule.ics":
				cfg.Participants.Calendar(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

// routeEvent dispatches /events/{id}[/action[/account]] once the id is in the context.
func routeEvent(h *EventHandler, rest []string, w http.ResponseWriter, r *http.Request) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			h.Get(w, r)
		case http.MethodDelete:
			h.Cancel(w, r)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodDelete)
		}
		return
	}

	if rest[0] == "attendees" {
		switch {
		case len(rest) == 1 && r.Method == http.MethodPost:
			h.AddAttendee(w, r)
		case len(rest) == 1:
			methodNotAllowed(w, http.MethodPost)
		case len(rest) == 2 && r.Method == http.MethodDelete:
			h.RemoveAttendee(w, r.WithContext(ContextWithParticipantID(r.Context(), rest[1])))
		case len(rest) == 2:
			methodNotAllowed(w, http.MethodDelete)
		default:
			http.NotFound(w, r)
		}
		return
	}

	if len(rest) != 1 {
		http.NotFound(w, r)
		return
	}
	if rest[0] == "conflicts" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		h.Conflicts(w, r)
		return
	}

	updates := map[string]http.HandlerFunc{
		"hosts":     h.AssignHosts,
		"intervals": h.Reschedule,
		"room":      h.ChangeRoom,
		"capacity":  h.SetCapacity,
		"vip":       h.SetVIP,
		"features":  h.SetRequiredFeatures,
	}
	update, ok := updates[rest[0]]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}
	update(w, r)
}

func pathSegments(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
