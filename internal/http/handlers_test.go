package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/scheduler"
	"github.com/example/conference-scheduler/internal/testfixtures"
)

type testAPI struct {
	t        *testing.T
	handler  http.Handler
	services testfixtures.Services
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	state, err := testfixtures.NewState(testfixtures.FastPasswordHasher,
		[]testfixtures.RoomFixture{
			testfixtures.NewRoomFixture(testfixtures.WithRoomID("hall"), testfixtures.WithRoomName("Hall"), testfixtures.WithRoomCapacity(50)),
			testfixtures.NewRoomFixture(testfixtures.WithRoomID("annex"), testfixtures.WithRoomName("Annex"), testfixtures.WithRoomCapacity(5),
				testfixtures.WithRoomOpenHours(conference.HourRange{From: 9, To: 17})),
		},
		[]testfixtures.AccountFixture{
			testfixtures.NewAccountFixture(conference.KindOrganizer, testfixtures.WithAccountID("org"), testfixtures.WithUsername("olga")),
			testfixtures.NewAccountFixture(conference.KindSpeaker, testfixtures.WithAccountID("spk"), testfixtures.WithUsername("sam")),
			testfixtures.NewAccountFixture(conference.KindSpeaker, testfixtures.WithAccountID("spk2"), testfixtures.WithUsername("sue")),
			testfixtures.NewAccountFixture(conference.KindAttendee, testfixtures.WithAccountID("att"), testfixtures.WithUsername("ann")),
			testfixtures.NewAccountFixture(conference.KindAttendee, testfixtures.WithAccountID("att2"), testfixtures.WithUsername("abe")),
		},
	)
	if err != nil {
		t.Fatalf("NewState returned error: %v", err)
	}

	factory := testfixtures.NewServiceFactory()
	services := factory.NewServices(state, nil)
	router := NewRouter(RouterConfig{
		Events:       NewEventHandler(services.Coordinator, services.Catalog, nil),
		Rooms:        NewRoomHandler(services.Rooms, nil),
		Accounts:     NewAccountHandler(services.Accounts, services.Catalog, nil),
		Participants: NewParticipantHandler(services.Coordinator, services.Catalog, factory.Clock.NowFunc(), nil),
		Middleware:   []func(http.Handler) http.Handler{Recoverer(nil), RequestLogger(nil)},
	})
	return &testAPI{t: t, handler: router, services: services}
}

func (a *testAPI) do(method, target string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			a.t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

func expectErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) errorResponse {
	t.Helper()
	expectStatus(t, rec, status)
	resp := decodeBody[errorResponse](t, rec)
	if resp.ErrorCode != code {
		t.Fatalf("expected error code %s, got %+v", code, resp)
	}
	return resp
}

func intervalBody(ivs ...scheduler.Interval) []intervalDTO {
	return toIntervalDTOs(ivs)
}

func (a *testAPI) createTalk(room string, capacity int, iv scheduler.Interval) eventDTO {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/events", eventRequest{
		Kind:        "talk",
		Name:        "Keynote",
		OrganizerID: "org",
		RoomID:      room,
		Capacity:    capacity,
		Intervals:   intervalBody(iv),
		HostIDs:     []string{"spk"},
	})
	expectStatus(a.t, rec, http.StatusCreated)
	return decodeBody[eventResponse](a.t, rec).Event
}

func TestEventHandlers(t *testing.T) {
	t.Run("create, enroll and cancel", func(t *testing.T) {
		api := newTestAPI(t)
		event := api.createTalk("hall", 2, testfixtures.Slot(0, 10, 11))
		if event.ID != "id-1" || event.Kind != "talk" || len(event.HostIDs) != 1 || event.HostIDs[0] != "spk" {
			t.Fatalf("unexpected event: %+v", event)
		}
		if event.Intervals[0].Start != "2025-06-02T10:00:00Z" {
			t.Fatalf("unexpected interval: %+v", event.Intervals)
		}

		rec := api.do(http.MethodGet, "/events/"+event.ID, nil)
		expectStatus(t, rec, http.StatusOK)

		rec = api.do(http.MethodPost, "/events/"+event.ID+"/attendees", attendeeRequest{AccountID: "att"})
		expectStatus(t, rec, http.StatusOK)
		if got := decodeBody[eventResponse](t, rec).Event.AttendeeIDs; len(got) != 1 || got[0] != "att" {
			t.Fatalf("unexpected attendees: %v", got)
		}

		rec = api.do(http.MethodPost, "/events/"+event.ID+"/attendees", attendeeRequest{AccountID: "att"})
		expectErrorCode(t, rec, http.StatusConflict, "ALREADY_ENROLLED")

		rec = api.do(http.MethodPut, "/events/"+event.ID+"/capacity", capacityRequest{Capacity: 1})
		expectStatus(t, rec, http.StatusOK)

		rec = api.do(http.MethodPost, "/events/"+event.ID+"/attendees", attendeeRequest{AccountID: "att2"})
		expectErrorCode(t, rec, http.StatusConflict, "CAPACITY_EXCEEDED")

		rec = api.do(http.MethodDelete, "/events/"+event.ID+"/attendees/att", nil)
		expectStatus(t, rec, http.StatusOK)
		if got := decodeBody[eventResponse](t, rec).Event.AttendeeIDs; len(got) != 0 {
			t.Fatalf("expected empty roster, got %v", got)
		}

		rec = api.do(http.MethodDelete, "/events/"+event.ID, nil)
		expectStatus(t, rec, http.StatusNoContent)

		rec = api.do(http.MethodGet, "/events/"+event.ID, nil)
		expectErrorCode(t, rec, http.StatusNotFound, "NOT_FOUND")

		if violations := api.services.Coordinator.CheckInvariants(t.Context()); len(violations) != 0 {
			t.Fatalf("unexpected violations: %v", violations)
		}
	})

	t.Run("business rules map to 409", func(t *testing.T) {
		api := newTestAPI(t)
		api.createTalk("hall", 10, testfixtures.Slot(0, 10, 11))

		cases := []struct {
			name string
			req  eventRequest
			code string
		}{
			{
				name: "room busy",
				req:  eventRequest{Kind: "party", Name: "Mixer", OrganizerID: "org", RoomID: "hall", Capacity: 5, Intervals: intervalBody(testfixtures.Slot(0, 10, 12))},
				code: "INTERVAL_CONFLICT",
			},
			{
				name: "room closed",
				req:  eventRequest{Kind: "party", Name: "Late", OrganizerID: "org", RoomID: "annex", Capacity: 5, Intervals: intervalBody(testfixtures.Slot(0, 18, 19))},
				code: "OUTSIDE_OPEN_HOURS",
			},
			{
				name: "room too small",
				req:  eventRequest{Kind: "party", Name: "Crowd", OrganizerID: "org", RoomID: "annex", Capacity: 6, Intervals: intervalBody(testfixtures.Slot(0, 10, 11))},
				code: "CAPACITY_EXCEEDED",
			},
			{
				name: "panel with one host",
				req:  eventRequest{Kind: "panel", Name: "Panel", OrganizerID: "org", RoomID: "annex", Capacity: 5, Intervals: intervalBody(testfixtures.Slot(0, 12, 13)), HostIDs: []string{"spk2"}},
				code: "INVALID_HOST_COUNT",
			},
			{
				name: "attendee cannot organize",
				req:  eventRequest{Kind: "party", Name: "Picnic", OrganizerID: "att", RoomID: "annex", Capacity: 5, Intervals: intervalBody(testfixtures.Slot(0, 12, 13))},
				code: "NOT_ELIGIBLE",
			},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				rec := api.do(http.MethodPost, "/events", tc.req)
				resp := expectErrorCode(t, rec, http.StatusConflict, tc.code)
				if resp.Message == "" {
					t.Fatalf("expected localized message")
				}
			})
		}

		rec := api.do(http.MethodGet, "/events", nil)
		expectStatus(t, rec, http.StatusOK)
		if events := decodeBody[listEventsResponse](t, rec).Events; len(events) != 1 {
			t.Fatalf("rejected requests must not leave events behind, got %d", len(events))
		}
	})

	t.Run("validation and malformed input", func(t *testing.T) {
		api := newTestAPI(t)

		rec := api.do(http.MethodPost, "/events", eventRequest{Kind: "talk", OrganizerID: "org", RoomID: "hall", Capacity: 1})
		resp := expectErrorCode(t, rec, http.StatusUnprocessableEntity, "VALIDATION")
		if resp.Errors["name"] != "名前は必須です。" {
			t.Fatalf("unexpected name message: %+v", resp.Errors)
		}
		if resp.Errors["intervals"] != "少なくとも 1 つの時間帯を指定してください。" {
			t.Fatalf("unexpected intervals message: %+v", resp.Errors)
		}

		rec = api.do(http.MethodPost, "/events", "{")
		expectStatus(t, rec, http.StatusBadRequest)
		if got := decodeBody[errorResponse](t, rec).Message; got != errBadRequestBody.Error() {
			t.Fatalf("unexpected message: %q", got)
		}

		rec = api.do(http.MethodGet, "/events?kind=keynote", nil)
		expectStatus(t, rec, http.StatusBadRequest)

		rec = api.do(http.MethodPatch, "/events", nil)
		expectStatus(t, rec, http.StatusMethodNotAllowed)
		if allow := rec.Header().Get("Allow"); allow != "GET, POST" {
			t.Fatalf("unexpected Allow header: %q", allow)
		}

		rec = api.do(http.MethodGet, "/events/id-1/unknown", nil)
		expectStatus(t, rec, http.StatusNotFound)
	})

	t.Run("malformed interval bounds", func(t *testing.T) {
		api := newTestAPI(t)
		slot := testfixtures.Slot(0, 10, 11)
		end := slot.End.Format(time.RFC3339)

		bodies := map[string][]intervalDTO{
			"bad start":   {{Start: "not-a-time", End: end}},
			"empty start": {{Start: "", End: end}},
			"bad end":     {{Start: slot.Start.Format(time.RFC3339), End: "10:00"}},
		}
		for name, intervals := range bodies {
			t.Run(name, func(t *testing.T) {
				rec := api.do(http.MethodPost, "/events", eventRequest{Kind: "party", Name: "Mixer", OrganizerID: "org", RoomID: "hall", Capacity: 5, Intervals: intervals})
				resp := expectErrorCode(t, rec, http.StatusUnprocessableEntity, "VALIDATION")
				if resp.Errors["intervals"] != "時間帯は RFC 3339 形式の日時で指定してください。" {
					t.Fatalf("unexpected intervals message: %+v", resp.Errors)
				}
			})
		}

		event := api.createTalk("hall", 10, slot)
		rec := api.do(http.MethodPut, "/events/"+event.ID+"/intervals", intervalsRequest{Intervals: bodies["bad start"]})
		expectErrorCode(t, rec, http.StatusUnprocessableEntity, "VALIDATION")

		rec = api.do(http.MethodGet, "/rooms/available?start=yesterday&end="+url.QueryEscape(end), nil)
		expectStatus(t, rec, http.StatusBadRequest)

		rec = api.do(http.MethodGet, "/events", nil)
		expectStatus(t, rec, http.StatusOK)
		events := decodeBody[listEventsResponse](t, rec).Events
		if len(events) != 1 || events[0].Intervals[0].Start != "2025-06-02T10:00:00Z" {
			t.Fatalf("malformed requests must not book anything, got %+v", events)
		}
	})

	t.Run("reschedule, move and list filters", func(t *testing.T) {
		api := newTestAPI(t)
		event := api.createTalk("hall", 10, testfixtures.Slot(0, 10, 11))

		rec := api.do(http.MethodPut, "/events/"+event.ID+"/intervals", intervalsRequest{Intervals: intervalBody(testfixtures.Slot(0, 14, 15))})
		expectStatus(t, rec, http.StatusOK)
		if got := decodeBody[eventResponse](t, rec).Event.Intervals; len(got) != 1 || got[0].Start != "2025-06-02T14:00:00Z" {
			t.Fatalf("unexpected intervals: %+v", got)
		}

		rec = api.do(http.MethodPut, "/events/"+event.ID+"/room", roomChangeRequest{RoomID: "annex"})
		expectErrorCode(t, rec, http.StatusConflict, "CAPACITY_EXCEEDED")

		rec = api.do(http.MethodPut, "/events/"+event.ID+"/vip", vipRequest{VIPOnly: true})
		expectStatus(t, rec, http.StatusOK)
		if !decodeBody[eventResponse](t, rec).Event.VIPOnly {
			t.Fatalf("expected vip only event")
		}

		from := url.QueryEscape(testfixtures.Slot(0, 13, 14).Start.Format(time.RFC3339))
		rec = api.do(http.MethodGet, "/events?room=hall&vip_only=true&from="+from, nil)
		expectStatus(t, rec, http.StatusOK)
		if events := decodeBody[listEventsResponse](t, rec).Events; len(events) != 1 || events[0].ID != event.ID {
			t.Fatalf("unexpected filtered events: %+v", events)
		}

		rec = api.do(http.MethodGet, "/events?room=annex", nil)
		expectStatus(t, rec, http.StatusOK)
		if events := decodeBody[listEventsResponse](t, rec).Events; len(events) != 0 {
			t.Fatalf("expected no events in annex, got %d", len(events))
		}

		rec = api.do(http.MethodGet, "/events/"+event.ID+"/conflicts", nil)
		expectStatus(t, rec, http.StatusOK)
		if conflicts := decodeBody[conflictsResponse](t, rec).Conflicts; len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %+v", conflicts)
		}
	})
}

func TestRoomHandlers(t *testing.T) {
	api := newTestAPI(t)
	api.createTalk("hall", 10, testfixtures.Slot(0, 10, 11))

	rec := api.do(http.MethodPost, "/features", featureRequest{Name: "Projector"})
	expectStatus(t, rec, http.StatusCreated)

	rec = api.do(http.MethodPost, "/rooms", roomRequest{Name: "Side Room", Capacity: 10, Features: []string{"Projector"}})
	expectStatus(t, rec, http.StatusCreated)
	room := decodeBody[roomResponse](t, rec).Room
	if room.ID != "side-room" || len(room.Features) != 1 {
		t.Fatalf("unexpected room: %+v", room)
	}

	rec = api.do(http.MethodPost, "/rooms", roomRequest{Name: "Side Room", Capacity: 10})
	expectErrorCode(t, rec, http.StatusConflict, "ALREADY_EXISTS")

	rec = api.do(http.MethodPost, "/rooms", roomRequest{Name: "", Capacity: 0})
	resp := expectErrorCode(t, rec, http.StatusUnprocessableEntity, "VALIDATION")
	if resp.Errors["capacity"] != "定員は正の整数で指定してください。" {
		t.Fatalf("unexpected errors: %+v", resp.Errors)
	}

	rec = api.do(http.MethodGet, "/rooms", nil)
	expectStatus(t, rec, http.StatusOK)
	if rooms := decodeBody[listRoomsResponse](t, rec).Rooms; len(rooms) != 3 {
		t.Fatalf("expected three rooms, got %d", len(rooms))
	}

	slot := testfixtures.Slot(0, 10, 11)
	query := url.Values{}
	query.Set("start", slot.Start.Format(time.RFC3339))
	query.Set("end", slot.End.Format(time.RFC3339))
	query.Set("capacity", "6")
	rec = api.do(http.MethodGet, "/rooms/available?"+query.Encode(), nil)
	expectStatus(t, rec, http.StatusOK)
	if rooms := decodeBody[listRoomsResponse](t, rec).Rooms; len(rooms) != 1 || rooms[0].ID != "side-room" {
		t.Fatalf("expected only the side room, got %+v", rooms)
	}

	rec = api.do(http.MethodGet, "/rooms/available?start=2025-06-02T10:00:00Z", nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = api.do(http.MethodGet, "/rooms/hall", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[roomResponse](t, rec).Room; got.Bookings != 1 {
		t.Fatalf("expected one booking, got %+v", got)
	}

	rec = api.do(http.MethodGet, "/rooms/nowhere", nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = api.do(http.MethodGet, "/features", nil)
	expectStatus(t, rec, http.StatusOK)
	if features := decodeBody[featuresResponse](t, rec).Features; len(features) != 1 || features[0] != "Projector" {
		t.Fatalf("unexpected features: %v", features)
	}
}

func TestAccountHandlers(t *testing.T) {
	api := newTestAPI(t)
	lounge := api.do(http.MethodPost, "/events", eventRequest{
		Kind: "party", Name: "Lounge", OrganizerID: "org", RoomID: "annex", Capacity: 5,
		Intervals: intervalBody(testfixtures.Slot(0, 12, 13)), VIPOnly: true,
	})
	expectStatus(t, lounge, http.StatusCreated)
	loungeID := decodeBody[eventResponse](t, lounge).Event.ID

	rec := api.do(http.MethodPost, "/accounts", accountRequest{Kind: "speaker", Username: "val", Password: "long-enough-secret"})
	expectStatus(t, rec, http.StatusCreated)
	if got := decodeBody[accountResponse](t, rec).Account; got.Kind != "speaker" || got.Username != "val" {
		t.Fatalf("unexpected account: %+v", got)
	}

	rec = api.do(http.MethodPost, "/accounts", accountRequest{Kind: "speaker", Username: "VAL", Password: "long-enough-secret"})
	expectErrorCode(t, rec, http.StatusConflict, "ALREADY_EXISTS")

	rec = api.do(http.MethodGet, "/accounts?kind=speaker", nil)
	expectStatus(t, rec, http.StatusOK)
	if accounts := decodeBody[listAccountsResponse](t, rec).Accounts; len(accounts) != 3 {
		t.Fatalf("expected three speakers, got %d", len(accounts))
	}

	rec = api.do(http.MethodGet, "/accounts?kind=wizard", nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = api.do(http.MethodGet, "/accounts/att/attendable", nil)
	expectStatus(t, rec, http.StatusOK)
	if events := decodeBody[listEventsResponse](t, rec).Events; len(events) != 0 {
		t.Fatalf("attendee must not see the VIP lounge, got %+v", events)
	}

	rec = api.do(http.MethodPost, "/accounts/att/vip", nil)
	expectStatus(t, rec, http.StatusOK)
	if !decodeBody[accountResponse](t, rec).Account.IsVIP {
		t.Fatalf("expected vip account")
	}

	rec = api.do(http.MethodGet, "/accounts/att/attendable", nil)
	expectStatus(t, rec, http.StatusOK)
	if events := decodeBody[listEventsResponse](t, rec).Events; len(events) != 1 || events[0].ID != loungeID {
		t.Fatalf("expected the lounge, got %+v", events)
	}

	rec = api.do(http.MethodPost, "/events/"+loungeID+"/attendees", attendeeRequest{AccountID: "att"})
	expectStatus(t, rec, http.StatusOK)

	rec = api.do(http.MethodDelete, "/accounts/att/vip", nil)
	expectStatus(t, rec, http.StatusOK)
	downgraded := decodeBody[accountResponse](t, rec)
	if downgraded.Account.IsVIP || len(downgraded.DroppedEvents) != 1 || downgraded.DroppedEvents[0] != loungeID {
		t.Fatalf("unexpected downgrade: %+v", downgraded)
	}

	rec = api.do(http.MethodPost, "/accounts/spk/vip", nil)
	expectErrorCode(t, rec, http.StatusConflict, "NOT_ELIGIBLE")

	rec = api.do(http.MethodGet, "/accounts/ghost", nil)
	expectStatus(t, rec, http.StatusNotFound)
	rec = api.do(http.MethodGet, "/accounts/hall", nil)
	expectErrorCode(t, rec, http.StatusNotFound, "NOT_FOUND")

	api.createTalk("hall", 10, testfixtures.Slot(0, 10, 11))
	slot := testfixtures.Slot(0, 10, 11)
	rec = api.do(http.MethodGet, "/speakers/available?start="+url.QueryEscape(slot.Start.Format(time.RFC3339))+"&end="+url.QueryEscape(slot.End.Format(time.RFC3339)), nil)
	expectStatus(t, rec, http.StatusOK)
	for _, speaker := range decodeBody[listAccountsResponse](t, rec).Accounts {
		if speaker.ID == "spk" {
			t.Fatalf("busy speaker listed as available")
		}
	}
}

func TestParticipantHandlers(t *testing.T) {
	api := newTestAPI(t)
	event := api.createTalk("hall", 10, testfixtures.Slot(0, 10, 11))

	rec := api.do(http.MethodGet, "/participants/spk/schedule", nil)
	expectStatus(t, rec, http.StatusOK)
	view := decodeBody[scheduleDTO](t, rec)
	if view.Kind != "speaker" || len(view.Items) != 1 || view.Items[0].Role != "host" || view.Items[0].EventID != event.ID {
		t.Fatalf("unexpected schedule: %+v", view)
	}

	rec = api.do(http.MethodGet, "/participants/hall/schedule", nil)
	expectStatus(t, rec, http.StatusOK)
	if view := decodeBody[scheduleDTO](t, rec); len(view.Items) != 1 || view.Items[0].Role != "room" {
		t.Fatalf("unexpected room schedule: %+v", view)
	}

	rec = api.do(http.MethodGet, "/participants/spk/schedule.ics", nil)
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "BEGIN:VEVENT") || !strings.Contains(body, event.ID+"-1@conference") {
		t.Fatalf("unexpected calendar:\n%s", body)
	}

	rec = api.do(http.MethodGet, "/participants/ghost/schedule", nil)
	expectErrorCode(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = api.do(http.MethodPost, "/participants/spk/schedule", nil)
	expectStatus(t, rec, http.StatusMethodNotAllowed)
}
