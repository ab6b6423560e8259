// Package http exposes the conference scheduler over JSON endpoints.
//
// The router serves:
//   - GET /events, POST /events: list with room, organizer, kind, from, to and
//     vip_only filters; create from the `eventRequest` payload, optionally with
//     host_ids assigned atomically.
//   - GET /events/{id}, DELETE /events/{id}: fetch or cancel an event.
//   - PUT /events/{id}/hosts|intervals|room|capacity|vip|features: single field
//     updates. A reschedule reports the attendees it had to drop.
//   - POST /events/{id}/attendees, DELETE /events/{id}/attendees/{account}.
//   - GET /events/{id}/conflicts: diagnostic overlap report.
//   - GET /rooms, POST /rooms, GET /rooms/{id}, GET /rooms/available, plus
//     GET /features and POST /features for the feature catalog.
//   - GET /accounts, POST /accounts, GET /accounts/{id},
//     POST|DELETE /accounts/{id}/vip, GET /accounts/{id}/attendable and
//     GET /speakers/available.
//   - GET /participants/{id}/schedule and GET /participants/{id}/schedule.ics.
//
// Business rule violations answer 409, unknown ids 404, field errors 422 and
// malformed bodies 400. Messages are localized; error_code carries the stable
// error kind. Request/response DTOs live alongside their handlers.
package http
