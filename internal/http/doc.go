// Package http provides HTTP handlers and middleware for the team hours API.
//
// Every route below /api requires an `Authorization: Bearer <token>` header
// carrying an HS256 token whose subject is the calling user id.
//
// The router exposes the following endpoints:
//   - GET /healthz: liveness check, no authentication.
//   - GET /api/teams: the caller's teams with the role held in each.
//   - POST /api/teams: creates a team owned by the caller. Body: {"slug","displayName"}.
//   - POST /api/teams/{slug}/users: grants a user a role in the team. Body: {"userId","role"}.
//   - GET /api/teams/{slug}/users/{userId}, DELETE /api/teams/{slug}/users/{userId}:
//     reads or revokes a user's role. The owner cannot be removed.
//   - GET /api/teams/{slug}/members, POST /api/teams/{slug}/members: member
//     listing (`?view=full` adds last seen timestamps) and creation, exchanging
//     the `memberDTO` payload defined in member_handler.go.
//   - POST /api/teams/{slug}/end-meeting: signs out everyone currently present.
//   - PATCH /api/members/{id}, DELETE /api/members/{id}: rename and archive in
//     one transaction, or delete a member.
//   - PUT /api/members/{id}/attendance: signs a member in or out. Body: {"atMeeting"}.
//   - GET /api/members/{id}/sessions, GET /api/teams/{slug}/sessions: closed
//     sessions of a member or a whole team, optionally limited by `start` and `end`.
//   - GET /api/teams/{slug}/stats/{combined-hours,unique-members,average-hours}:
//     analytics over `start` and `end` (RFC 3339). `series=1` switches the
//     scalar endpoints to a bucketed series and `tz` selects the display zone.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
