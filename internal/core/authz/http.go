// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/gatekeep/internal/platform/middleware"
	requestutil "github.com/taibuivan/gatekeep/internal/platform/request"
	"github.com/taibuivan/gatekeep/internal/platform/respond"
	"github.com/taibuivan/gatekeep/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements the authorization HTTP endpoints: the decision surface
// consumed by sibling services, and the group/grant management surface.
type Handler struct {
	pdp     *PDP
	service *Service
}

// NewHandler constructs a new [Handler].
func NewHandler(pdp *PDP, service *Service) *Handler {
	return &Handler{pdp: pdp, service: service}
}

// DecisionRoutes returns the decision surface: authorize, per-user permission
// listings, and the system permission registry. The authorize endpoint is
// open to service principals; rate limiting is applied where these routes are
// mounted.
func (handler *Handler) DecisionRoutes() chi.Router {
	router := chi.NewRouter()

	router.Post("/authorize", handler.Authorize)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/users/{userID}/permissions", handler.listUserPermissions)
		r.Get("/users/{userID}/check-permission", handler.checkPermission)
		r.Post("/system-permissions", handler.createPermission)
		r.Get("/system-permissions", handler.listPermissions)
	})

	return router
}

// GroupRoutes returns the group management surface, meant to be mounted under
// an organization route so {orgID} resolves from the URL. Role checks live in
// the service layer.
func (handler *Handler) GroupRoutes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireAuth)

	router.Post("/", handler.createGroup)
	router.Get("/", handler.listGroups)

	router.Route("/{groupID}", func(r chi.Router) {
		r.Get("/", handler.getGroup)
		r.Patch("/", handler.updateGroup)
		r.Delete("/", handler.deleteGroup)

		r.Post("/members", handler.addGroupMember)
		r.Get("/members", handler.listGroupMembers)
		r.Delete("/members/{userID}", handler.removeGroupMember)

		r.Post("/permissions", handler.grantPermission)
		r.Get("/permissions", handler.listGroupGrants)
		r.Delete("/permissions/{permission}", handler.revokePermission)
	})

	return router
}

// # Request Payloads

type groupRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type groupMemberRequest struct {
	UserID string `json:"user_id"`
}

type grantRequest struct {
	Permission string `json:"permission"`
}

type permissionRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// # Decision Handlers

/*
Authorize answers a single authorization question. Exported so the server can
also mount it at the legacy /auth/authorize path sibling services call.

POST /api/v1/authz/authorize
POST /api/v1/auth/authorize

Request:
  - Body: CheckInput (UserID, OrgID, Permission, ResourceID?)

Response:
  - 200: Decision: Granted flag, reason, matched groups, serving tier
  - 400: validation_failed: Malformed identifiers or permission name
  - 503: service_unavailable: Resolution failed after retry
*/
func (handler *Handler) Authorize(writer http.ResponseWriter, request *http.Request) {
	var input CheckInput
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}
	input.CallerIP = middleware.RealIP(request)

	decision, err := handler.pdp.Authorize(request.Context(), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, decision)
}

/*
ListUserPermissions returns the effective permission set of a user within an
organization.

GET /api/v1/authz/users/{userID}/permissions?organization_id=...

Response:
  - 200: Snapshot: permission name → granting group IDs
  - 400: validation_failed: Missing organization_id
  - 503: service_unavailable
*/
func (handler *Handler) listUserPermissions(writer http.ResponseWriter, request *http.Request) {
	userID := requestutil.Param(request, "userID")
	orgID := request.URL.Query().Get(FieldOrgID)

	validator := &validate.Validator{}
	validator.Required(FieldUserID, userID).
		UUID(FieldUserID, userID).
		Required(FieldOrgID, orgID).
		UUID(FieldOrgID, orgID)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	snapshot, err := handler.pdp.ResolvePermissions(request.Context(), userID, orgID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, snapshot)
}

/*
CheckPermission is the query-string twin of Authorize, for callers that
cannot send a body.

GET /api/v1/authz/users/{userID}/check-permission?organization_id=...&permission=...&resource_id=...

Response:
  - 200: Decision
  - 400: validation_failed
  - 503: service_unavailable
*/
func (handler *Handler) checkPermission(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	input := CheckInput{
		UserID:     requestutil.Param(request, "userID"),
		OrgID:      query.Get(FieldOrgID),
		Permission: query.Get(FieldPermission),
		ResourceID: query.Get(FieldResourceID),
		CallerIP:   middleware.RealIP(request),
	}

	decision, err := handler.pdp.Authorize(request.Context(), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, decision)
}

/*
CheckOrgPermission answers an authorization question scoped by the org in the
URL. Exported so the server can mount it on the organization router, where the
orgID pattern already lives.

GET /api/v1/orgs/{orgID}/check-permission?user_id=...&permission=...&resource_id=...

Response:
  - 200: Decision
  - 400: validation_failed
  - 503: service_unavailable
*/
func (handler *Handler) CheckOrgPermission(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	input := CheckInput{
		UserID:     query.Get(FieldUserID),
		OrgID:      requestutil.Param(request, "orgID"),
		Permission: query.Get(FieldPermission),
		ResourceID: query.Get(FieldResourceID),
		CallerIP:   middleware.RealIP(request),
	}

	decision, err := handler.pdp.Authorize(request.Context(), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, decision)
}

/*
CreatePermission registers a system-wide permission name.

POST /api/v1/authz/system-permissions

Request:
  - Body: permissionRequest (Name, Description?)

Response:
  - 201: Permission
  - 400: validation_failed: Name not in resource:action form, or duplicate
*/
func (handler *Handler) createPermission(writer http.ResponseWriter, request *http.Request) {
	var input permissionRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	permission, err := handler.service.CreatePermission(request.Context(), input.Name, input.Description)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, permission)
}

/*
ListPermissions returns the system permission registry.

GET /api/v1/authz/system-permissions

Response:
  - 200: []Permission
*/
func (handler *Handler) listPermissions(writer http.ResponseWriter, request *http.Request) {
	permissions, err := handler.service.ListPermissions(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{FieldItems: permissions})
}

// # Group Handlers

/*
CreateGroup provisions a permission group inside the organization.

POST /api/v1/orgs/{orgID}/groups

Request:
  - Body: groupRequest (Name, Description?)

Response:
  - 201: Group
  - 403: insufficient_role / not_a_member
  - 409: conflict_group_name
*/
func (handler *Handler) createGroup(writer http.ResponseWriter, request *http.Request) {
	callerID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input groupRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	group, err := handler.service.CreateGroup(
		request.Context(),
		requestutil.Param(request, "orgID"),
		callerID,
		input.Name,
		input.Description,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, group)
}

/*
ListGroups returns the organization's groups.

GET /api/v1/orgs/{orgID}/groups

Response:
  - 200: []Group
  - 403: not_a_member
*/
func (handler *Handler) listGroups(writer http.ResponseWriter, request *http.Request) {
	callerID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	groups, err := handler.service.ListGroups(request.Context(), requestutil.Param(request, "orgID"), callerID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{FieldItems: groups})
}

/*
GetGroup returns a single group.

GET /api/v1/orgs/{orgID}/groups/{groupID}

Response:
  - 200: Group
  - 404: not_found
*/
func (handler *Handler) getGroup(writer http.ResponseWriter, request *http.Request) {
	callerID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	group, err := handler.service.GetGroup(request.Context(), requestutil.Param(request, "groupID"), callerID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, group)
}

/*
UpdateGroup renames a group or changes its description.

PATCH /api/v1/orgs/{orgID}/groups/{groupID}

Request:
  - Body: groupRequest (Name, Description?)

Response:
  - 200: Group
  - 403: insufficient_role / not_a_member
  - 409: conflict_group_name
*/
func (handler *Handler) updateGroup(writer http.ResponseWriter, request *http.Request) {
	callerID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input groupRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	group, err := handler.service.UpdateGroup(
		request.Context(),
		requestutil.Param(request, "groupID"),
		callerID,
		input.Name,
		input.Description,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, group)
}

/*
DeleteGroup removes a group, its memberships, and its grants.

DELETE /api/v1/orgs/{orgID}/groups/{groupID}

Response:
  - 204: No Content
  - 403: insufficient_role / not_a_member
*/
func (handler *Handler) deleteGroup(writer http.ResponseWriter, request *http.Request) {
	callerID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.DeleteGroup(request.Context(), requestutil.Param(request, "groupID"), callerID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
AddGroupMember links an organization member into the group.

POST /api/v1/orgs/{orgID}/groups/{groupID}/members

Request:
  - Body: groupMemberRequest (UserID)

Response:
  - 201: GroupMember
  - 400: validation_failed: Target is not an organization member
  - 403: insufficient_role / not_a_member
*/
func (handler *Handler) addGroupMember(writer http.ResponseWriter, request *http.Request) {
	callerID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input groupMemberRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUserID, input.UserID).UUID(FieldUserID, input.UserID)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	member, err := handler.service.AddGroupMember(
		request.Context(),
		requestutil.Param(request, "groupID"),
		callerID,
		input.UserID,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, member)
}

/*
ListGroupMembers returns the group's roster.

GET /api/v1/orgs/{orgID}/groups/{groupID}/members

Response:
  - 200: []GroupMember
  - 403: not_a_member
*/
func (handler *Handler) listGroupMembers(writer http.ResponseWriter, request *http.Request) {
	callerID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	members, err := handler.service.ListGroupMembers(request.Context(), requestutil.Param(request, "groupID"), callerID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{FieldItems: members})
}

/*
RemoveGroupMember unlinks a user from the group.

DELETE /api/v1/orgs/{orgID}/groups/{groupID}/members/{userID}

Response:
  - 204: No Content
  - 403: insufficient_role / not_a_member
*/
func (handler *Handler) removeGroupMember(writer http.ResponseWriter, request *http.Request) {
	callerID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.service.RemoveGroupMember(
		request.Context(),
		requestutil.Param(request, "groupID"),
		callerID,
		requestutil.Param(request, "userID"),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
GrantPermission attaches a registered permission to the group.

POST /api/v1/orgs/{orgID}/groups/{groupID}/permissions

Request:
  - Body: grantRequest (Permission)

Response:
  - 201: Grant
  - 403: insufficient_role / not_a_member
  - 404: not_found: Permission not registered
  - 409: permission_already_granted
*/
func (handler *Handler) grantPermission(writer http.ResponseWriter, request *http.Request) {
	callerID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input grantRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	grant, err := handler.service.GrantPermission(
		request.Context(),
		requestutil.Param(request, "groupID"),
		callerID,
		input.Permission,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, grant)
}

/*
ListGroupGrants returns the permissions attached to the group.

GET /api/v1/orgs/{orgID}/groups/{groupID}/permissions

Response:
  - 200: []Grant
  - 403: not_a_member
*/
func (handler *Handler) listGroupGrants(writer http.ResponseWriter, request *http.Request) {
	callerID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	grants, err := handler.service.ListGroupGrants(request.Context(), requestutil.Param(request, "groupID"), callerID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{FieldItems: grants})
}

/*
RevokePermission detaches a permission from the group.

DELETE /api/v1/orgs/{orgID}/groups/{groupID}/permissions/{permission}

Response:
  - 204: No Content
  - 403: insufficient_role / not_a_member
  - 404: not_found: Permission not registered
*/
func (handler *Handler) revokePermission(writer http.ResponseWriter, request *http.Request) {
	callerID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.service.RevokePermission(
		request.Context(),
		requestutil.Param(request, "groupID"),
		callerID,
		requestutil.Param(request, "permission"),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
