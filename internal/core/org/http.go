// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package org

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/gatekeep/internal/platform/middleware"
	requestutil "github.com/taibuivan/gatekeep/internal/platform/request"
	"github.com/taibuivan/gatekeep/internal/platform/respond"
	"github.com/taibuivan/gatekeep/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements organization-related HTTP endpoints.
type Handler struct {
	orgService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{orgService: service}
}

// Routes returns a [chi.Router] configured with organization routes.
// Everything here requires authentication; per-operation role checks live in
// the service layer.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireAuth)

	router.Post("/", handler.create)
	router.Get("/", handler.listMine)
	router.Get("/{identifier}", handler.get)
	router.Delete("/{orgID}", handler.remove)

	router.Route("/{orgID}/members", func(r chi.Router) {
		r.Post("/", handler.addMember)
		r.Get("/", handler.listMembers)
		r.Patch("/{userID}", handler.updateMemberRole)
		r.Delete("/{userID}", handler.removeMember)
		r.Get("/{userID}/role", handler.getRole)
	})

	return router
}

// # Request Payloads

type createOrgRequest struct {
	Name string `json:"name"`
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// # Handlers

/*
Create provisions a new organization owned by the caller.

POST /api/v1/orgs

Request:
  - Body: createOrgRequest (Name)

Response:
  - 201: Organization: Created tenant
  - 409: conflict_slug: Slug already taken
*/
func (handler *Handler) create(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input createOrgRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	organization, err := handler.orgService.CreateOrganization(request.Context(), input.Name, userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, organization)
}

/*
ListMine returns the organizations the caller belongs to, with roles.

GET /api/v1/orgs

Response:
  - 200: []Membership
*/
func (handler *Handler) listMine(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	memberships, err := handler.orgService.ListUserOrganizations(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{FieldItems: memberships})
}

/*
Get resolves an organization by UUID or slug.

GET /api/v1/orgs/{identifier}

Response:
  - 200: Organization
  - 404: not_found
*/
func (handler *Handler) get(writer http.ResponseWriter, request *http.Request) {
	identifier := requestutil.Param(request, "identifier")

	organization, err := handler.orgService.GetOrganization(request.Context(), identifier)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, organization)
}

/*
Remove soft-deletes an organization. Owner only.

DELETE /api/v1/orgs/{orgID}

Response:
  - 204: No Content
  - 403: insufficient_role / not_a_member
*/
func (handler *Handler) remove(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.orgService.DeleteOrganization(request.Context(), requestutil.Param(request, "orgID"), userID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
AddMember enrolls a user into the organization.

POST /api/v1/orgs/{orgID}/members

Request:
  - Body: addMemberRequest (UserID, Role)

Response:
  - 201: Member: Created membership
  - 403: insufficient_role / not_a_member
*/
func (handler *Handler) addMember(writer http.ResponseWriter, request *http.Request) {
	callerID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input addMemberRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUserID, input.UserID).
		UUID(FieldUserID, input.UserID).
		Required(FieldRole, input.Role)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	member, err := handler.orgService.AddMember(
		request.Context(),
		requestutil.Param(request, "orgID"),
		callerID,
		input.UserID,
		Role(input.Role),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, member)
}

/*
ListMembers returns the organization roster. Members only.

GET /api/v1/orgs/{orgID}/members

Response:
  - 200: []Member
  - 403: not_a_member
*/
func (handler *Handler) listMembers(writer http.ResponseWriter, request *http.Request) {
	callerID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	members, err := handler.orgService.ListMembers(request.Context(), requestutil.Param(request, "orgID"), callerID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{FieldItems: members})
}

/*
UpdateMemberRole moves a member along the role ladder. Owner only.

PATCH /api/v1/orgs/{orgID}/members/{userID}

Request:
  - Body: updateRoleRequest (Role)

Response:
  - 200: Success
  - 400: validation_failed: Last-owner guard or unknown role
  - 403: insufficient_role / not_a_member
*/
func (handler *Handler) updateMemberRole(writer http.ResponseWriter, request *http.Request) {
	callerID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input updateRoleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.Role == "" {
		respond.Error(writer, request, validate.RequiredError(FieldRole, "is required"))
		return
	}

	err = handler.orgService.UpdateMemberRole(
		request.Context(),
		requestutil.Param(request, "orgID"),
		callerID,
		requestutil.Param(request, "userID"),
		Role(input.Role),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{FieldMessage: "Role updated"})
}

/*
RemoveMember drops a user from the organization.

DELETE /api/v1/orgs/{orgID}/members/{userID}

Response:
  - 204: No Content
  - 400: validation_failed: Last-owner guard
  - 403: insufficient_role / not_a_member
*/
func (handler *Handler) removeMember(writer http.ResponseWriter, request *http.Request) {
	callerID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.orgService.RemoveMember(
		request.Context(),
		requestutil.Param(request, "orgID"),
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
GetRole returns a user's role within the organization.

GET /api/v1/orgs/{orgID}/members/{userID}/role

Response:
  - 200: {role}
  - 403: not_a_member
*/
func (handler *Handler) getRole(writer http.ResponseWriter, request *http.Request) {
	if _, err := requestutil.RequiredUserID(request); err != nil {
		respond.Error(writer, request, err)
		return
	}

	role, err := handler.orgService.GetRole(
		request.Context(),
		requestutil.Param(request, "orgID"),
		requestutil.Param(request, "userID"),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{FieldRole: string(role)})
}
