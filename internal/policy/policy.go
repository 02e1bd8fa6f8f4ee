// Package policy is the single authorization table consulted by the services.
// Ownership checks (a doctor touching only their own rows) stay with the
// service that loaded the row; this table only answers which roles may
// attempt an action at all.
package policy

import (
	"fmt"

	"medvision-server/internal/apperrors"
	"medvision-server/internal/models"
)

type Resource string

const (
	Appointments  Resource = "appointment"
	Prescriptions Resource = "prescription"
	Admins        Resource = "admin"
	Doctors       Resource = "doctor"
	Patients      Resource = "patient"
)

type Action string

const (
	Create     Action = "create"
	Read       Action = "read"
	List       Action = "list"
	Update     Action = "update"
	Delete     Action = "delete"
	IssueToken Action = "issue_token"
	ListPublic Action = "list_public"
)

type rule struct {
	resource Resource
	action   Action
}

var (
	adminOnly   = roles(models.RoleAdmin)
	adminDoctor = roles(models.RoleAdmin, models.RoleDoctor)
	everyone    = roles(models.RoleAdmin, models.RoleDoctor, models.RolePatient)
)

var table = map[rule]map[models.Role]bool{
	{Appointments, Create}:     adminOnly,
	{Appointments, Read}:       everyone,
	{Appointments, List}:       everyone,
	{Appointments, Update}:     adminDoctor,
	{Appointments, Delete}:     adminOnly,
	{Appointments, IssueToken}: everyone,

	{Prescriptions, Create}: adminDoctor,
	{Prescriptions, Read}:   everyone,
	{Prescriptions, List}:   everyone,
	{Prescriptions, Update}: adminDoctor,
	{Prescriptions, Delete}: adminDoctor,

	{Admins, Create}: adminOnly,

	{Doctors, Create}:     adminOnly,
	{Doctors, Read}:       adminOnly,
	{Doctors, List}:       adminOnly,
	{Doctors, Update}:     adminOnly,
	{Doctors, Delete}:     adminOnly,
	{Doctors, ListPublic}: everyone,

	{Patients, Create}: adminOnly,
	{Patients, Read}:   adminDoctor,
	{Patients, List}:   adminDoctor,
	{Patients, Update}: adminOnly,
	{Patients, Delete}: adminOnly,
}

func roles(rs ...models.Role) map[models.Role]bool {
	m := make(map[models.Role]bool, len(rs))
	for _, r := range rs {
		m[r] = true
	}
	return m
}

// Allowed reports whether role may perform action on resource.
func Allowed(role models.Role, resource Resource, action Action) bool {
	return table[rule{resource, action}][role]
}

// Authorize returns a Forbidden error unless the role is allowed.
func Authorize(role models.Role, resource Resource, action Action) error {
	if Allowed(role, resource, action) {
		return nil
	}
	return apperrors.Forbidden(fmt.Sprintf("role %q may not %s %s", role, action, resource))
}
