package user

import "strings"

// Roles
const (
	// Admin
	RoleAdmin      = "admin:"
	RoleAdminOwner = "admin:owner"

	// Faculty
	RoleFaculty = "faculty:"

	// Coordinator
	RoleCoordinator = "coordinator:"

	// Student
	RoleStudent = "student:"
)

var (
	AdminRoles       = []string{RoleAdmin, RoleAdminOwner}
	FacultyRoles     = []string{RoleFaculty}
	CoordinatorRoles = []string{RoleCoordinator}
	StudentRoles     = []string{RoleStudent}
	AllRoles         = getAllRoles()

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Coordinator", Value: RoleCoordinator},
		{Name: "Faculty", Value: RoleFaculty},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Admin Owner", Value: RoleAdminOwner},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 5)
	all = append(all, AdminRoles...)
	all = append(all, FacultyRoles...)
	all = append(all, CoordinatorRoles...)
	all = append(all, StudentRoles...)
	return all
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is the authenticated identity attached to a request or a realtime
// subscription. Accounts and credentials are owned by an external auth
// collaborator; the portal only ever sees what the token claims carry.
type User struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsFaculty() bool {
	return u.RoleStartsWith(RoleFaculty)
}

func (u *User) IsCoordinator() bool {
	return u.RoleStartsWith(RoleCoordinator)
}

func (u *User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}
