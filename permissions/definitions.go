package permissions

// Project member roles
const (
	RoleAnnotator = "annotator"
	RoleReviewer  = "reviewer"
)

// Permission keys granted through project roles
const (
	ImageViewAssigned      = "image.view_assigned"
	ImageViewAll           = "image.view_all"
	AnnotationEditAssigned = "annotation.edit_assigned"
	AnnotationEditAll      = "annotation.edit_all"
)

// PermissionDefinition describes a single, specific permission
type PermissionDefinition struct {
	Key         string `json:"key"`         // unique key, e.g., "image.view_all"
	Name        string `json:"name"`        // friendly name, e.g., "View All Images"
	Description string `json:"description"` // detailed description of what the permission allows
}

// RoleDefinition describes a project role and the permissions it grants
type RoleDefinition struct {
	Key         string                 `json:"key"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Permissions []PermissionDefinition `json:"permissions"`
}

var (
	viewAssigned = PermissionDefinition{
		Key:         ImageViewAssigned,
		Name:        "View Assigned Images",
		Description: "Allows viewing images assigned to the member.",
	}
	viewAll = PermissionDefinition{
		Key:         ImageViewAll,
		Name:        "View All Images",
		Description: "Allows viewing every image of the project, assigned or not.",
	}
	editAssigned = PermissionDefinition{
		Key:         AnnotationEditAssigned,
		Name:        "Annotate Assigned Images",
		Description: "Allows creating, editing and deleting annotations on images assigned to the member.",
	}
	editAll = PermissionDefinition{
		Key:         AnnotationEditAll,
		Name:        "Annotate All Images",
		Description: "Allows correcting annotations on any image of the project.",
	}
)

// DefinedRoles holds all statically defined project roles
var DefinedRoles = []RoleDefinition{
	{
		Key:         RoleAnnotator,
		Name:        "Annotator",
		Description: "Labels the images in their work queue.",
		Permissions: []PermissionDefinition{viewAssigned, editAssigned},
	},
	{
		Key:         RoleReviewer,
		Name:        "Reviewer",
		Description: "Checks and corrects annotations across the whole project.",
		Permissions: []PermissionDefinition{viewAssigned, viewAll, editAssigned, editAll},
	},
}

var rolePermissions map[string]map[string]bool

func init() {
	rolePermissions = make(map[string]map[string]bool, len(DefinedRoles))
	for _, role := range DefinedRoles {
		granted := make(map[string]bool, len(role.Permissions))
		for _, perm := range role.Permissions {
			granted[perm.Key] = true
		}
		rolePermissions[role.Key] = granted
	}
}

// IsValidRole checks if a given role key is defined
func IsValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// RoleHas reports whether the role grants the permission
func RoleHas(role, permission string) bool {
	return rolePermissions[role][permission]
}
