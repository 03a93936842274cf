package permissions

import "github.com/lochel/genealogy/models"

// Permission keys checked by the HTTP layer.
const (
	RelativeView   = "relative.view"
	RelativeEdit   = "relative.edit"
	RelativeUpload = "relative.image.upload"
	RelativeExport = "relative.export"
	DiagramRender  = "diagram.render"
	ValidateRun    = "validate.run"
	ContactList    = "contact.list"
	UserList       = "user.list"
	UserEdit       = "user.edit"
)

// PermissionDefinition describes a single, specific permission
type PermissionDefinition struct {
	Key         string `json:"key"`         // unique key, e.g., "relative.edit"
	Name        string `json:"name"`        // friendly name, e.g., "Edit Relatives"
	Description string `json:"description"` // detailed description of what the permission allows
}

// PermissionGroupDefinition groups related permissions
type PermissionGroupDefinition struct {
	Key         string                 `json:"key"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Permissions []PermissionDefinition `json:"permissions"`
}

// DefinedPermissionGroups holds all statically defined permission groups and their permissions
var DefinedPermissionGroups = []PermissionGroupDefinition{
	{
		Key:         "relative",
		Name:        "Family Records",
		Description: "Reading and editing relative records.",
		Permissions: []PermissionDefinition{
			{Key: RelativeView, Name: "View Relatives", Description: "Allows browsing, searching and reading relative pages."},
			{Key: RelativeEdit, Name: "Edit Relatives", Description: "Allows creating, editing and renaming relative records."},
			{Key: RelativeUpload, Name: "Upload Portraits", Description: "Allows uploading a portrait for a relative."},
		},
	},
	{
		Key:         "diagram",
		Name:        "Family Diagrams",
		Description: "Generating family tree diagrams.",
		Permissions: []PermissionDefinition{
			{Key: DiagramRender, Name: "Render Diagrams", Description: "Allows queueing diagram regeneration."},
			{Key: ValidateRun, Name: "Check Consistency", Description: "Allows running the whole-store consistency check."},
		},
	},
	{
		Key:         "admin",
		Name:        "Administration",
		Description: "Managing accounts and the site data.",
		Permissions: []PermissionDefinition{
			{Key: RelativeExport, Name: "Export Records", Description: "Allows downloading a zip archive of every record and portrait."},
			{Key: ContactList, Name: "Read Contact Messages", Description: "Allows listing submitted contact messages."},
			{Key: UserList, Name: "List Users", Description: "Allows viewing the list of accounts."},
			{Key: UserEdit, Name: "Change Roles", Description: "Allows activating accounts and changing their role."},
		},
	},
}

// rolePermissions maps each role to the permissions it grants. Inactive
// accounts get nothing.
var rolePermissions = map[models.Role][]string{
	models.RoleInactive: {},
	models.RoleMember:   {RelativeView, RelativeEdit, RelativeUpload, DiagramRender, ValidateRun},
}

var (
	allPermissionKeysMap map[string]PermissionDefinition
	allPermissionKeys    []string
)

func init() {
	allPermissionKeysMap = make(map[string]PermissionDefinition)
	for _, group := range DefinedPermissionGroups {
		for _, perm := range group.Permissions {
			allPermissionKeysMap[perm.Key] = perm
			allPermissionKeys = append(allPermissionKeys, perm.Key)
		}
	}
	rolePermissions[models.RoleAdmin] = GetAllPermissionKeys()
}

// GetAllPermissionKeys returns a slice of all unique permission string keys
func GetAllPermissionKeys() []string {
	keys := make([]string, len(allPermissionKeys))
	copy(keys, allPermissionKeys)
	return keys
}

// IsValidPermissionKey checks if a given permission key is defined
func IsValidPermissionKey(key string) bool {
	_, ok := allPermissionKeysMap[key]
	return ok
}

// ForRole returns the permission keys granted to role.
func ForRole(role models.Role) []string {
	keys := make([]string, len(rolePermissions[role]))
	copy(keys, rolePermissions[role])
	return keys
}

// Allowed reports whether role grants the permission key.
func Allowed(role models.Role, key string) bool {
	for _, k := range rolePermissions[role] {
		if k == key {
			return true
		}
	}
	return false
}
