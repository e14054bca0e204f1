package shared

import "strings"

// Food permissions.
const (
	PermFoodView   = "food.view"
	PermFoodCreate = "food.create"
	PermFoodUpdate = "food.update"
	PermFoodDelete = "food.delete"
)

// Meal permissions.
const (
	PermMealView   = "meal.view"
	PermMealCreate = "meal.create"
	PermMealUpdate = "meal.update"
	PermMealDelete = "meal.delete"
)

// Core platform permissions.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"
	PermPermissionsEdit = "permissions.edit"
)

// Base role names.
const (
	RoleAdmin      = "admin"
	RoleUser       = "user"
	RoleSpecialist = "specialist"
)

// CatalogEntry describes a permission seeded at startup.
type CatalogEntry struct {
	Name        string
	Description string
}

// PermissionCatalog lists every permission the seeder guarantees.
func PermissionCatalog() []CatalogEntry {
	return []CatalogEntry{
		{PermFoodView, "View foods"},
		{PermFoodCreate, "Create foods"},
		{PermFoodUpdate, "Update foods"},
		{PermFoodDelete, "Delete foods"},
		{PermMealView, "View meals"},
		{PermMealCreate, "Create meals"},
		{PermMealUpdate, "Update meals"},
		{PermMealDelete, "Delete meals"},
		{PermUsersView, "View users"},
		{PermUsersEdit, "Manage users"},
		{PermRolesView, "View roles"},
		{PermRolesEdit, "Manage roles"},
		{PermPermissionsView, "View permissions"},
		{PermPermissionsEdit, "Manage permissions"},
	}
}

// CatalogNames returns the names of PermissionCatalog in declaration order.
func CatalogNames() []string {
	catalog := PermissionCatalog()
	names := make([]string, 0, len(catalog))
	for _, entry := range catalog {
		names = append(names, entry.Name)
	}
	return names
}

// NutritionScopes reports whether a permission belongs to the food or meal domains.
func NutritionScopes(name string) bool {
	return strings.HasPrefix(name, "food.") || strings.HasPrefix(name, "meal.")
}
