package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWindowPrefersPage(t *testing.T) {
	limit, offset := Window(3, 7, 10)
	require.Equal(t, 10, limit)
	require.Equal(t, 20, offset)
}

func TestWindowDefaultsAndCaps(t *testing.T) {
	limit, offset := Window(0, -4, 0)
	require.Equal(t, DefaultPerPage, limit)
	require.Zero(t, offset)

	limit, offset = Window(0, 5, 1000)
	require.Equal(t, MaxPerPage, limit)
	require.Equal(t, 5, offset)
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 35)
	require.Equal(t, 4, p.TotalPages)
	require.Equal(t, 10, p.Offset)
}

func TestCatalogNamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, name := range CatalogNames() {
		require.False(t, seen[name], name)
		seen[name] = true
	}
	require.True(t, NutritionScopes(PermFoodView))
	require.False(t, NutritionScopes(PermUsersView))
}
