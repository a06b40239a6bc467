package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompileMatcher_Exact(t *testing.T) {
	m := CompileMatcher("tickets.view_all")

	assert.True(t, m.Matches("tickets.view_all"))
	assert.False(t, m.Matches("tickets.view_own"))
	assert.False(t, m.Matches("tickets.view_all_extended"))
}

func TestCompileMatcher_Prefix(t *testing.T) {
	m := CompileMatcher("tickets.*")

	assert.True(t, m.Matches("tickets.view_all"))
	assert.True(t, m.Matches("tickets.delete_own"))
	assert.False(t, m.Matches("users.view_all"))
}

func TestCompileMatcher_Suffix(t *testing.T) {
	m := CompileMatcher("*.view_all")

	assert.True(t, m.Matches("tickets.view_all"))
	assert.True(t, m.Matches("users.view_all"))
	assert.False(t, m.Matches("tickets.view_own"))
}

func TestCompileMatcher_Pattern(t *testing.T) {
	m := CompileMatcher("tickets.*_department")

	assert.True(t, m.Matches("tickets.view_department"))
	assert.True(t, m.Matches("tickets.update_department"))
	assert.False(t, m.Matches("tickets.view_all"))
	assert.False(t, m.Matches("users.view_department"))
}

func TestCompileMatcher_FullWildcard(t *testing.T) {
	m := CompileMatcher("*")

	assert.True(t, m.Matches("tickets.view_all"))
	assert.True(t, m.Matches("anything.at.all"))
}

func TestCompileMatcher_EscapesRegexMetacharacters(t *testing.T) {
	// Dots in permission names must match literally
	m := CompileMatcher("tickets.view")

	assert.False(t, m.Matches("ticketsXview"))
	assert.True(t, m.Matches("tickets.view"))
}

func TestPermissionSatisfied_ExactHeld(t *testing.T) {
	held := []string{"tickets.view_own", "tickets.update_own"}

	assert.True(t, PermissionSatisfied("tickets.view_own", held))
	assert.False(t, PermissionSatisfied("tickets.view_all", held))
}

func TestPermissionSatisfied_WildcardHeld(t *testing.T) {
	held := []string{"tickets.*"}

	assert.True(t, PermissionSatisfied("tickets.view_all", held))
	assert.True(t, PermissionSatisfied("tickets.delete_all", held))
	assert.False(t, PermissionSatisfied("users.view_all", held))
}

func TestPermissionSatisfied_WildcardRequired(t *testing.T) {
	// A held concrete permission satisfies a wildcard requirement when it
	// falls inside the required class
	held := []string{"tickets.view_department"}

	assert.True(t, PermissionSatisfied("tickets.view_*", held))
	assert.False(t, PermissionSatisfied("users.*", held))
}

func TestPermissionSatisfied_BreakGlassStar(t *testing.T) {
	held := []string{"*"}

	assert.True(t, PermissionSatisfied("tickets.delete_all", held))
	assert.True(t, PermissionSatisfied("roles.assign", held))
}

func TestPermissionSatisfied_EmptyHeld(t *testing.T) {
	assert.False(t, PermissionSatisfied("tickets.view_own", nil))
	assert.False(t, PermissionSatisfied("tickets.view_own", []string{}))
}
