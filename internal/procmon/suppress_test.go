package procmon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsIdentMatchesIdentOrTeamID(t *testing.T) {
	set := map[string]struct{}{"com.apple.ls": {}, "TEAMID123": {}}
	assert.True(t, containsIdent(set, "com.apple.ls", ""))
	assert.True(t, containsIdent(set, "", "TEAMID123"))
	assert.False(t, containsIdent(set, "com.evil.thing", "OTHERTEAM"))
	assert.False(t, containsIdent(nil, "com.apple.ls", ""))
}

func TestContainsPath(t *testing.T) {
	set := map[string]struct{}{"/bin/nc": {}}
	assert.True(t, containsPath(set, "/bin/nc"))
	assert.False(t, containsPath(set, "/bin/ls"))
	assert.False(t, containsPath(set, ""))
	assert.False(t, containsPath(nil, "/bin/nc"))
}
