package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xnumon-go/procmon/internal/procmon"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "procmond.conf")
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	p := writeConfig(t, "[Global]\n")
	fc, err := Load(p)
	require.NoError(t, err)

	assert.EqualValues(t, -1, fc.Ancestors)
	assert.Equal(t, "CSIG", fc.KextLevel)
	assert.Equal(t, []string{"sha256"}, fc.Hash)
	assert.True(t, fc.Codesign)
	assert.Equal(t, []string{"/usr/libexec/xpcproxy", "/usr/sbin/ocspd"}, fc.KernCodesignSkipPath)

	cfg := fc.ToCore()
	assert.EqualValues(t, procmon.AncestorsUnbounded, cfg.Ancestors)
	assert.Equal(t, procmon.KextLevelCSig, cfg.KextLevel)
	assert.Equal(t, procmon.HashSHA256, cfg.HashFlags)
	assert.True(t, cfg.Codesign)
}

func TestLoadOverridesAndSuppressionLists(t *testing.T) {
	p := writeConfig(t, `[Global]
Ancestors = 4
Kext-Level = HASH
Hash = md5
Hash = sha512
Codesign = false
Suppress-At-Start = true
Suppress-By-Ident = com.apple.ls
Suppress-By-Path = /usr/bin/true
Suppress-By-Ancestor-Ident = com.apple.launchd
Suppress-By-Ancestor-Path = /sbin/init
`)
	fc, err := Load(p)
	require.NoError(t, err)

	assert.EqualValues(t, 4, fc.Ancestors)
	assert.Equal(t, "HASH", fc.KextLevel)
	assert.ElementsMatch(t, []string{"md5", "sha512"}, fc.Hash)
	assert.False(t, fc.Codesign)
	assert.True(t, fc.SuppressAtStart)

	cfg := fc.ToCore()
	assert.EqualValues(t, 4, cfg.Ancestors)
	assert.Equal(t, procmon.KextLevelHash, cfg.KextLevel)
	assert.Equal(t, procmon.HashMD5|procmon.HashSHA512, cfg.HashFlags)
	assert.False(t, cfg.Codesign)
	assert.True(t, cfg.SuppressAtStart)

	_, ok := cfg.Suppressions.ByIdent["com.apple.ls"]
	assert.True(t, ok)
	_, ok = cfg.Suppressions.ByPath["/usr/bin/true"]
	assert.True(t, ok)
	_, ok = cfg.Suppressions.ByAncestorIdent["com.apple.launchd"]
	assert.True(t, ok)
	_, ok = cfg.Suppressions.ByAncestorPath["/sbin/init"]
	assert.True(t, ok)
}

func TestLoadRejectsInvalidKextLevel(t *testing.T) {
	p := writeConfig(t, "[Global]\nKext-Level = BOGUS\n")
	_, err := Load(p)
	assert.ErrorIs(t, err, ErrInvalidKextLevel)
}

func TestLoadRejectsInvalidHash(t *testing.T) {
	p := writeConfig(t, "[Global]\nHash = crc32\n")
	_, err := Load(p)
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	big := make([]byte, maxConfigSize+1)
	for i := range big {
		big[i] = 'x'
	}
	p := writeConfig(t, string(big))
	_, err := Load(p)
	assert.ErrorIs(t, err, ErrConfigFileTooLarge)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.conf"))
	assert.Error(t, err)
}
