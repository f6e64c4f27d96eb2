package sysinspect

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeInspectSetAndRemove(t *testing.T) {
	f := NewFake()

	_, err := f.Inspect(1)
	assert.True(t, errors.Is(err, ErrNotFound))

	ft := time.Now()
	f.Set(1, Info{Path: "/usr/bin/cron", ForkTime: ft, PPID: 0, Cwd: "/"})

	info, err := f.Inspect(1)
	assert.NoError(t, err)
	assert.Equal(t, "/usr/bin/cron", info.Path)
	assert.Equal(t, ft, info.ForkTime)

	f.Remove(1)
	_, err = f.Inspect(1)
	assert.True(t, errors.Is(err, ErrNotFound))
}
