package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stackward/stackward/internal/config"
)

func TestResolveRemoteDegradesToLocalOnly(t *testing.T) {
	assert.Nil(t, resolveRemote(config.RemoteSettings{Target: "carrier-pigeon"}),
		"an unknown remote must not abort the backup run")
	assert.Nil(t, resolveRemote(config.RemoteSettings{Target: "sftp"}),
		"an incomplete remote must not abort the backup run")
	assert.Nil(t, resolveRemote(config.RemoteSettings{}))

	target := resolveRemote(config.RemoteSettings{Target: "local", Dir: t.TempDir()})
	if assert.NotNil(t, target) {
		assert.Equal(t, "local", target.Name())
	}
}
