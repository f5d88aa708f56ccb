// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{"PORT", "DATABASE_URL", "REDIS_URL", "JWT_SECRET", "JWT_ISSUER", "EFCHAT_JWT_SECRET", "EFCHAT_DATABASE_DRIVER"} {
		t.Setenv(env, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("EFCHAT_JWT_SECRET", "s3cret")

	c, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8081", c.Server.Port)
	assert.Equal(t, DriverPostgres, c.Database.Driver)
	assert.Equal(t, "efchat", c.JWT.Issuer)
	assert.Equal(t, 15*time.Minute, c.Messaging.EditWindow)
	assert.Equal(t, 50, c.Messaging.SearchLimit)
	assert.Equal(t, 3*time.Second, c.Presence.TypingTTL)
	assert.True(t, c.Redis.Enabled)
}

func TestLoadRequiresSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("EFCHAT_JWT_SECRET", "")

	_, err := Load(t.TempDir())
	assert.ErrorContains(t, err, "jwt.secret")
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yaml := []byte(`
server:
  port: "9000"
  allowed_origins: ["https://efchat.net"]
database:
  driver: memory
messaging:
  edit_window: 10m
jwt:
  secret: from-file
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	t.Setenv("EFCHAT_MESSAGING_SEARCH_LIMIT", "20")
	t.Setenv("JWT_ISSUER", "legacy-issuer")

	c, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "9000", c.Server.Port)
	assert.Equal(t, []string{"https://efchat.net"}, c.Server.AllowedOrigins)
	assert.Equal(t, DriverMemory, c.Database.Driver)
	assert.Equal(t, 10*time.Minute, c.Messaging.EditWindow)
	assert.Equal(t, 20, c.Messaging.SearchLimit)
	assert.Equal(t, "from-file", c.JWT.Secret)
	assert.Equal(t, "legacy-issuer", c.JWT.Issuer)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	c := Config{
		Database:  DatabaseConfig{Driver: "sqlite"},
		JWT:       JWTConfig{Secret: "x"},
		Messaging: MessagingConfig{EditWindow: time.Minute, SearchLimit: 1},
		Presence:  PresenceConfig{TypingTTL: time.Second},
	}
	assert.ErrorContains(t, c.Validate(), "sqlite")
}

func TestLoggerFormat(t *testing.T) {
	defer log.SetDefault(log.New(os.Stderr))

	var buf bytes.Buffer
	logger := newLogger(&buf, LogConfig{Level: "debug", Format: "json"})
	logger.Debug("hello", "user_id", 7)

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"user_id":7`)
}
