package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTgUser_LastActivity(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	u := &TgUser{CreatedAt: created}
	assert.Equal(t, created, u.LastActivity())
	assert.False(t, u.HasThread())

	u.LastAdminMessageAt = created.Add(2 * time.Hour)
	u.LastUserMessageAt = created.Add(time.Hour)
	assert.Equal(t, created.Add(2*time.Hour), u.LastActivity())

	u.LastUserMessageAt = created.Add(3 * time.Hour)
	u.ThreadID = 7
	assert.Equal(t, created.Add(3*time.Hour), u.LastActivity())
	assert.True(t, u.HasThread())
}
