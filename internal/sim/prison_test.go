package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"riffcity/internal/notify"
)

func TestReleaseNotice(t *testing.T) {
	kind, title, body, severity := releaseNotice("unpaid debts", "Riverbend Correctional", "good")
	assert.Equal(t, "released", kind)
	assert.Equal(t, "Released from prison", title)
	assert.Contains(t, body, "served your sentence")
	assert.Contains(t, body, "Riverbend Correctional")
	assert.Contains(t, body, "good")
	assert.Equal(t, notify.SeverityInfo, severity)
}

func TestReleaseNoticeEscape(t *testing.T) {
	kind, title, body, severity := releaseNotice("escape", "Riverbend Correctional", "poor")
	assert.Equal(t, "escaped", kind)
	assert.Equal(t, "Escaped", title)
	assert.Contains(t, body, "slipped out of Riverbend Correctional")
	assert.NotContains(t, body, "served your sentence")
	assert.Equal(t, notify.SeverityCritical, severity)
}
