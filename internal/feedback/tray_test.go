package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"madrasah/internal/optimistic"
)

func TestTrayExpiresToasts(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	tray := NewTray(4*time.Second, 5, nil)
	tray.now = func() time.Time { return now }

	tray.Notify(optimistic.Toast{Level: optimistic.LevelSuccess, Message: "Attendance saved"})
	now = now.Add(2 * time.Second)
	tray.Notify(optimistic.Toast{Level: optimistic.LevelError, Message: "Could not save"})

	require.Len(t, tray.Active(), 2)

	now = now.Add(3 * time.Second)
	active := tray.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "Could not save", active[0].Message)

	now = now.Add(5 * time.Second)
	assert.Empty(t, tray.Active())
}

func TestTrayEvictsOldestWhenFull(t *testing.T) {
	tray := NewTray(time.Minute, 2, nil)
	for _, msg := range []string{"one", "two", "three"} {
		tray.Notify(optimistic.Toast{Level: optimistic.LevelInfo, Message: msg})
	}

	active := tray.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "two", active[0].Message)
	assert.Equal(t, "three", active[1].Message)
}

func TestTraySubscribers(t *testing.T) {
	tray := NewTray(time.Minute, 5, nil)
	var got []string
	tray.Subscribe(func(toast optimistic.Toast) { got = append(got, toast.Message) })

	tray.Notify(optimistic.Toast{Message: "hello"})
	tray.Clear()

	assert.Equal(t, []string{"hello"}, got)
	assert.Empty(t, tray.Active())
}
