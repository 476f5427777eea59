package live

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/require"

	"github.com/szhem/osgi-utils/internal/filter"
	"github.com/szhem/osgi-utils/internal/pubsub"
	"github.com/szhem/osgi-utils/internal/registry"
	"github.com/szhem/osgi-utils/internal/tracker"
)

const storeIface = "com.acme.Store"

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func setup(t *testing.T) (*registry.Registry, *tracker.Collection) {
	t.Helper()
	r := registry.New()
	col, err := tracker.New(r, filter.Must(filter.Eq(registry.AttrObjectClass, storeIface)), nil)
	require.NoError(t, err)
	t.Cleanup(col.Close)
	return r, col
}

func publish(t *testing.T, r *registry.Registry, attrs map[string]any) *registry.Registration {
	t.Helper()
	reg, err := r.Publish(context.Background(), registry.Descriptor{Interfaces: []string{storeIface}, Service: 1}, attrs)
	require.NoError(t, err)
	return reg
}

func TestFormatReference(t *testing.T) {
	r := registry.New()
	reg := publish(t, r, map[string]any{"region": "eu", "ranking": 3})
	require.Equal(t, "#1 com.acme.Store ranking=3 region=eu", FormatReference(reg.Reference()))
}

func TestFormatChange(t *testing.T) {
	r := registry.New()
	reg := publish(t, r, nil)
	entry := tracker.TrackedEntry{Reference: reg.Reference()}

	require.Equal(t, "+ #1 com.acme.Store", FormatChange(pubsub.Event[tracker.TrackedEntry]{Type: pubsub.AddedEvent, Payload: entry}))
	require.Equal(t, "- #1 com.acme.Store", FormatChange(pubsub.Event[tracker.TrackedEntry]{Type: pubsub.RemovedEvent, Payload: entry}))
}

func TestModel_ShowsBackfill(t *testing.T) {
	r, col := setup(t)
	publish(t, r, map[string]any{"region": "eu"})
	require.NoError(t, col.Start(context.Background()))

	m := New(context.Background(), col)
	view := m.View()
	require.Contains(t, view, "#1 com.acme.Store region=eu")
	require.Contains(t, view, "1 entries")
	require.Contains(t, view, "active")
}

func TestModel_EmptyState(t *testing.T) {
	_, col := setup(t)
	m := New(context.Background(), col)
	require.Contains(t, m.View(), "no matching services")
	require.Contains(t, m.View(), "inactive")
}

func TestModel_ChangeEventRereadsCollection(t *testing.T) {
	r, col := setup(t)
	require.NoError(t, col.Start(context.Background()))
	m := New(context.Background(), col)

	reg := publish(t, r, nil)
	require.Eventually(t, func() bool { return col.Size() == 1 }, time.Second, 5*time.Millisecond)

	updated, cmd := m.Update(pubsub.Event[tracker.TrackedEntry]{Type: pubsub.AddedEvent})
	require.NotNil(t, cmd, "keeps listening")
	m = updated.(Model)
	require.Len(t, m.Entries(), 1)
	require.Equal(t, reg.ID(), m.Entries()[0].Reference.ID())
}

func TestModel_ErrorEventShownUntilCleared(t *testing.T) {
	_, col := setup(t)
	m := New(context.Background(), col)

	updated, cmd := m.Update(pubsub.Event[error]{Type: pubsub.FailedEvent, Payload: errors.New("proxy exploded")})
	require.NotNil(t, cmd)
	m = updated.(Model)
	require.Contains(t, m.View(), "proxy exploded")

	updated, _ = m.Update(runes("c"))
	require.NotContains(t, updated.View(), "proxy exploded")
}

func TestModel_ToggleStartsAndStops(t *testing.T) {
	r, col := setup(t)
	publish(t, r, nil)
	m := New(context.Background(), col)

	updated, _ := m.Update(runes("s"))
	require.True(t, col.Active())
	require.Len(t, updated.(Model).Entries(), 1)

	updated, _ = updated.Update(runes("s"))
	require.False(t, col.Active())
	require.Empty(t, updated.(Model).Entries())
}

func TestModel_ToggleShowsStartFailure(t *testing.T) {
	r := registry.New()
	col, err := tracker.New(r, filter.Raw("(broken"), nil)
	require.NoError(t, err)
	t.Cleanup(col.Close)

	updated, _ := New(context.Background(), col).Update(runes("s"))
	require.Contains(t, updated.View(), "tracking setup failed")
}

func TestModel_Quit(t *testing.T) {
	_, col := setup(t)
	_, cmd := New(context.Background(), col).Update(runes("q"))
	require.NotNil(t, cmd)
	require.Equal(t, tea.QuitMsg{}, cmd())
}

func TestModel_WindowResize(t *testing.T) {
	_, col := setup(t)
	updated, _ := New(context.Background(), col).Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m := updated.(Model)
	require.Equal(t, 116, m.viewport.Width)
	require.Equal(t, 35, m.viewport.Height)
}

func TestModel_Program(t *testing.T) {
	r, col := setup(t)
	require.NoError(t, col.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tm := teatest.NewTestModel(t, New(ctx, col), teatest.WithInitialTermSize(100, 30))

	publish(t, r, map[string]any{"region": "ap-south"})
	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("region=ap-south"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(runes("q"))
	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))
}

func TestModel_ClosedFeedIsReported(t *testing.T) {
	_, col := setup(t)
	updated, cmd := New(context.Background(), col).Update(pubsub.ClosedMsg{Feed: "changes"})
	require.Nil(t, cmd, "stops listening")
	require.Contains(t, updated.View(), "changes feed closed")
}

func TestModel_LongErrorWraps(t *testing.T) {
	_, col := setup(t)
	msg := "proxy construction failed for com.acme.Store because the resolver gave up"

	updated, _ := New(context.Background(), col).Update(tea.WindowSizeMsg{Width: 30, Height: 20})
	updated, _ = updated.Update(pubsub.Event[error]{Type: pubsub.FailedEvent, Payload: errors.New(msg)})

	view := updated.View()
	require.Contains(t, view, "proxy construction failed")
	require.NotContains(t, view, msg, "wrapped to the window width")
}
