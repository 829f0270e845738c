package yamaha

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/yamaha-remote-go/internal/yamaha/ync"
)

func radioMenu() []fakeLine {
	lines := make([]fakeLine, 0, 17)
	for i := 1; i <= 17; i++ {
		lines = append(lines, fakeLine{Text: fmt.Sprintf("Station %d", i)})
	}
	lines[0] = fakeLine{Text: "- Genres -"}
	lines[2] = fakeLine{Text: "(empty)", Attribute: "Unselectable"}
	lines[4] = fakeLine{Text: "Rock &amp; Roll"}
	return lines
}

type sleepCounter struct {
	calls int
}

func (s *sleepCounter) sleep(context.Context, time.Duration) error {
	s.calls++
	return nil
}

func newMenuReceiver(t *testing.T, source string) (*Receiver, *fakeReceiver, *sleepCounter) {
	t.Helper()

	fake := newFakeReceiver()
	fake.input = source
	fake.menuLines = radioMenu()
	sleeper := &sleepCounter{}
	receiver := NewReceiver(fake, Options{
		Logger:   log.New(io.Discard, "", 0),
		Deferrer: &manualSlot{},
		Menu:     MenuOptions{Sleep: sleeper.sleep},
	})
	require.NoError(t, receiver.Refresh(context.Background()))
	fake.resetCalls()
	return receiver, fake, sleeper
}

func TestPageArithmetic(t *testing.T) {
	cases := []struct {
		line     int
		start    int
		position int
	}{
		{1, 1, 1},
		{8, 1, 8},
		{9, 9, 1},
		{10, 9, 2},
		{16, 9, 8},
		{17, 17, 1},
	}
	for _, tc := range cases {
		require.Equal(t, tc.start, PageStart(tc.line), "PageStart(%d)", tc.line)
		require.Equal(t, tc.position, PagePosition(tc.line), "PagePosition(%d)", tc.line)
	}
}

func TestMenuListWalksEveryPage(t *testing.T) {
	receiver, fake, _ := newMenuReceiver(t, "NET RADIO")

	entries, err := receiver.Menu().List(context.Background())
	require.NoError(t, err)

	require.Equal(t, []int{1, 9, 17}, fake.jumps())
	require.Len(t, entries, 16)
	require.Equal(t, MenuEntry{Line: 1, Text: "- Genres -"}, entries[0])
	require.Equal(t, MenuEntry{Line: 2, Text: "Station 2"}, entries[1])
	require.Equal(t, MenuEntry{Line: 4, Text: "Station 4"}, entries[2], "unselectable line 3 is skipped")
	require.Equal(t, MenuEntry{Line: 5, Text: "Rock & Roll"}, entries[3])
	require.Equal(t, MenuEntry{Line: 17, Text: "Station 17"}, entries[len(entries)-1])

	for _, call := range fake.callsMatching(ync.Get, "<List_Info>") {
		require.Equal(t, "NET_RADIO", call.ZonePath)
	}
}

func TestMenuEntriesStopsWhenConsumerStops(t *testing.T) {
	receiver, fake, _ := newMenuReceiver(t, "NET RADIO")

	var first MenuEntry
	for entry, err := range receiver.Menu().Entries(context.Background()) {
		require.NoError(t, err)
		first = entry
		break
	}
	require.Equal(t, 1, first.Line)
	require.Equal(t, []int{1}, fake.jumps())
}

func TestMenuWaitsForReady(t *testing.T) {
	receiver, fake, sleeper := newMenuReceiver(t, "USB")
	fake.busyPolls = 2
	fake.busyLeft = 2

	entries, err := receiver.Menu().List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 16)
	require.Equal(t, 8, sleeper.calls, "two polls before each of four reads")
}

func TestMenuNeverReadyIsUnavailable(t *testing.T) {
	receiver, fake, sleeper := newMenuReceiver(t, "SERVER")
	fake.neverReady = true
	ctx := context.Background()

	selected, err := receiver.Menu().SelectLine(ctx, 3)
	require.NoError(t, err)
	require.False(t, selected)
	require.Len(t, fake.callsMatching(ync.Get, "<List_Info>"), DefaultPollAttempts)
	require.Equal(t, DefaultPollAttempts-1, sleeper.calls)
	require.Empty(t, fake.callsMatching(ync.Put, "<Direct_Sel>"))

	entries, err := receiver.Menu().List(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, ok, err := receiver.Menu().Current(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	name, err := receiver.Menu().Name(ctx)
	require.NoError(t, err)
	require.Empty(t, name)
}

func TestMenuSelectLine(t *testing.T) {
	receiver, fake, _ := newMenuReceiver(t, "NET RADIO")

	selected, err := receiver.Menu().SelectLine(context.Background(), 10)
	require.NoError(t, err)
	require.True(t, selected)
	require.Equal(t, []int{9}, fake.jumps())

	selects := fake.callsMatching(ync.Put, "<Direct_Sel>")
	require.Len(t, selects, 1)
	require.Contains(t, selects[0].Fragment, "<Direct_Sel>Line_2</Direct_Sel>")
	require.Equal(t, "NET_RADIO", selects[0].ZonePath)

	_, err = receiver.Menu().SelectLine(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidLine)
}

func TestMenuCurrentPage(t *testing.T) {
	receiver, fake, _ := newMenuReceiver(t, "NET RADIO")
	fake.pageStart = 9

	info, ok, err := receiver.Menu().Current(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Ready", info.Status)
	require.Equal(t, "NET RADIO", info.Name)
	require.Equal(t, 9, info.CurrentLine)
	require.Equal(t, 17, info.MaxLine)
	require.Len(t, info.Entries, 8)
	require.Equal(t, 9, info.Entries[0].Line)
	require.Empty(t, fake.jumps(), "reading the current page does not move the cursor")
}

func TestMenuReturn(t *testing.T) {
	receiver, fake, _ := newMenuReceiver(t, "USB")

	require.NoError(t, receiver.Menu().Return(context.Background()))
	returns := fake.callsMatching(ync.Put, "<Cursor>Return</Cursor>")
	require.Len(t, returns, 1)
	require.Equal(t, "USB", returns[0].ZonePath)
}

func TestMenuWithoutMenuSource(t *testing.T) {
	receiver, fake, _ := newMenuReceiver(t, "TUNER")
	ctx := context.Background()
	menu := receiver.Menu()

	require.False(t, menu.Available())

	entries, err := menu.List(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)

	selected, err := menu.SelectLine(ctx, 1)
	require.NoError(t, err)
	require.False(t, selected)

	require.NoError(t, menu.Return(ctx))
	require.Empty(t, fake.callsMatching(ync.Get, ""))
	require.Empty(t, fake.callsMatching(ync.Put, ""))
}

func TestMenuHeading(t *testing.T) {
	title, ok := MenuEntry{Text: "- Genres -"}.Heading()
	require.True(t, ok)
	require.Equal(t, "Genres", title)

	title, ok = MenuEntry{Text: "Jazz - Live"}.Heading()
	require.False(t, ok)
	require.Equal(t, "Jazz - Live", title)
}

func TestMenuEntriesRestartsFromDevice(t *testing.T) {
	receiver, fake, _ := newMenuReceiver(t, "NET RADIO")
	ctx := context.Background()
	entries := receiver.Menu().Entries(ctx)

	var first []MenuEntry
	for entry, err := range entries {
		require.NoError(t, err)
		first = append(first, entry)
	}
	require.Len(t, first, 16)
	require.Equal(t, []int{1, 9, 17}, fake.jumps())

	fake.menuLines = make([]fakeLine, 9)
	for i := range fake.menuLines {
		fake.menuLines[i] = fakeLine{Text: fmt.Sprintf("Album %d", i+1)}
	}
	fake.resetCalls()

	var second []MenuEntry
	for entry, err := range entries {
		require.NoError(t, err)
		second = append(second, entry)
	}
	require.Equal(t, []int{1, 9}, fake.jumps(), "the second walk starts over at line 1")
	require.Len(t, second, 9)
	require.Equal(t, MenuEntry{Line: 1, Text: "Album 1"}, second[0])
	require.Equal(t, MenuEntry{Line: 9, Text: "Album 9"}, second[8])
}

func TestMenuEntriesEndsWhenSourceChanges(t *testing.T) {
	receiver, fake, _ := newMenuReceiver(t, "NET RADIO")
	ctx := context.Background()

	var entries []MenuEntry
	for entry, err := range receiver.Menu().Entries(ctx) {
		require.NoError(t, err)
		if len(entries) == 0 {
			require.NoError(t, receiver.SetSource(ctx, "USB"))
		}
		entries = append(entries, entry)
	}

	require.Equal(t, []int{1}, fake.jumps())
	require.Len(t, entries, 7, "only the first page was read")
	for _, call := range fake.callsMatching(ync.Get, "<List_Info>") {
		require.Equal(t, "NET_RADIO", call.ZonePath)
	}
}
