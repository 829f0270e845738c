package yamaha

import (
	"context"
	"fmt"
	"iter"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/strefethen/yamaha-remote-go/internal/yamaha/ync"
)

// PageSize is the number of lines the receiver reports per List_Info page.
const PageSize = 8

const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultPollAttempts = 20
)

// MenuOptions tunes readiness polling.
type MenuOptions struct {
	PollInterval time.Duration
	PollAttempts int
	// Sleep waits between polls. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// MenuEntry is one selectable line of a menu listing.
type MenuEntry struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Heading reports whether the entry is a "- Title -" section heading and
// returns the bare title.
func (e MenuEntry) Heading() (string, bool) {
	return headingText(e.Text)
}

func headingText(text string) (string, bool) {
	if len(text) >= 4 && strings.HasPrefix(text, "- ") && strings.HasSuffix(text, " -") {
		return text[2 : len(text)-2], true
	}
	return text, false
}

// MenuInfo describes the page currently shown by the receiver.
type MenuInfo struct {
	Status      string      `json:"status"`
	Name        string      `json:"name"`
	Layer       int         `json:"layer"`
	CurrentLine int         `json:"current_line"`
	MaxLine     int         `json:"max_line"`
	Entries     []MenuEntry `json:"entries"`
}

type sourceState interface {
	Source() string
	ZonePath() string
}

// Menu drives the paginated List_Info protocol of menu-capable sources.
// Calls are no-ops while the active source has no menu.
type Menu struct {
	exec     Executor
	state    sourceState
	logger   *log.Logger
	interval time.Duration
	attempts int
	sleep    func(ctx context.Context, d time.Duration) error

	// ops is the receiver's operation lock. A jump and the readiness poll
	// that follows it run without a source change in between.
	ops sync.Locker
}

func newMenu(exec Executor, state sourceState, ops sync.Locker, options MenuOptions, logger *log.Logger) *Menu {
	if logger == nil {
		logger = log.Default()
	}
	interval := options.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	attempts := options.PollAttempts
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	sleep := options.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Menu{
		exec:     exec,
		state:    state,
		logger:   logger,
		interval: interval,
		attempts: attempts,
		sleep:    sleep,
		ops:      ops,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PageStart returns the first line of the page containing line.
func PageStart(line int) int {
	return ((line-1)/PageSize)*PageSize + 1
}

// PagePosition returns the 1-based position of line within its page.
func PagePosition(line int) int {
	return (line-1)%PageSize + 1
}

// Available reports whether the active source has a menu.
func (m *Menu) Available() bool {
	return HasMenu(m.state.Source())
}

// waitReady polls List_Info until the receiver reports Ready. A nil info
// with a nil error means the menu stayed unavailable for every attempt.
func (m *Menu) waitReady(ctx context.Context) (*ync.ListInfo, error) {
	for attempt := 1; attempt <= m.attempts; attempt++ {
		resp, err := m.exec.Execute(ctx, ync.Get, ync.ListInfoQuery(), m.state.ZonePath())
		if err != nil {
			return nil, err
		}
		info, err := resp.ListInfo()
		if err != nil {
			return nil, fmt.Errorf("decode list info: %w", err)
		}
		if info.Ready() {
			return info, nil
		}
		if attempt < m.attempts {
			if err := m.sleep(ctx, m.interval); err != nil {
				return nil, err
			}
		}
	}
	m.logger.Printf("MENU: %s not ready after %d attempts", m.state.Source(), m.attempts)
	return nil, nil
}

func (m *Menu) jump(ctx context.Context, line int) error {
	_, err := m.exec.Execute(ctx, ync.Put, ync.JumpLine(line), m.state.ZonePath())
	return err
}

func (m *Menu) current(ctx context.Context) (*ync.ListInfo, error) {
	m.ops.Lock()
	defer m.ops.Unlock()
	return m.waitReady(ctx)
}

// page reads the page starting at line start. It returns nil when the
// active source is no longer source.
func (m *Menu) page(ctx context.Context, source string, start int) (*ync.ListInfo, error) {
	m.ops.Lock()
	defer m.ops.Unlock()

	if m.state.Source() != source {
		m.logger.Printf("MENU: source changed from %s during listing", source)
		return nil, nil
	}
	if err := m.jump(ctx, start); err != nil {
		return nil, err
	}
	return m.waitReady(ctx)
}

// Name returns the title of the current menu, or "" when unavailable.
func (m *Menu) Name(ctx context.Context) (string, error) {
	if !m.Available() {
		return "", nil
	}
	info, err := m.current(ctx)
	if err != nil || info == nil {
		return "", err
	}
	return info.Name, nil
}

// Current returns the page the receiver is showing. ok is false when the
// source has no menu or the menu never became ready.
func (m *Menu) Current(ctx context.Context) (info MenuInfo, ok bool, err error) {
	if !m.Available() {
		return MenuInfo{}, false, nil
	}
	raw, err := m.current(ctx)
	if err != nil || raw == nil {
		return MenuInfo{}, false, err
	}

	info = MenuInfo{
		Status:      raw.Status,
		Name:        raw.Name,
		Layer:       raw.Layer,
		CurrentLine: raw.CurrentLine,
		MaxLine:     raw.MaxLine,
		Entries:     pageEntries(raw, PageStart(max(raw.CurrentLine, 1))),
	}
	return info, true, nil
}

func pageEntries(info *ync.ListInfo, start int) []MenuEntry {
	entries := make([]MenuEntry, 0, len(info.Lines))
	for _, line := range info.Lines {
		if !line.Selectable() {
			continue
		}
		number := start + line.Position - 1
		if info.MaxLine > 0 && number > info.MaxLine {
			continue
		}
		entries = append(entries, MenuEntry{Line: number, Text: line.Text})
	}
	return entries
}

// Entries enumerates the whole menu lazily, one page per receiver round
// trip. Each range over the returned sequence walks the menu again from
// line 1, so it always reflects what the receiver currently shows. The
// sequence ends early if the menu stops answering Ready or the source
// changes mid-walk; transport and protocol failures are yielded once as the
// final element.
func (m *Menu) Entries(ctx context.Context) iter.Seq2[MenuEntry, error] {
	return func(yield func(MenuEntry, error) bool) {
		source := m.state.Source()
		if !HasMenu(source) {
			return
		}
		info, err := m.current(ctx)
		if err != nil {
			yield(MenuEntry{}, err)
			return
		}
		if info == nil {
			return
		}

		maxLine := info.MaxLine
		for start := 1; start <= maxLine; start += PageSize {
			page, err := m.page(ctx, source, start)
			if err != nil {
				yield(MenuEntry{}, err)
				return
			}
			if page == nil {
				return
			}
			for _, entry := range pageEntries(&ync.ListInfo{MaxLine: maxLine, Lines: page.Lines}, start) {
				if !yield(entry, nil) {
					return
				}
			}
		}
	}
}

// List collects Entries into a slice.
func (m *Menu) List(ctx context.Context) ([]MenuEntry, error) {
	entries := []MenuEntry{}
	for entry, err := range m.Entries(ctx) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SelectLine activates the given 1-based line of the current listing. It
// returns false without selecting when the source has no menu or the page
// never became ready.
func (m *Menu) SelectLine(ctx context.Context, line int) (bool, error) {
	if line < 1 {
		return false, ErrInvalidLine
	}
	if !m.Available() {
		return false, nil
	}

	m.ops.Lock()
	defer m.ops.Unlock()

	if err := m.jump(ctx, PageStart(line)); err != nil {
		return false, err
	}
	info, err := m.waitReady(ctx)
	if err != nil || info == nil {
		return false, err
	}
	if _, err := m.exec.Execute(ctx, ync.Put, ync.DirectSelect(PagePosition(line)), m.state.ZonePath()); err != nil {
		return false, err
	}
	return true, nil
}

// Return navigates to the parent menu.
func (m *Menu) Return(ctx context.Context) error {
	if !m.Available() {
		return nil
	}

	m.ops.Lock()
	defer m.ops.Unlock()

	_, err := m.exec.Execute(ctx, ync.Put, ync.CursorReturn(), m.state.ZonePath())
	return err
}
