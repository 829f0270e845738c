package yamaha

import (
	"context"
	"encoding/xml"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/strefethen/yamaha-remote-go/internal/yamaha/ync"
)

type fakeCall struct {
	Command  ync.Command
	Fragment string
	ZonePath string
}

type fakeInput struct {
	Param    string
	SrcName  string
	Writable bool
}

type fakeLine struct {
	Text      string
	Attribute string
}

// fakeReceiver answers YNC commands from in-memory state.
type fakeReceiver struct {
	mu sync.Mutex

	power   bool
	volume  float64
	muted   bool
	input   string
	inputs  []fakeInput
	shuffle string
	repeat  string
	name    string

	menuName   string
	menuLines  []fakeLine
	pageStart  int
	busyPolls  int // Busy answers before each Ready
	busyLeft   int
	neverReady bool

	statusRC ync.ResultCode
	failWith error

	calls []fakeCall
}

func newFakeReceiver() *fakeReceiver {
	return &fakeReceiver{
		power:  true,
		volume: -40,
		input:  "TUNER",
		inputs: []fakeInput{
			{Param: "TUNER", SrcName: "Tuner", Writable: true},
			{Param: "NET RADIO", SrcName: "NET_RADIO", Writable: true},
			{Param: "SERVER", SrcName: "SERVER", Writable: true},
			{Param: "USB", SrcName: "USB", Writable: true},
			{Param: "HDMI1", SrcName: "", Writable: false},
		},
		shuffle:   "Off",
		repeat:    "Off",
		name:      "RX-V475",
		menuName:  "NET RADIO",
		pageStart: 1,
	}
}

var (
	volumePattern = regexp.MustCompile(`<Val>(-?\d+)</Val>`)
	jumpPattern   = regexp.MustCompile(`<Jump_Line>(\d+)</Jump_Line>`)
	selectPattern = regexp.MustCompile(`<Direct_Sel>Line_(\d+)</Direct_Sel>`)
	shufflePut    = regexp.MustCompile(`<Shuffle>([A-Za-z]+)</Shuffle>`)
	repeatPut     = regexp.MustCompile(`<Repeat>([A-Za-z]+)</Repeat>`)
)

func (f *fakeReceiver) Execute(_ context.Context, cmd ync.Command, fragment, zonePath string) (*ync.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, fakeCall{Command: cmd, Fragment: fragment, ZonePath: zonePath})
	if f.failWith != nil {
		return nil, f.failWith
	}

	if cmd == ync.Get {
		return f.get(fragment, zonePath)
	}
	return f.put(fragment)
}

func (f *fakeReceiver) respond(rc ync.ResultCode, cmd ync.Command, inner string) *ync.Response {
	body := fmt.Sprintf(`<YAMAHA_AV rsp="%s" RC="%d">%s</YAMAHA_AV>`, cmd, int(rc), inner)
	resp := &ync.Response{RC: rc, Body: []byte(body)}
	if rc != ync.RCOK {
		resp.Warning = &ync.DeviceWarning{Code: rc}
	}
	return resp
}

func (f *fakeReceiver) get(fragment, zonePath string) (*ync.Response, error) {
	switch fragment {
	case ync.BasicStatusQuery():
		val := int(math.Round(f.volume * 10))
		return f.respond(f.statusRC, ync.Get, fmt.Sprintf(
			`<Main_Zone><Basic_Status><Power_Control><Power>%s</Power></Power_Control><Volume><Lvl><Val>%d</Val><Exp>1</Exp><Unit>dB</Unit></Lvl><Mute>%s</Mute></Volume><Input><Input_Sel>%s</Input_Sel></Input></Basic_Status></Main_Zone>`,
			map[bool]string{true: "On", false: "Standby"}[f.power], val, onOff(f.muted), escapeText(f.input))), nil
	case ync.InputItemsQuery():
		var items strings.Builder
		for i, input := range f.inputs {
			rw := "R"
			if input.Writable {
				rw = "RW"
			}
			fmt.Fprintf(&items, "<Item_%d><Param>%s</Param><RW>%s</RW><Title>%s</Title><Src_Name>%s</Src_Name><Src_Number>1</Src_Number></Item_%d>",
				i+1, escapeText(input.Param), rw, escapeText(input.Param), input.SrcName, i+1)
		}
		return f.respond(ync.RCOK, ync.Get, "<Main_Zone><Input><Input_Sel_Item>"+items.String()+"</Input_Sel_Item></Input></Main_Zone>"), nil
	case ync.NetworkNameQuery():
		return f.respond(ync.RCOK, ync.Get, "<System><Misc><Network><Network_Name>"+escapeText(f.name)+"</Network_Name></Network></Misc></System>"), nil
	case ync.ShuffleQuery():
		return f.respond(ync.RCOK, ync.Get, fmt.Sprintf("<%s><Play_Control><Play_Mode><Shuffle>%s</Shuffle></Play_Mode></Play_Control></%s>", zonePath, f.shuffle, zonePath)), nil
	case ync.RepeatQuery():
		return f.respond(ync.RCOK, ync.Get, fmt.Sprintf("<%s><Play_Control><Play_Mode><Repeat>%s</Repeat></Play_Mode></Play_Control></%s>", zonePath, f.repeat, zonePath)), nil
	case ync.ListInfoQuery():
		return f.listInfo(zonePath), nil
	}
	return f.respond(ync.RCBadNode, ync.Get, ""), nil
}

func (f *fakeReceiver) listInfo(zonePath string) *ync.Response {
	if f.neverReady || f.busyLeft > 0 {
		if f.busyLeft > 0 {
			f.busyLeft--
		}
		return f.respond(ync.RCOK, ync.Get, fmt.Sprintf("<%s><List_Info><Menu_Status>Busy</Menu_Status></List_Info></%s>", zonePath, zonePath))
	}
	f.busyLeft = f.busyPolls

	var lines strings.Builder
	for i := 0; i < PageSize; i++ {
		index := f.pageStart - 1 + i
		if index >= len(f.menuLines) {
			break
		}
		line := f.menuLines[index]
		attribute := line.Attribute
		if attribute == "" {
			attribute = "Item"
		}
		fmt.Fprintf(&lines, "<Line_%d><Txt>%s</Txt><Attribute>%s</Attribute></Line_%d>", i+1, escapeText(line.Text), attribute, i+1)
	}
	return f.respond(ync.RCOK, ync.Get, fmt.Sprintf(
		"<%s><List_Info><Menu_Status>Ready</Menu_Status><Menu_Layer>1</Menu_Layer><Menu_Name>%s</Menu_Name><Current_List>%s</Current_List><Cursor_Position><Current_Line>%d</Current_Line><Max_Line>%d</Max_Line></Cursor_Position></List_Info></%s>",
		zonePath, escapeText(f.menuName), lines.String(), f.pageStart, len(f.menuLines), zonePath))
}

func (f *fakeReceiver) put(fragment string) (*ync.Response, error) {
	switch {
	case fragment == ync.SetPower(true):
		f.power = true
	case fragment == ync.SetPower(false):
		f.power = false
	case fragment == ync.SetMute(true):
		f.muted = true
	case fragment == ync.SetMute(false):
		f.muted = false
	case strings.HasPrefix(fragment, "<Main_Zone><Volume><Lvl>"):
		match := volumePattern.FindStringSubmatch(fragment)
		val, _ := strconv.Atoi(match[1])
		f.volume = float64(val) / 10
	case strings.HasPrefix(fragment, "<Main_Zone><Input><Input_Sel>"):
		value := strings.TrimSuffix(strings.TrimPrefix(fragment, "<Main_Zone><Input><Input_Sel>"), "</Input_Sel></Input></Main_Zone>")
		f.input = value
	case jumpPattern.MatchString(fragment):
		line, _ := strconv.Atoi(jumpPattern.FindStringSubmatch(fragment)[1])
		f.pageStart = line
		f.busyLeft = f.busyPolls
	case selectPattern.MatchString(fragment):
	case fragment == ync.CursorReturn():
	case strings.Contains(fragment, "<Play_Mode><Shuffle>"):
		f.shuffle = shufflePut.FindStringSubmatch(fragment)[1]
	case strings.Contains(fragment, "<Play_Mode><Repeat>"):
		f.repeat = repeatPut.FindStringSubmatch(fragment)[1]
	default:
		return f.respond(ync.RCBadNode, ync.Put, ""), nil
	}
	return f.respond(ync.RCOK, ync.Put, ""), nil
}

func (f *fakeReceiver) callsMatching(cmd ync.Command, substr string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matches []fakeCall
	for _, call := range f.calls {
		if call.Command == cmd && strings.Contains(call.Fragment, substr) {
			matches = append(matches, call)
		}
	}
	return matches
}

func (f *fakeReceiver) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeReceiver) jumps() []int {
	var lines []int
	for _, call := range f.callsMatching(ync.Put, "<Jump_Line>") {
		line, _ := strconv.Atoi(jumpPattern.FindStringSubmatch(call.Fragment)[1])
		lines = append(lines, line)
	}
	return lines
}

func onOff(value bool) string {
	if value {
		return "On"
	}
	return "Off"
}

func escapeText(value string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(value))
	return b.String()
}

// manualSlot is a Deferrer that only runs when the test says so.
type manualSlot struct {
	mu      sync.Mutex
	pending func()
	defers  int
}

func (s *manualSlot) Defer(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = fn
	s.defers++
}

func (s *manualSlot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

func (s *manualSlot) Run() bool {
	s.mu.Lock()
	fn := s.pending
	s.pending = nil
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (c *changeLog) record(change Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, change)
}

func (c *changeLog) count(prop Property) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, change := range c.changes {
		if change.Property == prop {
			n++
		}
	}
	return n
}

func (c *changeLog) all() []Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Change(nil), c.changes...)
}

func (c *changeLog) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = nil
}
