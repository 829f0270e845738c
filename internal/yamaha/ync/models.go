package ync

import (
	"encoding/xml"
	"math"
	"sort"
	"strconv"
	"strings"
)

// BasicStatus is the decoded Main_Zone Basic_Status block. Fields the
// receiver omitted are reported through the Has* flags.
type BasicStatus struct {
	Volume    float64
	HasVolume bool
	Muted     bool
	HasMute   bool
	Power     bool
	HasPower  bool
	Input     string
	HasInput  bool
}

type basicStatusXML struct {
	Power    *string `xml:"Main_Zone>Basic_Status>Power_Control>Power"`
	Val      *string `xml:"Main_Zone>Basic_Status>Volume>Lvl>Val"`
	Exp      *string `xml:"Main_Zone>Basic_Status>Volume>Lvl>Exp"`
	Mute     *string `xml:"Main_Zone>Basic_Status>Volume>Mute"`
	InputSel *string `xml:"Main_Zone>Basic_Status>Input>Input_Sel"`
}

// BasicStatus decodes a Basic_Status response.
func (r *Response) BasicStatus() (BasicStatus, error) {
	var raw basicStatusXML
	if err := r.Decode(&raw); err != nil {
		return BasicStatus{}, err
	}

	var status BasicStatus
	if raw.Val != nil && raw.Exp != nil {
		val, errVal := strconv.Atoi(strings.TrimSpace(*raw.Val))
		exp, errExp := strconv.Atoi(strings.TrimSpace(*raw.Exp))
		if errVal == nil && errExp == nil {
			status.Volume = float64(val) / math.Pow10(exp)
			status.HasVolume = true
		}
	}
	if raw.Mute != nil {
		status.Muted = strings.TrimSpace(*raw.Mute) == "On"
		status.HasMute = true
	}
	if raw.Power != nil {
		status.Power = strings.TrimSpace(*raw.Power) == "On"
		status.HasPower = true
	}
	if raw.InputSel != nil {
		status.Input = strings.TrimSpace(*raw.InputSel)
		status.HasInput = status.Input != ""
	}
	return status, nil
}

// InputItem is one entry of the Input_Sel_Item list.
type InputItem struct {
	Param    string
	SrcName  string
	Title    string
	Writable bool
	Order    int
}

type inputItemsXML struct {
	List struct {
		Items []inputItemXML `xml:",any"`
	} `xml:"Main_Zone>Input>Input_Sel_Item"`
}

type inputItemXML struct {
	XMLName xml.Name
	Param   string `xml:"Param"`
	RW      string `xml:"RW"`
	Title   string `xml:"Title"`
	SrcName string `xml:"Src_Name"`
}

// InputItems decodes an Input_Sel_Item response in document order.
func (r *Response) InputItems() ([]InputItem, error) {
	var raw inputItemsXML
	if err := r.Decode(&raw); err != nil {
		return nil, err
	}

	items := make([]InputItem, 0, len(raw.List.Items))
	for i, item := range raw.List.Items {
		param := strings.TrimSpace(item.Param)
		if param == "" {
			continue
		}
		items = append(items, InputItem{
			Param:    param,
			SrcName:  strings.TrimSpace(item.SrcName),
			Title:    RepairText(strings.TrimSpace(item.Title)),
			Writable: strings.Contains(strings.ToUpper(item.RW), "W"),
			Order:    i,
		})
	}
	return items, nil
}

// ListLine is one row of a List_Info page.
type ListLine struct {
	Position  int // 1-based position within the page
	Text      string
	Attribute string
}

// Selectable reports whether the row can be chosen.
func (l ListLine) Selectable() bool {
	return l.Attribute != "Unselectable"
}

// ListInfo is the decoded List_Info block of a menu-capable source.
type ListInfo struct {
	Status      string
	Layer       int
	Name        string
	CurrentLine int
	MaxLine     int
	Lines       []ListLine
}

// Ready reports whether the menu can be read.
func (l *ListInfo) Ready() bool {
	return l.Status == "Ready"
}

type listInfoXML struct {
	Zone struct {
		ListInfo struct {
			Status      string `xml:"Menu_Status"`
			Layer       string `xml:"Menu_Layer"`
			Name        string `xml:"Menu_Name"`
			CurrentList struct {
				Lines []listLineXML `xml:",any"`
			} `xml:"Current_List"`
			CurrentLine string `xml:"Cursor_Position>Current_Line"`
			MaxLine     string `xml:"Cursor_Position>Max_Line"`
		} `xml:"List_Info"`
	} `xml:",any"`
}

type listLineXML struct {
	XMLName   xml.Name
	Txt       string `xml:"Txt"`
	Attribute string `xml:"Attribute"`
}

// ListInfo decodes a List_Info response. Text is returned after entity repair.
func (r *Response) ListInfo() (*ListInfo, error) {
	var raw listInfoXML
	if err := r.Decode(&raw); err != nil {
		return nil, err
	}

	src := raw.Zone.ListInfo
	info := &ListInfo{
		Status:      strings.TrimSpace(src.Status),
		Layer:       atoi(src.Layer),
		Name:        RepairText(strings.TrimSpace(src.Name)),
		CurrentLine: atoi(src.CurrentLine),
		MaxLine:     atoi(src.MaxLine),
	}

	for _, line := range src.CurrentList.Lines {
		position, ok := strings.CutPrefix(line.XMLName.Local, "Line_")
		if !ok {
			continue
		}
		index, err := strconv.Atoi(position)
		if err != nil || index < 1 {
			continue
		}
		info.Lines = append(info.Lines, ListLine{
			Position:  index,
			Text:      RepairText(line.Txt),
			Attribute: strings.TrimSpace(line.Attribute),
		})
	}
	sort.SliceStable(info.Lines, func(i, j int) bool {
		return info.Lines[i].Position < info.Lines[j].Position
	})
	return info, nil
}

type playModeXML struct {
	Zone struct {
		Shuffle *string `xml:"Play_Control>Play_Mode>Shuffle"`
		Repeat  *string `xml:"Play_Control>Play_Mode>Repeat"`
	} `xml:",any"`
}

// Shuffle decodes the shuffle mode from a play-mode response.
func (r *Response) Shuffle() (string, bool, error) {
	var raw playModeXML
	if err := r.Decode(&raw); err != nil {
		return "", false, err
	}
	if raw.Zone.Shuffle == nil {
		return "", false, nil
	}
	mode := strings.TrimSpace(*raw.Zone.Shuffle)
	return mode, mode != "", nil
}

// Repeat decodes the repeat mode from a play-mode response.
func (r *Response) Repeat() (string, bool, error) {
	var raw playModeXML
	if err := r.Decode(&raw); err != nil {
		return "", false, err
	}
	if raw.Zone.Repeat == nil {
		return "", false, nil
	}
	mode := strings.TrimSpace(*raw.Zone.Repeat)
	return mode, mode != "", nil
}

type networkNameXML struct {
	Name string `xml:"System>Misc>Network>Network_Name"`
}

// NetworkName decodes the receiver's configured network name.
func (r *Response) NetworkName() (string, error) {
	var raw networkNameXML
	if err := r.Decode(&raw); err != nil {
		return "", err
	}
	return RepairText(strings.TrimSpace(raw.Name)), nil
}

// RepairText collapses double-encoded ampersands. The XML decoder has
// already resolved one level of entities, so this applies exactly once more.
func RepairText(text string) string {
	return strings.ReplaceAll(text, "&amp;", "&")
}

func escape(input string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(input)); err != nil {
		return input
	}
	return b.String()
}

func atoi(value string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(value))
	return n
}
