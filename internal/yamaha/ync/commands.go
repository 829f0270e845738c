package ync

import (
	"fmt"
	"math"
)

// Fragments are rendered inside the YAMAHA_AV element. Those addressing the
// active source use ZonePlaceholder as their outer element.

func BasicStatusQuery() string {
	return "<Main_Zone><Basic_Status>" + GetParam + "</Basic_Status></Main_Zone>"
}

func InputItemsQuery() string {
	return "<Main_Zone><Input><Input_Sel_Item>" + GetParam + "</Input_Sel_Item></Input></Main_Zone>"
}

func NetworkNameQuery() string {
	return "<System><Misc><Network><Network_Name>" + GetParam + "</Network_Name></Network></Misc></System>"
}

func SetPower(on bool) string {
	value := "Standby"
	if on {
		value = "On"
	}
	return "<Main_Zone><Power_Control><Power>" + value + "</Power></Power_Control></Main_Zone>"
}

// SetVolume encodes a dB level as Val/Exp with one decimal digit.
func SetVolume(db float64) string {
	return fmt.Sprintf("<Main_Zone><Volume><Lvl><Val>%d</Val><Exp>1</Exp><Unit>dB</Unit></Lvl></Volume></Main_Zone>",
		int(math.Round(db*10)))
}

func SetMute(muted bool) string {
	return "<Main_Zone><Volume><Mute>" + onOff(muted) + "</Mute></Volume></Main_Zone>"
}

func SelectInput(id string) string {
	return "<Main_Zone><Input><Input_Sel>" + escape(id) + "</Input_Sel></Input></Main_Zone>"
}

func ShuffleQuery() string {
	return zoned("<Play_Control><Play_Mode><Shuffle>" + GetParam + "</Shuffle></Play_Mode></Play_Control>")
}

func SetShuffle(mode string) string {
	return zoned("<Play_Control><Play_Mode><Shuffle>" + escape(mode) + "</Shuffle></Play_Mode></Play_Control>")
}

func RepeatQuery() string {
	return zoned("<Play_Control><Play_Mode><Repeat>" + GetParam + "</Repeat></Play_Mode></Play_Control>")
}

func SetRepeat(mode string) string {
	return zoned("<Play_Control><Play_Mode><Repeat>" + escape(mode) + "</Repeat></Play_Mode></Play_Control>")
}

func ListInfoQuery() string {
	return zoned("<List_Info>" + GetParam + "</List_Info>")
}

func JumpLine(line int) string {
	return zoned(fmt.Sprintf("<List_Control><Jump_Line>%d</Jump_Line></List_Control>", line))
}

// DirectSelect selects the given 1-based position on the current page.
func DirectSelect(position int) string {
	return zoned(fmt.Sprintf("<List_Control><Direct_Sel>Line_%d</Direct_Sel></List_Control>", position))
}

func CursorReturn() string {
	return zoned("<List_Control><Cursor>Return</Cursor></List_Control>")
}

func zoned(inner string) string {
	return "<" + ZonePlaceholder + ">" + inner + "</" + ZonePlaceholder + ">"
}

func onOff(value bool) string {
	if value {
		return "On"
	}
	return "Off"
}
