package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CyStat status groups.
const (
	GroupUsually  int32 = 0x10000
	GroupSetting  int32 = 0x20000
	GroupHardware int32 = 0x40000
	GroupSystem   int32 = 0x80000
	GroupFlshProg int32 = 0x100000

	statusDetailMask = 0xFFFF
)

const statusUnavailable = " ---"

var usuallyStatusMap = map[int32]string{
	0x1:  "Idle",
	0x2:  "Printing",
	0x4:  "STANDSTILL",
	0x8:  "Paper End",
	0x10: "Ribbon End",
	0x20: "Head Cooling Down",
	0x40: "Motor Cooling Down",
}

var settingStatusMap = map[int32]string{
	0x1:  "Cover Open",
	0x2:  "Paper Jam",
	0x4:  "Ribbon Error",
	0x8:  "Paper definition Error",
	0x10: "Data Error",
	0x20: "Scrap Box Error",
}

var hardwareStatusMap = map[int32]string{
	0x1:   "Head Voltage Error",
	0x2:   "Head Position Error",
	0x4:   "Fan Stop Error",
	0x8:   "Cutter Error",
	0x10:  "Pinch Roller Error",
	0x20:  "Illegal Head Temperature",
	0x40:  "Illegal Media Temperature",
	0x80:  "Ribbon Tension Error",
	0x100: "RFID Module Error",
	0x200: "Illegal Motor Temperature",
}

// PrinterStatus is the last observed state of the printer.
type PrinterStatus struct {
	Code        int32     `json:"code"`
	Text        string    `json:"text"`
	State       string    `json:"state"`
	PortName    string    `json:"port_name"`
	IsOnline    bool      `json:"is_online"`
	CanPrint    bool      `json:"can_print"`
	LastChecked time.Time `json:"last_checked"`
}

func describeBits(detail int32, table map[int32]string) string {
	if s, ok := table[detail]; ok {
		return s
	}

	bits := make([]int32, 0, len(table))
	for bit := range table {
		if detail&bit != 0 {
			bits = append(bits, bit)
		}
	}
	if len(bits) == 0 {
		return ""
	}
	sort.Slice(bits, func(i, j int) bool { return bits[i] < bits[j] })

	parts := make([]string, len(bits))
	for i, bit := range bits {
		parts[i] = table[bit]
	}
	return strings.Join(parts, ", ")
}

// DescribeStatus turns a raw CyStat code into display text. Groups are
// tested from USUALLY up to FLSHPROG and the lowest set group wins.
// Negative codes are CvGetStatus failures and are checked first, since
// they carry every group bit.
func DescribeStatus(code int32) string {
	if code < 0 {
		return statusUnavailable
	}

	detail := code & statusDetailMask
	var s string
	switch {
	case code&GroupUsually != 0:
		s = describeBits(detail, usuallyStatusMap)
	case code&GroupSetting != 0:
		s = describeBits(detail, settingStatusMap)
	case code&GroupHardware != 0:
		s = describeBits(detail, hardwareStatusMap)
	case code&GroupSystem != 0:
		return "SYSTEM ERROR"
	case code&GroupFlshProg != 0:
		return "FLSHPROG MODE"
	}

	if s == "" {
		return fmt.Sprintf("Unknown status (0x%X)", code)
	}
	return s
}

// statusState condenses a raw code into the short state reported in webhooks.
func statusState(code int32, online bool) string {
	switch {
	case !online:
		return "offline"
	case code < 0:
		return "unknown"
	case code&(GroupFlshProg|GroupSystem|GroupHardware|GroupSetting) != 0:
		return "error"
	case code&GroupUsually == 0:
		return "unknown"
	}

	detail := code & statusDetailMask
	switch {
	case detail&(0x8|0x10) != 0:
		return "media_end"
	case detail&0x2 != 0:
		return "printing"
	case detail&(0x20|0x40) != 0:
		return "cooling"
	default:
		return "ready"
	}
}
