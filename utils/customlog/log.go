package customlog

import (
	"fmt"
	"time"

	"github.com/fatih/color"
)

type Type uint8

var (
	Success    Type = 0x00
	Failure    Type = 0x01
	Processing Type = 0x02
	Info       Type = 0x03
	Warning    Type = 0x04
	Finished   Type = 0x05
)

type TypesDetails struct {
	symbol string
	color  *color.Color
}

var logTypeMap = map[Type]TypesDetails{
	Success:    {symbol: "[+]", color: color.New(color.Bold, color.FgGreen)},
	Failure:    {symbol: "[-]", color: color.New(color.Bold, color.FgRed)},
	Processing: {symbol: "[/]", color: color.New(color.Bold, color.FgBlue)},
	Info:       {symbol: "[i]", color: color.New(color.Bold, color.FgCyan)},
	Warning:    {symbol: "[!]", color: color.New(color.Bold, color.FgYellow)},
	Finished:   {symbol: "[*]", color: color.New(color.Bold, color.FgMagenta)},
}

// Printf prints a timestamped, symbol-prefixed line in the colour of logType.
func Printf(logType Type, format string, v ...interface{}) {
	t := logTypeMap[logType]
	currentTime := time.Now()
	t.color.Printf(t.symbol+" "+currentTime.Format("2006-01-02 15:04:05")+" "+format, v...)
}

// GetColor returns s painted in the colour of logType.
func GetColor(logType Type, s string) string {
	t, ok := logTypeMap[logType]
	if !ok {
		return s
	}
	return t.color.Sprint(s)
}

// Sprintf is Printf without the timestamp, returned instead of printed.
func Sprintf(logType Type, format string, v ...interface{}) string {
	t := logTypeMap[logType]
	return t.color.Sprint(t.symbol + " " + fmt.Sprintf(format, v...))
}
