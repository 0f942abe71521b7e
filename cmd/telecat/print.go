package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/LBVDSEC/telecat/internal/hardware/types"
	"github.com/LBVDSEC/telecat/internal/session"
)

func printLaunch(out io.Writer, info session.Info) {
	fmt.Fprintf(out, "Session %s started\n  %s\n", info.ID, info.Command)
}

func printResult(out io.Writer, c session.Completion) {
	res := c.Result
	fmt.Fprintf(out, "\nSession %s finished: %s (exit code %d) after %s\n",
		c.ID, res.Class, res.ExitCode, res.Duration().Round(time.Second))

	if status, ok := res.Snapshot.Status(); ok {
		fmt.Fprintf(out, "Last status: %s\n", status)
	}
	if res.CrackedCount > 0 {
		fmt.Fprintf(out, "Recovered: %d\n", res.CrackedCount)
	}
	if res.Output != "" {
		fmt.Fprintf(out, "\n%s\n", strings.TrimRight(res.Output, "\n"))
	}
	if res.Diagnostic != "" {
		fmt.Fprintf(out, "\n%s\n", res.Diagnostic)
	}
}

func printDevices(out io.Writer, devices []types.PhysicalDevice) {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices found")
		return
	}
	rows := make([][]string, 0, len(devices))
	for _, dev := range devices {
		var runtimes []string
		memory := ""
		for _, opt := range dev.RuntimeOptions {
			runtimes = append(runtimes, fmt.Sprintf("%s #%d", opt.Backend, opt.DeviceID))
			if opt.Backend == dev.SelectedRuntime && opt.MemoryTotal > 0 {
				memory = fmt.Sprintf("%d/%d MB", opt.MemoryFree, opt.MemoryTotal)
			}
		}
		rows = append(rows, []string{
			strconv.Itoa(dev.Index + 1),
			dev.Name,
			dev.Type,
			dev.SelectedRuntime,
			strings.Join(runtimes, ", "),
			memory,
		})
	}
	printTable(out, []string{"#", "NAME", "TYPE", "RUNTIME", "BACKENDS", "MEMORY FREE"}, rows)
}

func printTable(out io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = maxInt(widths[i], len(cell))
		}
	}

	var sep strings.Builder
	for _, w := range widths {
		sep.WriteString("+-" + strings.Repeat("-", w) + "-")
	}
	sep.WriteString("+\n")

	writeRow := func(cells []string) {
		for i, cell := range cells {
			fmt.Fprintf(out, "| %s ", pad(cell, widths[i]))
		}
		fmt.Fprint(out, "|\n")
	}

	fmt.Fprint(out, sep.String())
	writeRow(header)
	fmt.Fprint(out, sep.String())
	for _, row := range rows {
		writeRow(row)
	}
	fmt.Fprint(out, sep.String())
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
