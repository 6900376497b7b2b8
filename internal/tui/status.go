// Package tui renders the relay's terminal status dashboard
package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/prepdeck/label-engine/internal/config"
	"github.com/prepdeck/label-engine/internal/queue"
	"github.com/rivo/tview"
)

// StatusApp is the relay status dashboard
type StatusApp struct {
	App     *tview.Application
	configs *config.Store
	queue   *queue.Store
	stats   *queue.StatsBook
	addr    string

	flex *tview.Flex

	printersList *tview.List
	queueTable   *tview.Table
	statusBox    *tview.TextView
	logsArea     *tview.TextView

	logs      []string
	maxLogs   int
	startTime time.Time
}

// NewStatusApp creates the dashboard over the relay's stores
func NewStatusApp(configs *config.Store, q *queue.Store, stats *queue.StatsBook, addr string) *StatusApp {
	t := &StatusApp{
		App:       tview.NewApplication(),
		configs:   configs,
		queue:     q,
		stats:     stats,
		addr:      addr,
		logs:      make([]string, 0),
		maxLogs:   100,
		startTime: time.Now(),
	}

	t.setupUI()
	return t
}

func (t *StatusApp) setupUI() {
	t.printersList = tview.NewList()
	t.printersList.SetBorder(true)
	t.printersList.SetTitle("Configured Printers")

	t.queueTable = tview.NewTable()
	t.queueTable.SetBorder(true)
	t.queueTable.SetTitle("Label Queue")

	t.statusBox = tview.NewTextView()
	t.statusBox.SetBorder(true)
	t.statusBox.SetTitle("Relay Status")
	t.statusBox.SetDynamicColors(true)

	t.logsArea = tview.NewTextView()
	t.logsArea.SetBorder(true)
	t.logsArea.SetTitle("Relay Logs")
	t.logsArea.SetDynamicColors(true)
	t.logsArea.SetScrollable(true)
	t.logsArea.SetChangedFunc(func() {
		t.App.Draw()
	})

	topRow := tview.NewFlex().
		AddItem(t.printersList, 0, 1, false).
		AddItem(t.queueTable, 0, 1, false).
		AddItem(t.statusBox, 0, 1, false)

	t.flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 1, false).
		AddItem(t.logsArea, 0, 1, false)

	t.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC, tcell.KeyEsc:
			t.App.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q':
				t.App.Stop()
				return nil
			case 'c':
				t.logs = make([]string, 0)
				t.logsArea.Clear()
				return nil
			}
		}
		return event
	})

	t.App.SetRoot(t.flex, true)
}

// Run starts the dashboard
func (t *StatusApp) Run() error {
	t.refreshAll()
	go t.refreshTicker()

	t.AddLog("🏷️  Label relay starting...", "info")

	return t.App.Run()
}

func (t *StatusApp) refreshTicker() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		t.App.QueueUpdateDraw(func() {
			t.refreshAll()
		})
	}
}

func (t *StatusApp) refreshAll() {
	t.refreshPrinters()
	t.refreshQueue()
	t.refreshStatus()
}

func (t *StatusApp) refreshPrinters() {
	t.printersList.Clear()

	printers := t.configs.List("")
	if len(printers) == 0 {
		t.printersList.AddItem("No printers configured", "", 0, nil)
		return
	}

	for _, p := range printers {
		icon := "⚪"
		switch p.Status {
		case config.StatusReady:
			icon = "🟢"
		case config.StatusBusy:
			icon = "🟡"
		case config.StatusOffline, config.StatusError:
			icon = "🔴"
		}

		name := p.Name
		if p.IsDefault {
			name += " ★"
		}
		details := fmt.Sprintf("%s • %s", strings.ToUpper(string(p.Type)), p.Host)
		if p.Type == config.ConnBluetooth {
			details = fmt.Sprintf("%s • %s", strings.ToUpper(string(p.Type)), p.DeviceAddress)
		}

		t.printersList.AddItem(fmt.Sprintf("%s %s", icon, name), details, 0, nil)
	}
}

func (t *StatusApp) refreshQueue() {
	t.queueTable.Clear()

	t.queueTable.SetCell(0, 0, tview.NewTableCell("Status").SetAlign(tview.AlignCenter).SetSelectable(false))
	t.queueTable.SetCell(0, 1, tview.NewTableCell("Product").SetAlign(tview.AlignCenter).SetSelectable(false))
	t.queueTable.SetCell(0, 2, tview.NewTableCell("Qty").SetAlign(tview.AlignCenter).SetSelectable(false))
	t.queueTable.SetCell(0, 3, tview.NewTableCell("Age").SetAlign(tview.AlignCenter).SetSelectable(false))

	jobs := t.queue.List()

	pending := 0
	printing := 0
	failed := 0

	for i, job := range jobs {
		row := i + 1
		t.queueTable.SetCell(row, 0, tview.NewTableCell(statusIcon(job.Status)+" "+string(job.Status)))
		t.queueTable.SetCell(row, 1, tview.NewTableCell(job.ProductName))
		t.queueTable.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d", job.Quantity)))
		t.queueTable.SetCell(row, 3, tview.NewTableCell(time.Since(job.AddedAt).Truncate(time.Second).String()))

		switch job.Status {
		case queue.StatusPending:
			pending++
		case queue.StatusPrinting:
			printing++
		case queue.StatusFailed:
			failed++
		}
	}

	if len(jobs) > 0 {
		summaryRow := len(jobs) + 1
		summary := fmt.Sprintf("[%d] Pending [%d] Printing [%d] Failed", pending, printing, failed)
		cell := tview.NewTableCell(summary)
		cell.SetSelectable(false)
		t.queueTable.SetCell(summaryRow, 0, cell)
	}
}

func (t *StatusApp) refreshStatus() {
	uptime := time.Since(t.startTime)
	hours := int(uptime.Hours())
	minutes := int(uptime.Minutes()) % 60

	state := "[green]🟢 Running[white]"
	if t.queue.Degraded() {
		state = "[yellow]🟡 Degraded (queue not persisting)[white]"
	}

	var printed, failedTotal int
	for _, s := range t.stats.Snapshot() {
		printed += s.Completed
		failedTotal += s.Failed
	}

	status := fmt.Sprintf(`%s

Uptime: %dh %dm
API: %s
Queue: %d jobs
Printed: %d  Failed: %d`, state, hours, minutes, t.addr, len(t.queue.List()), printed, failedTotal)

	t.statusBox.SetText(status)
}

// AddLog adds a log entry
func (t *StatusApp) AddLog(message string, level string) {
	var color string
	var icon string

	switch level {
	case "error":
		color = "[red]"
		icon = "❌"
	case "warning":
		color = "[yellow]"
		icon = "⚠️"
	default:
		color = "[white]"
		icon = "ℹ️"
	}

	timeStr := time.Now().Format("15:04:05")
	logEntry := fmt.Sprintf("%s[%s] %s %s[white]\n", color, timeStr, icon, message)

	t.logs = append(t.logs, logEntry)
	if len(t.logs) > t.maxLogs {
		t.logs = t.logs[len(t.logs)-t.maxLogs:]
	}

	t.logsArea.Clear()
	for _, log := range t.logs {
		fmt.Fprint(t.logsArea, log)
	}

	t.logsArea.ScrollToEnd()
}

func statusIcon(status queue.Status) string {
	switch status {
	case queue.StatusPending:
		return "⏳"
	case queue.StatusPrinting:
		return "🟡"
	case queue.StatusCompleted:
		return "✅"
	case queue.StatusFailed:
		return "❌"
	default:
		return "⚪"
	}
}

// LogWriter creates an io.Writer that feeds the logs panel
func (t *StatusApp) LogWriter() io.Writer {
	return &logWriter{app: t}
}

type logWriter struct {
	app *StatusApp
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	message := strings.TrimSpace(string(p))
	if message != "" {
		w.app.AddLog(message, "info")
	}
	return len(p), nil
}
