// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/cmristat/pkg/cmri"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Frames forwarded to the TUI per batch; the rest are only counted
const maxBatchFrames = 64

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// node is a unit address seen on the bus
type node struct {
	address  byte
	frames   uint64
	lastType cmri.MessageType
	lastSeen time.Time
	ndp      byte // node type from the last INIT
	inputs   []byte
	outputs  []byte
}

// Implement list.Item interface
func (n node) Title() string { return cmri.FormatAddressByte(n.address) }
func (n node) Description() string {
	return fmt.Sprintf("%s, %d frames", cmri.FormatMessageType(n.lastType), n.frames)
}
func (n node) FilterValue() string { return fmt.Sprintf("%d", n.address) }

// frameEvent is a completed frame detached from the decoder buffer
type frameEvent struct {
	timestamp time.Time
	address   byte
	msgType   cmri.MessageType
	typeByte  byte
	data      []byte
}

func newFrameEvent(m cmri.Message, ts time.Time) frameEvent {
	return frameEvent{
		timestamp: ts,
		address:   m.Address(),
		msgType:   m.Type(),
		typeByte:  m.TypeByte(),
		data:      m.Data(),
	}
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool

	stats    cmri.Statistics
	nodes    map[byte]*node
	nodeList list.Model
	spinner  spinner.Model

	errorLog      []errorLogEntry
	maxLogEntries int

	synchronized   bool
	connectionLost bool
	width          int
	height         int
	quitting       bool
}

// Messages
type frameBatchMsg struct {
	frames []frameEvent
	errors []error
	stats  cmri.Statistics
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	nodeList := list.New([]list.Item{}, delegate, 30, 10)
	nodeList.Title = "Nodes"
	nodeList.SetShowStatusBar(false)
	nodeList.SetShowHelp(false)
	nodeList.SetFilteringEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         *cmri.NewStatistics(),
		nodes:         make(map[byte]*node),
		nodeList:      nodeList,
		spinner:       sp,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.nodeList, cmd = m.nodeList.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeList()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case frameBatchMsg:
		m.applyBatch(msg)

	case connectionLostMsg:
		m.connectionLost = true
		m.synchronized = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)
		} else {
			m.addLogEntry("Connection lost", true)
		}

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected: "+msg.connInfo, false)
	}

	return m, nil
}

// applyBatch folds a batch of decoder output into the model
func (m *model) applyBatch(msg frameBatchMsg) {
	m.stats = msg.stats

	for _, err := range msg.errors {
		m.addLogEntryAt(time.Now(), fmt.Sprintf("DECODE ERROR: %v", err), true)
	}

	if len(msg.frames) == 0 {
		return
	}

	if !m.synchronized {
		m.synchronized = true
		m.addLogEntryAt(msg.frames[0].timestamp, "Synchronized", false)
	}

	for _, f := range msg.frames {
		n, ok := m.nodes[f.address]
		if !ok {
			n = &node{address: f.address}
			m.nodes[f.address] = n
			m.addLogEntryAt(f.timestamp, "New node: "+cmri.FormatAddressByte(f.address), false)
		}
		n.frames++
		n.lastType = f.msgType
		n.lastSeen = f.timestamp

		switch f.msgType {
		case cmri.MessageInit:
			if len(f.data) > 0 {
				n.ndp = f.data[0]
			}
		case cmri.MessageSet:
			n.outputs = f.data
		case cmri.MessageReceive:
			n.inputs = f.data
		case cmri.MessageUnknown:
			m.addLogEntryAt(f.timestamp, fmt.Sprintf("Unknown message type 0x%02X from %s",
				f.typeByte, cmri.FormatAddressByte(f.address)), true)
			continue
		}

		if m.showAll {
			m.addLogEntryAt(f.timestamp, fmt.Sprintf("%s %s len=%d",
				cmri.FormatMessageType(f.msgType), cmri.FormatAddressByte(f.address), len(f.data)), false)
		}
	}

	m.refreshNodeList()
}

func (m *model) refreshNodeList() {
	addrs := make([]int, 0, len(m.nodes))
	for a := range m.nodes {
		addrs = append(addrs, int(a))
	}
	sort.Ints(addrs)

	items := make([]list.Item, len(addrs))
	for i, a := range addrs {
		items[i] = *m.nodes[byte(a)]
	}
	m.nodeList.SetItems(items)
}

func (m *model) resizeList() {
	listHeight := m.height - 16
	if listHeight < 6 {
		listHeight = 6
	}
	m.nodeList.SetSize(28, listHeight)
}

// selectedNode returns the node under the list cursor
func (m model) selectedNode() (node, bool) {
	item := m.nodeList.SelectedItem()
	if item == nil {
		return node{}, false
	}
	n, ok := item.(node)
	return n, ok
}

func (m *model) addLogEntry(message string, isError bool) {
	m.addLogEntryAt(time.Now(), message, isError)
}

func (m *model) addLogEntryAt(ts time.Time, message string, isError bool) {
	entry := errorLogEntry{
		timestamp: ts,
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("CMRISTAT - BUS MONITOR"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Press 'q' to quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.connectionLost:
		s.WriteString(errorStyle.Render(m.spinner.View() + " Connection lost, reconnecting..."))
	case !m.synchronized:
		s.WriteString(warningStyle.Render(m.spinner.View() + " Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if d := m.stats.DiscardedBytes(); d > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (%d bytes outside frames)", d)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	stats := m.stats
	stats.CalculateRates()

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Bytes:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.TotalBytes)),
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.Frames)),
		statsLabelStyle.Render("Errors:"), func() string {
			if stats.Errors() > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", stats.Errors()))
			}
			return statsValueStyle.Render("0")
		}(),
	))
	statsContent.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d   %s %d\n",
		headerStyle.Render("init"), stats.InitFrames,
		headerStyle.Render("set"), stats.SetFrames,
		headerStyle.Render("poll"), stats.PollFrames,
		headerStyle.Render("receive"), stats.ReceiveFrames,
	))

	if stats.UnknownTypes > 0 || stats.Resyncs > 0 || stats.Overflows > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Unknown:"), warningStyle.Render(fmt.Sprintf("%d", stats.UnknownTypes)),
			statsLabelStyle.Render("Resyncs:"), warningStyle.Render(fmt.Sprintf("%d", stats.Resyncs)),
			statsLabelStyle.Render("Overflows:"), errorStyle.Render(fmt.Sprintf("%d", stats.Overflows)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Nodes and the selected node's I/O
	if len(m.nodes) > 0 {
		detail := strings.Builder{}
		if n, ok := m.selectedNode(); ok {
			detail.WriteString(statsLabelStyle.Render(cmri.FormatAddressByte(n.address)))
			detail.WriteString("\n")
			detail.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Last seen:"),
				statsValueStyle.Render(n.lastSeen.Format("15:04:05.000"))))
			if n.ndp != 0 {
				detail.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Node type:"),
					statsValueStyle.Render(fmt.Sprintf("%q", rune(n.ndp)))))
			}
			detail.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Inputs: "),
				cmri.FormatHex(n.inputs, 9)))
			detail.WriteString(fmt.Sprintf("%s %s", statsLabelStyle.Render("Outputs:"),
				cmri.FormatHex(n.outputs, 9)))
		}

		listStyle := boxStyle.Width(30)
		detailWidth := m.width - 36
		if detailWidth < 30 {
			detailWidth = 30
		}
		s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			listStyle.Render(m.nodeList.View()),
			boxStyle.Width(detailWidth).Render(detail.String()),
		))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 15
	if len(m.nodes) > 0 {
		logHeight -= m.nodeList.Height() + 2
	}
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
