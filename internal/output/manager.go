package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type chunkProgress struct {
	Size       int64
	Downloaded int64
	Speed      float64
}

// JobOutput is the display state of one file transfer.
type JobOutput struct {
	ID          int
	Name        string
	Status      string
	Message     string
	Chunks      []chunkProgress
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
}

type ErrorReport struct {
	Name  string
	Error error
	Time  time.Time
}

// Manager renders a live, redrawn view of every registered job. All methods
// are safe for concurrent use by transfer workers.
type Manager struct {
	outputs     map[int]*JobOutput
	mutex       sync.RWMutex
	out         io.Writer
	numLines    int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	jobCount    int
	paused      bool
	displayWg   sync.WaitGroup
}

func NewManager() *Manager {
	return &Manager{
		outputs:     make(map[int]*JobOutput),
		out:         os.Stdout,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

// SetOutput redirects rendering, mainly for tests.
func (m *Manager) SetOutput(w io.Writer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.out = w
}

func (m *Manager) Register(name string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.jobCount++
	m.outputs[m.jobCount] = &JobOutput{
		ID:          m.jobCount,
		Name:        name,
		Status:      "pending",
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
	}
	return m.jobCount
}

func (m *Manager) update(id int, fn func(*JobOutput)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		fn(info)
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) SetMessage(id int, message string) {
	m.update(id, func(info *JobOutput) { info.Message = message })
}

func (m *Manager) SetStatus(id int, status string) {
	m.update(id, func(info *JobOutput) { info.Status = status })
}

func (m *Manager) GetStatus(id int) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if info, exists := m.outputs[id]; exists {
		return info.Status
	}
	return "unknown"
}

// SetChunks declares the byte size of each chunk of a job.
func (m *Manager) SetChunks(id int, sizes []int64) {
	m.update(id, func(info *JobOutput) {
		info.Chunks = make([]chunkProgress, len(sizes))
		for i, size := range sizes {
			info.Chunks[i].Size = size
		}
	})
}

// UpdateChunk records a worker progress report.
func (m *Manager) UpdateChunk(id, chunk int, downloaded int64, speed float64) {
	m.update(id, func(info *JobOutput) {
		if chunk < 0 || chunk >= len(info.Chunks) {
			return
		}
		info.Chunks[chunk].Downloaded = downloaded
		info.Chunks[chunk].Speed = speed
		if info.Status == "pending" {
			info.Status = "active"
		}
	})
}

// Progress returns bytes done and total bytes over a job's chunks.
func (m *Manager) Progress(id int) (int64, int64) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	info, exists := m.outputs[id]
	if !exists {
		return 0, 0
	}
	return totals(info)
}

func totals(info *JobOutput) (done, total int64) {
	for _, c := range info.Chunks {
		done += c.Downloaded
		total += c.Size
	}
	return done, total
}

func (m *Manager) Complete(id int, message string) {
	m.update(id, func(info *JobOutput) {
		if message == "" {
			message = fmt.Sprintf("Completed %s", info.Name)
		}
		info.Message = message
		info.Complete = true
		info.Status = "success"
	})
}

func (m *Manager) ReportError(id int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Complete = true
		info.Status = "error"
		info.Error = err
		info.Message = fmt.Sprintf("Failed %s", info.Name)
		info.LastUpdated = time.Now()
		m.errors = append(m.errors, ErrorReport{Name: info.Name, Error: err, Time: time.Now()})
	}
}

// SetPaused marks the display as paused; chunk lines keep their last values.
func (m *Manager) SetPaused(paused bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.paused = paused
}

func (m *Manager) statusIndicator(status string) string {
	switch status {
	case "success":
		return successStyle.Render(StyleSymbols["pass"])
	case "error":
		return errorStyle.Render(StyleSymbols["fail"])
	case "warning":
		return warningStyle.Render(StyleSymbols["warning"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		if m.paused {
			return warningStyle.Render(StyleSymbols["paused"])
		}
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func styleMessage(status, message string) string {
	switch status {
	case "success":
		return successStyle.Render(message)
	case "error":
		return errorStyle.Render(message)
	case "warning":
		return warningStyle.Render(message)
	}
	return pendingStyle.Render(message)
}

func (m *Manager) sorted() (active, completed []*JobOutput) {
	all := make([]*JobOutput, 0, len(m.outputs))
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	for _, info := range all {
		if info.Complete {
			completed = append(completed, info)
		} else {
			active = append(active, info)
		}
	}
	return active, completed
}

// render builds the current view, at most maxLines lines.
func (m *Manager) render(maxLines int) []string {
	var lines []string
	add := func(line string) bool {
		if len(lines) >= maxLines {
			return false
		}
		lines = append(lines, line)
		return true
	}
	active, completed := m.sorted()
	indent := strings.Repeat(" ", 2)
	for _, info := range active {
		elapsed := time.Since(info.StartTime).Round(time.Second)
		if !add(fmt.Sprintf("%s%s %s %s", indent, m.statusIndicator(info.Status), debugStyle.Render(elapsed.String()), styleMessage(info.Status, info.Message))) {
			return lines
		}
		if len(info.Chunks) == 0 {
			continue
		}
		done, total := totals(info)
		var speed float64
		for _, c := range info.Chunks {
			speed += c.Speed
		}
		add(fmt.Sprintf("%s%s%s %s", indent+"    ", PrintProgressBar(done, total, 30), debugStyle.Render(FormatBytes(uint64(done))+" / "+FormatBytes(uint64(total))), debugStyle.Render(FormatSpeed(speed))))
		for i, c := range info.Chunks {
			line := fmt.Sprintf("%s%s %s%s", indent+"      ", streamStyle.Render(fmt.Sprintf("#%d", i)), PrintProgressBar(c.Downloaded, c.Size, 20), streamStyle.Render(FormatSpeed(c.Speed)))
			if !add(line) {
				return lines
			}
		}
	}
	if len(completed) > 10 {
		add(infoStyle.Render(fmt.Sprintf("%s%d files completed with varying hidden status ...", indent, len(completed)-8)))
		completed = completed[len(completed)-8:]
	}
	for _, info := range completed {
		total := info.LastUpdated.Sub(info.StartTime).Round(time.Second)
		if !add(fmt.Sprintf("%s%s %s %s", indent, m.statusIndicator(info.Status), debugStyle.Render(total.String()), styleMessage(info.Status, info.Message))) {
			return lines
		}
	}
	return lines
}

func (m *Manager) updateDisplay() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	lines := m.render(getTerminalHeight() - 3)
	for _, line := range lines {
		fmt.Fprintln(m.out, line)
	}
	m.numLines = len(lines)
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(fmt.Sprintf("File: %s", err.Name)))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

// ShowSummary prints success and failure counts followed by every error.
func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	success, failures := m.counts()
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, len(m.outputs))))
	if failures > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.outputs))))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}

func (m *Manager) counts() (success, failures int) {
	for _, info := range m.outputs {
		switch info.Status {
		case "success":
			success++
		case "error":
			failures++
		}
	}
	return success, failures
}

// Counts returns how many jobs succeeded and failed.
func (m *Manager) Counts() (int, int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.counts()
}
