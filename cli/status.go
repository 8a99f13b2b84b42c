package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/krau/birefnet-go/utils"
)

const loadingMsg = "🔄 Loading model..."

// loadStatus renders model loading in human mode. On a terminal it drives a
// spinner whose text follows the download; otherwise it prints one line per
// tenth of the download. All methods are no-ops on a nil receiver.
type loadStatus struct {
	mu      sync.Mutex
	stdout  io.Writer
	stderr  io.Writer
	spinner *utils.Spinner
	step    int64
}

func newLoadStatus(stdout, stderr io.Writer) *loadStatus {
	s := &loadStatus{stdout: stdout, stderr: stderr, step: -1}
	if utils.IsTerminal(stderr) {
		s.spinner = utils.NewSpinner(stderr, loadingMsg, 120*time.Millisecond)
	}
	return s
}

func (s *loadStatus) start() {
	if s == nil {
		return
	}
	if s.spinner == nil {
		fmt.Fprintln(s.stdout, loadingMsg)
		return
	}
	s.spinner.Start()
}

func (s *loadStatus) stop() {
	if s == nil || s.spinner == nil {
		return
	}
	s.spinner.StopMsg = loadingMsg + "\n"
	s.spinner.Stop()
}

// progress receives fetcher callbacks. total is -1 when the server sent no
// length, in which case megabytes are shown instead of a percentage.
func (s *loadStatus) progress(done, total int64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var text string
	var step int64
	if total > 0 {
		pct := min(done*100/total, 100)
		text = fmt.Sprintf("⬇️  Downloading model %d%%", pct)
		step = pct / 10
	} else {
		mb := done >> 20
		text = fmt.Sprintf("⬇️  Downloading model %d MB", mb)
		step = mb / 10
	}

	if s.spinner != nil {
		s.spinner.SetMessage(utils.DecorateText(text, utils.StatusMessage))
		return
	}
	if step == s.step {
		return
	}
	s.step = step
	fmt.Fprintln(s.stderr, utils.DecorateText(text, utils.StatusMessage))
}
