package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/krau/birefnet-go/pipeline"
	"github.com/krau/birefnet-go/utils"
)

type outputMode int

const (
	modeHuman outputMode = iota
	modeJSON
	modeQuiet
)

type processedEntry struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Status string `json:"status"`
}

type failedEntry struct {
	Input string `json:"input"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

type removeResult struct {
	Success    bool             `json:"success"`
	Processed  []processedEntry `json:"processed"`
	Failed     []failedEntry    `json:"failed"`
	DurationMS int64            `json:"duration_ms"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResult struct {
	Success   bool             `json:"success"`
	Error     errorBody        `json:"error"`
	Processed []processedEntry `json:"processed"`
	Failed    []failedEntry    `json:"failed"`
}

// reporter renders batch progress in one of the three output modes. In
// JSON mode nothing is written until the batch ends.
type reporter struct {
	mode   outputMode
	stdout io.Writer
	stderr io.Writer

	done []processedEntry
	fail []failedEntry
}

func newReporter(mode outputMode, stdout, stderr io.Writer) *reporter {
	return &reporter{
		mode:   mode,
		stdout: stdout,
		stderr: stderr,
		done:   []processedEntry{},
		fail:   []failedEntry{},
	}
}

func (r *reporter) failures() int { return len(r.fail) }

// unreadable records an input that failed the existence check before the
// model was loaded.
func (r *reporter) unreadable(input string, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		r.fail = append(r.fail, failedEntry{Input: input, Error: "file not found", Code: pipeline.CodeFileNotFound})
		if r.mode == modeHuman {
			fmt.Fprintf(r.stderr, "%s File not found: %s\n", utils.DecorateText("✗", utils.ErrorMessage), input)
		}
		return
	}
	r.fail = append(r.fail, failedEntry{Input: input, Error: err.Error(), Code: pipeline.CodeInvalidImage})
	if r.mode == modeHuman {
		fmt.Fprintf(r.stderr, "%s Cannot read %s: %v\n", utils.DecorateText("✗", utils.ErrorMessage), input, err)
	}
}

func (r *reporter) processed(i, n int, input, output string) {
	r.done = append(r.done, processedEntry{Input: input, Output: output, Status: "ok"})
	switch r.mode {
	case modeQuiet:
		fmt.Fprintln(r.stdout, output)
	case modeHuman:
		fmt.Fprintf(r.stdout, "  [%d/%d] %s → %s %s\n", i, n,
			filepath.Base(input), filepath.Base(output), utils.DecorateText("✓", utils.SuccessMessage))
	}
}

func (r *reporter) failed(input string, err error) {
	msg := err.Error()
	var sizeErr *pipeline.SizeError
	if errors.As(err, &sizeErr) {
		msg += fmt.Sprintf(" (use --size %d)", sizeErr.Want)
	}
	r.fail = append(r.fail, failedEntry{Input: input, Error: msg, Code: pipeline.ErrorCode(err)})
	if r.mode == modeHuman {
		fmt.Fprintf(r.stderr, "  %s %s: %s\n", utils.DecorateText("✗", utils.ErrorMessage), filepath.Base(input), msg)
	}
}

func (r *reporter) summary(took time.Duration) {
	switch r.mode {
	case modeJSON:
		writeJSON(r.stdout, removeResult{
			Success:    len(r.fail) == 0,
			Processed:  r.done,
			Failed:     r.fail,
			DurationMS: took.Milliseconds(),
		})
	case modeHuman:
		fmt.Fprintf(r.stdout, "\n✨ Done! %d image(s) processed in %s\n", len(r.done), utils.FormatTime(took))
	}
}

// fatal reports an error that ends the command before any image ran.
func (r *reporter) fatal(code, message string) {
	switch r.mode {
	case modeJSON:
		writeJSON(r.stdout, errorResult{
			Success:   false,
			Error:     errorBody{Code: code, Message: message},
			Processed: []processedEntry{},
			Failed:    r.fail,
		})
	case modeHuman:
		fmt.Fprintf(r.stderr, "%s %s\n", utils.DecorateText("Error:", utils.ErrorMessage), message)
	}
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
