package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Jalkey-Chen/InterLines/internal/types"
)

// maxLineSize bounds a single trace line. Artifact payloads are embedded in
// artifact.written entries, so lines can be large.
const maxLineSize = 16 << 20

// ReadFile parses a trace file into entries. A truncated final line, the
// signature of a crashed writer, is tolerated: the complete prefix is
// returned. Any malformed line before the final one fails with
// TRACE_CORRUPTED.
func ReadFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.WrapError(types.TRACE_NOT_FOUND,
				fmt.Sprintf("trace file %s does not exist", path), err)
		}
		return nil, types.WrapError(types.TRACE_CORRUPTED,
			fmt.Sprintf("cannot open trace file %s", path), err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	var pendingErr error
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// A decode failure on what turns out to be the last line is a
		// truncated tail; anywhere else it is corruption.
		if pendingErr != nil {
			return nil, pendingErr
		}

		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			pendingErr = types.WrapError(types.TRACE_CORRUPTED,
				fmt.Sprintf("trace file %s: malformed entry at line %d", path, lineNo), err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, types.WrapError(types.TRACE_CORRUPTED,
			fmt.Sprintf("trace file %s: read failed", path), err)
	}

	return entries, nil
}

// Info summarizes one trace file without decoding payloads.
type Info struct {
	Path    string   `json:"path"`
	RunID   types.ID `json:"run_id"`
	Entries int      `json:"entries"`
}

// List returns summaries of every trace file under dir, oldest first.
func List(dir string) ([]Info, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, types.WrapError(types.TRACE_NOT_FOUND,
			fmt.Sprintf("cannot list trace directory %s", dir), err)
	}
	sort.Strings(matches)

	infos := make([]Info, 0, len(matches))
	for _, path := range matches {
		entries, err := ReadFile(path)
		if err != nil {
			continue
		}
		info := Info{Path: path, Entries: len(entries)}
		if len(entries) > 0 {
			info.RunID = entries[0].RunID
		}
		infos = append(infos, info)
	}
	return infos, nil
}
