package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/upe-project/upe/pkg/cmdtree"
	"github.com/upe-project/upe/pkg/dataplane"
)

// treeCompleter implements readline.AutoCompleter against
// cmdtree.OperationalTree. There is no configuration-mode tree: the
// CLI is read-only.
type treeCompleter struct {
	mgr *dataplane.Manager
}

// Do implements readline.AutoCompleter.
func (t *treeCompleter) Do(line []rune, pos int) (newLine [][]rune, length int) {
	text := string(line[:pos])
	words := strings.Fields(text)
	trailingSpace := pos > 0 && line[pos-1] == ' '
	var partial string
	if !trailingSpace && len(words) > 0 {
		partial = words[len(words)-1]
		words = words[:len(words)-1]
	}

	names := cmdtree.CompleteFromTree(cmdtree.OperationalTree, words, partial, t.mgr)
	out := make([][]rune, 0, len(names))
	for _, n := range names {
		if len(n) >= len(partial) {
			out = append(out, []rune(n[len(partial):]))
		}
	}
	return out, len(partial)
}

// helpListener intercepts '?' to print inline help, mirroring the
// Junos "?" convention, without inserting the character itself.
func (c *CLI) helpListener(line []rune, pos int, key rune) ([]rune, int, bool) {
	if key != '?' || pos < 1 {
		return line, pos, false
	}
	cleanLine := make([]rune, 0, len(line)-1)
	cleanLine = append(cleanLine, line[:pos-1]...)
	cleanLine = append(cleanLine, line[pos:]...)
	text := string(cleanLine[:pos-1])

	words := strings.Fields(text)
	trailingSpace := len(text) > 0 && text[len(text)-1] == ' '
	var partial string
	if !trailingSpace && len(words) > 0 {
		partial = words[len(words)-1]
		words = words[:len(words)-1]
	}

	candidates := cmdtree.CompleteFromTreeWithDesc(cmdtree.OperationalTree, words, partial, c.dp)
	if len(candidates) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "  (no help available)")
		return cleanLine, pos - 1, true
	}
	cmdtree.WriteHelp(c.rl.Stdout(), candidates)
	return cleanLine, pos - 1, true
}

// parseWorkerID parses a worker index argument for "show counters worker <n>".
func parseWorkerID(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid worker id %q", s)
	}
	return n, nil
}
