// Package cmdtree defines the canonical CLI command tree for upe.
//
// This is the single source of truth for tab completion and inline
// help in pkg/cli. When adding a new show command, add it here and it
// automatically appears in completion and "?" help.
package cmdtree

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/upe-project/upe/pkg/dataplane"
)

// Node defines a completion tree node with description, children, and
// an optional dynamic value source.
type Node struct {
	Desc      string
	Children  map[string]*Node
	DynamicFn func(mgr *dataplane.Manager) []string
}

// Candidate holds a command name and its description for display.
type Candidate struct {
	Name string
	Desc string
}

// OperationalTree defines tab completion for upe's read-only
// inspection shell. There is no configuration mode: the rule table is
// frozen at load time, so nothing here mutates daemon state.
var OperationalTree = map[string]*Node{
	"show": {Desc: "Show information", Children: map[string]*Node{
		"rule-table": {Desc: "Show the compiled rule table and per-rule hit counts"},
		"neighbors": {Desc: "Show learned neighbor mappings", Children: map[string]*Node{
			"arp": {Desc: "Show the ARP (IPv4) neighbor table"},
			"ndp": {Desc: "Show the NDP (IPv6) neighbor table"},
		}},
		"counters": {Desc: "Show worker packet counters", Children: map[string]*Node{
			"worker": {Desc: "Show a single worker's counters", DynamicFn: func(mgr *dataplane.Manager) []string {
				if mgr == nil {
					return nil
				}
				ids := make([]string, 0, len(mgr.Workers()))
				for i := range mgr.Workers() {
					ids = append(ids, fmt.Sprintf("%d", i))
				}
				return ids
			}},
		}},
		"pool": {Desc: "Show buffer pool utilization"},
		"events": {Desc: "Show recent disposition and learn events", Children: map[string]*Node{
			"<count>": {Desc: "Number of most recent events to show"},
		}},
		"version": {Desc: "Show daemon version and uptime"},
	}},
	"clear": {Desc: "Clear counters (not supported)", Children: map[string]*Node{
		"counters": {Desc: "Not supported; counters reset only on daemon restart"},
	}},
	"help": {Desc: "Show command help"},
	"quit": {Desc: "Exit the shell"},
	"exit": {Desc: "Exit the shell"},
}

// KeysFromTree returns a sorted list of keys from a Node map.
func KeysFromTree(tree map[string]*Node) []string {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HelpCandidates returns Candidates from a tree's children for help display.
func HelpCandidates(tree map[string]*Node) []Candidate {
	candidates := make([]Candidate, 0, len(tree))
	for name, node := range tree {
		candidates = append(candidates, Candidate{Name: name, Desc: node.Desc})
	}
	return candidates
}

// CompleteFromTree walks the tree to find completion candidates for the given words and partial.
func CompleteFromTree(tree map[string]*Node, words []string, partial string, mgr *dataplane.Manager) []string {
	current := tree
	var currentNode *Node
	dynamicConsumed := false
	for _, w := range words {
		dynamicConsumed = false
		node, ok := current[w]
		if !ok {
			if currentNode != nil && currentNode.DynamicFn != nil {
				dynamicConsumed = true
				continue
			}
			return nil
		}
		currentNode = node
		if node.Children == nil {
			if node.DynamicFn != nil && mgr != nil {
				return FilterPrefix(node.DynamicFn(mgr), partial)
			}
			return nil
		}
		current = node.Children
	}
	candidates := KeysOf(current)
	if !dynamicConsumed && currentNode != nil && currentNode.DynamicFn != nil && mgr != nil {
		candidates = append(candidates, currentNode.DynamicFn(mgr)...)
	}
	return FilterPrefix(candidates, partial)
}

// CompleteFromTreeWithDesc walks the tree returning name+description pairs.
func CompleteFromTreeWithDesc(tree map[string]*Node, words []string, partial string, mgr *dataplane.Manager) []Candidate {
	current := tree
	var currentNode *Node
	dynamicConsumed := false
	for _, w := range words {
		dynamicConsumed = false
		node, ok := current[w]
		if !ok {
			if currentNode != nil && currentNode.DynamicFn != nil {
				dynamicConsumed = true
				continue
			}
			return nil
		}
		currentNode = node
		if node.Children == nil {
			if node.DynamicFn != nil && mgr != nil {
				var candidates []Candidate
				for _, name := range node.DynamicFn(mgr) {
					if strings.HasPrefix(name, partial) {
						candidates = append(candidates, Candidate{Name: name, Desc: "(active)"})
					}
				}
				return candidates
			}
			return nil
		}
		current = node.Children
	}

	var candidates []Candidate
	for name, node := range current {
		if strings.HasPrefix(name, partial) {
			candidates = append(candidates, Candidate{Name: name, Desc: node.Desc})
		}
	}
	if !dynamicConsumed && currentNode != nil && currentNode.DynamicFn != nil && mgr != nil {
		for _, name := range currentNode.DynamicFn(mgr) {
			if strings.HasPrefix(name, partial) {
				candidates = append(candidates, Candidate{Name: name, Desc: "(active)"})
			}
		}
	}
	return candidates
}

// LookupDesc finds the description for a candidate name given the
// command path words walked so far.
func LookupDesc(words []string, name string) string {
	current := OperationalTree
	var currentNode *Node
	for _, w := range words {
		node, ok := current[w]
		if !ok {
			if currentNode != nil && currentNode.DynamicFn != nil {
				continue
			}
			return ""
		}
		currentNode = node
		if node.Children == nil {
			return ""
		}
		current = node.Children
	}
	if node, ok := current[name]; ok {
		return node.Desc
	}
	return ""
}

// WriteHelp prints aligned completion candidates to w.
// The entire output is built as a single string and written in one call
// so that readline's wrapWriter triggers only one Refresh cycle.
func WriteHelp(w io.Writer, candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	maxWidth := 20
	for _, c := range candidates {
		if len(c.Name)+2 > maxWidth {
			maxWidth = len(c.Name) + 2
		}
	}
	var sb strings.Builder
	sb.WriteString("Possible completions:\n")
	for _, c := range candidates {
		if c.Desc != "" {
			fmt.Fprintf(&sb, "  %-*s %s\n", maxWidth, c.Name, c.Desc)
		} else {
			fmt.Fprintf(&sb, "  %s\n", c.Name)
		}
	}
	io.WriteString(w, sb.String())
}

// PrintTreeHelp prints self-generating help from a tree path.
func PrintTreeHelp(header string, tree map[string]*Node, path ...string) {
	fmt.Println(header)
	current := tree
	for _, p := range path {
		node, ok := current[p]
		if !ok {
			return
		}
		if node.Children == nil {
			return
		}
		current = node.Children
	}
	WriteHelp(os.Stdout, HelpCandidates(current))
}

// CommonPrefix returns the longest shared prefix among the given strings.
func CommonPrefix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	prefix := items[0]
	for _, s := range items[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}

// KeysOf returns an unsorted list of keys from a Node map.
func KeysOf(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// FilterPrefix returns only items that start with the given prefix.
func FilterPrefix(items []string, prefix string) []string {
	if prefix == "" {
		return items
	}
	var result []string
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			result = append(result, item)
		}
	}
	return result
}
