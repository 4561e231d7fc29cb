package agent

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/tayfa-dev/tayfa/pkg/store"
)

// Memory maintains the per-agent memory file: markdown at
// <workdir>/.tayfa/<agent>/memory.md, newest section first, trimmed to the
// last maxEntries sections. The whole file is injected as a prompt
// postscript on the next invocation.
type Memory struct {
	store      *store.Store
	maxEntries int
}

// NewMemory creates a Memory manager keeping maxEntries sections per agent.
func NewMemory(st *store.Store, maxEntries int) *Memory {
	return &Memory{store: st, maxEntries: maxEntries}
}

// Path locates an agent's memory file inside its working directory.
func (m *Memory) Path(workdir, agent string) string {
	return filepath.Join(workdir, ".tayfa", agent, "memory.md")
}

// Load returns the agent's full memory, or "" when none exists yet.
func (m *Memory) Load(workdir, agent string) (string, error) {
	data, err := store.NewRawFile(m.store, m.Path(workdir, agent)).Read()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RecordSummary prepends a section describing a completed run.
func (m *Memory) RecordSummary(workdir, agent, summary, context string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", time.Now().UTC().Format(time.RFC3339))
	if summary != "" {
		fmt.Fprintf(&b, "### Summary\n\n%s\n\n", strings.TrimSpace(summary))
	}
	if context != "" {
		fmt.Fprintf(&b, "### Context\n\n%s\n\n", strings.TrimSpace(context))
	}
	return m.prepend(workdir, agent, b.String())
}

// RecordInterrupted prepends a section describing a crashed or timed-out
// run, so the next invocation knows the previous one did not finish.
func (m *Memory) RecordInterrupted(workdir, agent, errMsg, traceback string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s INTERRUPTED\n\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "The previous run did not complete: %s\n\n", strings.TrimSpace(errMsg))
	if traceback != "" {
		fmt.Fprintf(&b, "```\n%s\n```\n\n", strings.TrimSpace(traceback))
	}
	return m.prepend(workdir, agent, b.String())
}

// prepend inserts a section at the top and trims the file to maxEntries
// sections, dropping the oldest.
func (m *Memory) prepend(workdir, agent, section string) error {
	file := store.NewRawFile(m.store, m.Path(workdir, agent))
	return file.Update(func(current []byte) ([]byte, error) {
		sections := splitSections(string(current))
		sections = append([]string{strings.TrimRight(section, "\n") + "\n"}, sections...)
		if len(sections) > m.maxEntries {
			sections = sections[:m.maxEntries]
		}
		return []byte(strings.Join(sections, "\n")), nil
	})
}

// splitSections cuts the memory file at its top-level "## " headings.
func splitSections(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	var sections []string
	var current strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "## ") && current.Len() > 0 {
			sections = append(sections, strings.TrimRight(current.String(), "\n")+"\n")
			current.Reset()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if current.Len() > 0 {
		sections = append(sections, strings.TrimRight(current.String(), "\n")+"\n")
	}
	return sections
}
