// Package classify assigns a ProcessType and tag set to each process,
// first by rule match against a YAML pattern database, then — if no rule
// matched and an ML classifier is enabled — by feature-vector inference.
package classify

import (
	"os"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smoothtask/smoothtaskd/model"
)

// Pattern is one rule in the pattern database.
type Pattern struct {
	Name           string   `yaml:"name"`
	ExeBasename    string   `yaml:"exe_basename"`
	CmdlineRegex   string   `yaml:"cmdline_regex"`
	CgroupContains string   `yaml:"cgroup_contains"`
	SystemdUnit    string   `yaml:"systemd_unit"`
	ProcessType    string   `yaml:"process_type"`
	Tags           []string `yaml:"tags"`

	compiledCmdline *regexp.Regexp
}

// Document is the on-disk YAML shape of a pattern database file.
type Document struct {
	Patterns []Pattern `yaml:"patterns"`
}

// PatternDatabase holds compiled patterns in first-match-wins order.
// Immutable once built: a hot reload builds a new PatternDatabase and
// swaps the pointer held by a Loader, never mutating one in place.
type PatternDatabase struct {
	patterns []Pattern
}

// ParsePatternDatabase parses and compiles a YAML document.
func ParsePatternDatabase(data []byte) (*PatternDatabase, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	for i := range doc.Patterns {
		if doc.Patterns[i].CmdlineRegex != "" {
			re, err := regexp.Compile(doc.Patterns[i].CmdlineRegex)
			if err != nil {
				return nil, err
			}
			doc.Patterns[i].compiledCmdline = re
		}
	}
	return &PatternDatabase{patterns: doc.Patterns}, nil
}

// Match runs the process against every pattern in order and returns the
// first whose predicates all hold.
func (d *PatternDatabase) Match(p *model.ProcessRecord) (Pattern, bool) {
	if d == nil {
		return Pattern{}, false
	}
	for _, pat := range d.patterns {
		if pat.matches(p) {
			return pat, true
		}
	}
	return Pattern{}, false
}

func (pat Pattern) matches(p *model.ProcessRecord) bool {
	if pat.ExeBasename != "" {
		base := p.Exe
		if idx := strings.LastIndex(base, "/"); idx >= 0 {
			base = base[idx+1:]
		}
		if base != pat.ExeBasename {
			return false
		}
	}
	if pat.compiledCmdline != nil && !pat.compiledCmdline.MatchString(p.Cmdline) {
		return false
	}
	if pat.CgroupContains != "" && !strings.Contains(p.CgroupPath, pat.CgroupContains) {
		return false
	}
	if pat.SystemdUnit != "" && p.SystemdUnit != pat.SystemdUnit {
		return false
	}
	// A pattern with no predicates at all never matches anything — it
	// would otherwise swallow every process as the first rule.
	return pat.ExeBasename != "" || pat.CmdlineRegex != "" || pat.CgroupContains != "" || pat.SystemdUnit != ""
}

func parseProcessType(s string) (model.ProcessType, bool) {
	switch s {
	case "critical_interactive":
		return model.TypeCriticalInteractive, true
	case "interactive":
		return model.TypeInteractive, true
	case "normal":
		return model.TypeNormal, true
	case "background":
		return model.TypeBackground, true
	case "idle":
		return model.TypeIdle, true
	default:
		return model.TypeUnknown, false
	}
}

// Loader owns the active PatternDatabase and polls the source file's mtime
// to detect changes. No filesystem-watch library ships in this module's
// dependency set (fsnotify appears only in reference manifests, not a
// complete example repo), so change detection is mtime polling driven by
// the same tick scheduler that drives everything else, rather than a
// dedicated watcher goroutine.
type Loader struct {
	path    string
	current atomic.Pointer[PatternDatabase]
	lastMod time.Time
}

// NewLoader loads path once and returns a Loader ready for polling.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Current returns the active pattern database.
func (l *Loader) Current() *PatternDatabase {
	return l.current.Load()
}

// PollForChanges checks the source file's mtime and reloads if it advanced.
// Returns true if a reload happened. A reload that fails to parse leaves
// the previously active database in place.
func (l *Loader) PollForChanges() (bool, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return false, err
	}
	if !info.ModTime().After(l.lastMod) {
		return false, nil
	}
	if err := l.reload(); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Loader) reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}
	db, err := ParsePatternDatabase(data)
	if err != nil {
		return err
	}
	info, err := os.Stat(l.path)
	if err == nil {
		l.lastMod = info.ModTime()
	}
	l.current.Store(db)
	return nil
}
