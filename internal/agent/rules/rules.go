// Package rules holds the versioned phrase tables the deterministic router matches against.
// The tables live in rules.yaml so the boundary between rule-based and model-based handling
// can be audited and extended without touching the orchestration code.
package rules

import (
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

type jobTypeEntry struct {
	JobType string   `yaml:"job_type"`
	Phrases []string `yaml:"phrases"`
}

type file struct {
	Version              int                 `yaml:"version"`
	RestartGreeting      string              `yaml:"restart_greeting"`
	ResetPhrases         []string            `yaml:"reset_phrases"`
	AddAllPhrases        []string            `yaml:"add_all_phrases"`
	SkipProductsPhrases  []string            `yaml:"skip_products_phrases"`
	SkipChecklistPhrases []string            `yaml:"skip_checklist_phrases"`
	AffirmationPatterns  []string            `yaml:"affirmation_patterns"`
	OnlyItemPattern      string              `yaml:"only_item_pattern"`
	LaborPattern         string              `yaml:"labor_pattern"`
	MarkupPattern        string              `yaml:"markup_pattern"`
	NoMarkupPhrases      []string            `yaml:"no_markup_phrases"`
	JobTypes             []jobTypeEntry      `yaml:"job_types"`
	JobSuggestions       []string            `yaml:"job_suggestions"`
	CategoryFilters      map[string][]string `yaml:"category_filters"`
	LaborSuggestions     []string            `yaml:"labor_suggestions"`
	MarkupSuggestions    []string            `yaml:"markup_suggestions"`
	ReviewSuggestions    []string            `yaml:"review_suggestions"`
}

// Rules is the compiled form of a rules file. It is read-only after Parse.
type Rules struct {
	Version         int
	RestartGreeting string

	JobSuggestions    []string
	LaborSuggestions  []string
	MarkupSuggestions []string
	ReviewSuggestions []string

	reset         map[string]bool
	addAll        map[string]bool
	skipProducts  map[string]bool
	skipChecklist map[string]bool
	noMarkup      map[string]bool
	jobTypes      map[string]string
	filters       map[string][]string

	affirmations []*regexp.Regexp
	onlyItem     *regexp.Regexp
	labor        *regexp.Regexp
	markup       *regexp.Regexp
}

var (
	defaultOnce sync.Once
	defaultSet  *Rules
	defaultErr  error
)

// Default returns the embedded rule set. It panics if the embedded file is invalid,
// which the package tests guard against.
func Default() *Rules {
	defaultOnce.Do(func() {
		defaultSet, defaultErr = Parse(defaultRules)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("rules: embedded rules.yaml: %v", defaultErr))
	}
	return defaultSet
}

// Parse compiles a rules document.
func Parse(data []byte) (*Rules, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if f.Version <= 0 {
		return nil, fmt.Errorf("rules version is required")
	}
	if strings.TrimSpace(f.RestartGreeting) == "" {
		return nil, fmt.Errorf("restart_greeting is required")
	}

	r := &Rules{
		Version:           f.Version,
		RestartGreeting:   f.RestartGreeting,
		JobSuggestions:    f.JobSuggestions,
		LaborSuggestions:  f.LaborSuggestions,
		MarkupSuggestions: f.MarkupSuggestions,
		ReviewSuggestions: f.ReviewSuggestions,
		reset:             phraseSet(f.ResetPhrases),
		addAll:            phraseSet(f.AddAllPhrases),
		skipProducts:      phraseSet(f.SkipProductsPhrases),
		skipChecklist:     phraseSet(f.SkipChecklistPhrases),
		noMarkup:          phraseSet(f.NoMarkupPhrases),
		jobTypes:          make(map[string]string),
		filters:           make(map[string][]string, len(f.CategoryFilters)),
	}

	for _, jt := range f.JobTypes {
		if jt.JobType == "" {
			return nil, fmt.Errorf("job_types entry without job_type")
		}
		for _, p := range jt.Phrases {
			key := Normalize(p)
			if prev, dup := r.jobTypes[key]; dup && prev != jt.JobType {
				return nil, fmt.Errorf("phrase %q maps to both %s and %s", p, prev, jt.JobType)
			}
			r.jobTypes[key] = jt.JobType
		}
	}
	for jobType, cats := range f.CategoryFilters {
		r.filters[jobType] = cats
	}

	for i, p := range f.AffirmationPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("affirmation_patterns[%d]: %w", i, err)
		}
		r.affirmations = append(r.affirmations, re)
	}

	var err error
	if r.onlyItem, err = compileRequired("only_item_pattern", f.OnlyItemPattern); err != nil {
		return nil, err
	}
	if r.labor, err = compileRequired("labor_pattern", f.LaborPattern); err != nil {
		return nil, err
	}
	if r.markup, err = compileRequired("markup_pattern", f.MarkupPattern); err != nil {
		return nil, err
	}
	return r, nil
}

func compileRequired(name, pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return re, nil
}

func phraseSet(phrases []string) map[string]bool {
	m := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		m[Normalize(p)] = true
	}
	return m
}

// Normalize lowercases, trims, collapses inner whitespace and drops trailing punctuation.
func Normalize(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.TrimRight(s, ".!?")
}

// IsReset reports whether msg is a "start new quote" command.
func (r *Rules) IsReset(msg string) bool { return r.reset[Normalize(msg)] }

// IsAddAll reports whether msg asks to add every pending product.
func (r *Rules) IsAddAll(msg string) bool { return r.addAll[Normalize(msg)] }

// IsSkipProducts reports whether msg declines the pending products.
func (r *Rules) IsSkipProducts(msg string) bool { return r.skipProducts[Normalize(msg)] }

// IsSkipChecklist reports whether msg declines the pending checklist.
func (r *Rules) IsSkipChecklist(msg string) bool { return r.skipChecklist[Normalize(msg)] }

// IsAffirmation reports whether msg reads as a yes.
func (r *Rules) IsAffirmation(msg string) bool {
	n := Normalize(msg)
	for _, re := range r.affirmations {
		if re.MatchString(n) {
			return true
		}
	}
	return false
}

// MatchJobType maps an exact job phrase to its job-type key.
func (r *Rules) MatchJobType(msg string) (string, bool) {
	jt, ok := r.jobTypes[Normalize(msg)]
	return jt, ok
}

// OnlyItem extracts the item of a "just/only <item>" request.
func (r *Rules) OnlyItem(msg string) (string, bool) {
	m := r.onlyItem.FindStringSubmatch(Normalize(msg))
	if m == nil {
		return "", false
	}
	item := strings.TrimSpace(m[1])
	return item, item != ""
}

// ParseLaborHours extracts the hours of a labor answer such as "8", "8 hours" or "6.5 hrs".
func (r *Rules) ParseLaborHours(msg string) (float64, bool) {
	return parseNumber(r.labor, msg)
}

// ParseMarkup extracts a markup percent. The no-markup keywords yield 0.
func (r *Rules) ParseMarkup(msg string) (float64, bool) {
	if r.noMarkup[Normalize(msg)] {
		return 0, true
	}
	return parseNumber(r.markup, msg)
}

// CategoryFilter returns the catalog categories a job type may draw materials from.
func (r *Rules) CategoryFilter(jobType string) []string {
	return r.filters[jobType]
}

func parseNumber(re *regexp.Regexp, msg string) (float64, bool) {
	m := re.FindStringSubmatch(Normalize(msg))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
