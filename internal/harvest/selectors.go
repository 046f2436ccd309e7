package harvest

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v2"

	"github.com/user/listing-harvester/internal/domain"
)

//go:embed selectors.yaml
var defaultSelectors []byte

// FieldRule extracts one text value from a selection.
type FieldRule struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr,omitempty"`
	Child    *int   `yaml:"child,omitempty"`
	Pattern  string `yaml:"pattern,omitempty"`

	re *regexp.Regexp
}

// ListRule extracts a list of item texts from a block.
type ListRule struct {
	Selector string `yaml:"selector"`
	Item     string `yaml:"item,omitempty"`
}

// SelectorTable holds every site-specific rule the extractor needs.
type SelectorTable struct {
	Container   string               `yaml:"container"`
	Fields      map[string]FieldRule `yaml:"fields"`
	DetailLink  FieldRule            `yaml:"detail_link"`
	TotalCount  FieldRule            `yaml:"total_count"`
	Description FieldRule            `yaml:"description"`
	Amenities   ListRule             `yaml:"amenities"`
}

// DefaultSelectorTable returns the built-in rules.
func DefaultSelectorTable() (*SelectorTable, error) {
	return ParseSelectorTable(defaultSelectors)
}

// LoadSelectorTable reads rules from path, or the built-in rules when path is empty.
func LoadSelectorTable(path string) (*SelectorTable, error) {
	if path == "" {
		return DefaultSelectorTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selector table: %w", err)
	}
	return ParseSelectorTable(data)
}

func ParseSelectorTable(data []byte) (*SelectorTable, error) {
	var t SelectorTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode selector table: %w", err)
	}
	if err := t.compile(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *SelectorTable) compile() error {
	if strings.TrimSpace(t.Container) == "" {
		return &ConfigurationError{Field: "selector table container", Value: t.Container}
	}
	for _, name := range domain.ScalarFields {
		rule, ok := t.Fields[name]
		if !ok {
			return &ConfigurationError{Field: "selector table field", Value: name}
		}
		if err := rule.compile(); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		t.Fields[name] = rule
	}
	for name, rule := range map[string]*FieldRule{
		"detail_link": &t.DetailLink,
		"total_count": &t.TotalCount,
		"description": &t.Description,
	} {
		if err := rule.compile(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (r *FieldRule) compile() error {
	if r.Pattern == "" {
		return nil
	}
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return &ConfigurationError{Field: "selector pattern", Value: r.Pattern}
	}
	r.re = re
	return nil
}

// apply evaluates the rule under s. An empty selector targets s itself.
func (r FieldRule) apply(s *goquery.Selection) (string, bool) {
	sel := s
	if r.Selector != "" {
		sel = s.Find(r.Selector)
	}
	sel = sel.First()
	if r.Child != nil {
		sel = sel.Children().Eq(*r.Child)
	}
	if sel.Length() == 0 {
		return "", false
	}

	var text string
	if r.Attr != "" {
		v, ok := sel.Attr(r.Attr)
		if !ok {
			return "", false
		}
		text = v
	} else {
		text = sel.Text()
	}
	text = strings.Join(strings.Fields(text), " ")

	if r.re != nil {
		m := r.re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		text = m[0]
		if len(m) > 1 {
			text = m[1]
		}
	}
	return text, text != ""
}

// field wraps apply into the value-or-sentinel form.
func (r FieldRule) field(s *goquery.Selection) domain.Field {
	if v, ok := r.apply(s); ok {
		return domain.Text(v)
	}
	return domain.Missing()
}

// items returns the trimmed item texts of the first matching block. A block
// with no items yields an empty, non-nil slice.
func (r ListRule) items(s *goquery.Selection) ([]string, bool) {
	block := s.Find(r.Selector).First()
	if block.Length() == 0 {
		return nil, false
	}
	children := block.Children()
	if r.Item != "" {
		children = block.Find(r.Item)
	}
	out := make([]string, 0, children.Length())
	children.Each(func(_ int, item *goquery.Selection) {
		if text := strings.Join(strings.Fields(item.Text()), " "); text != "" {
			out = append(out, text)
		}
	})
	return out, true
}
