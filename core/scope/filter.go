package scope

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

type Visibility string

const (
	VisibilityFull    Visibility = "FULL"
	VisibilitySubtree Visibility = "SUBTREE"
	VisibilitySelf    Visibility = "SELF"
)

var ErrInvalidFilter = errors.New("invalid scope filter")

// Path locates an organization below the national root: region, school, class.
// The empty Path is the national root.
type Path []string

func (p Path) HasPrefix(root Path) bool {
	if len(root) > len(p) {
		return false
	}
	for i := range root {
		if p[i] != root[i] {
			return false
		}
	}
	return true
}

func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	return strings.Join(p, "/")
}

func (p Path) clone() Path {
	c := make(Path, len(p))
	copy(c, p)
	return c
}

// Filter is the resolved visibility of a caller.
// It is an immutable value: constructors and accessors copy, nothing mutates it after creation.
type Filter struct {
	visibility Visibility
	roots      []Path
	subjects   []string
}

// Full sees everything.
func Full() Filter {
	return Filter{visibility: VisibilityFull}
}

// Subtree sees every organization under (and including) any of roots.
func Subtree(roots ...Path) (Filter, error) {
	if len(roots) == 0 {
		return Filter{}, errors.Wrap(ErrInvalidFilter, "SUBTREE requires at least one root")
	}
	cp := make([]Path, 0, len(roots))
	seen := make(map[string]bool, len(roots))
	for _, r := range roots {
		if seen[r.String()] {
			continue
		}
		seen[r.String()] = true
		cp = append(cp, r.clone())
	}
	sort.Slice(cp, func(i, j int) bool { return cp[i].String() < cp[j].String() })
	return Filter{visibility: VisibilitySubtree, roots: cp}, nil
}

// Self sees only the listed subjects.
func Self(subjects ...string) (Filter, error) {
	cp := make([]string, 0, len(subjects))
	seen := make(map[string]bool, len(subjects))
	for _, s := range subjects {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		cp = append(cp, s)
	}
	if len(cp) == 0 {
		return Filter{}, errors.Wrap(ErrInvalidFilter, "SELF requires at least one subject")
	}
	sort.Strings(cp)
	return Filter{visibility: VisibilitySelf, subjects: cp}, nil
}

func (f Filter) Visibility() Visibility { return f.visibility }

// IsZero reports whether f was never resolved. A zero Filter sees nothing.
func (f Filter) IsZero() bool { return f.visibility == "" }

func (f Filter) Roots() []Path {
	roots := make([]Path, len(f.roots))
	for i, r := range f.roots {
		roots[i] = r.clone()
	}
	return roots
}

func (f Filter) Subjects() []string {
	subjects := make([]string, len(f.subjects))
	copy(subjects, f.subjects)
	return subjects
}

// Contains reports whether the organization at p is visible.
// SELF filters see subjects, never whole organizations.
func (f Filter) Contains(p Path) bool {
	switch f.visibility {
	case VisibilityFull:
		return true
	case VisibilitySubtree:
		for _, r := range f.roots {
			if p.HasPrefix(r) {
				return true
			}
		}
	}
	return false
}

// Allows reports whether the subject `id`, located at p, is visible.
func (f Filter) Allows(id string, p Path) bool {
	switch f.visibility {
	case VisibilityFull:
		return true
	case VisibilitySubtree:
		return f.Contains(p)
	case VisibilitySelf:
		i := sort.SearchStrings(f.subjects, id)
		return i < len(f.subjects) && f.subjects[i] == id
	}
	return false
}

// Narrow restricts f to the subtree at root. It never widens: root must already be visible.
func (f Filter) Narrow(root Path) (Filter, error) {
	if !f.Contains(root) {
		return Filter{}, errors.Wrapf(ErrScopeDenied, "%s is outside %s", root, f)
	}
	return Subtree(root)
}

// NarrowSubject restricts f to a single subject located at p.
func (f Filter) NarrowSubject(id string, p Path) (Filter, error) {
	if !f.Allows(id, p) {
		return Filter{}, errors.Wrapf(ErrScopeDenied, "subject %s is outside %s", id, f)
	}
	return Self(id)
}

func (f Filter) Equal(other Filter) bool {
	if f.visibility != other.visibility || len(f.roots) != len(other.roots) || len(f.subjects) != len(other.subjects) {
		return false
	}
	for i := range f.roots {
		if f.roots[i].String() != other.roots[i].String() {
			return false
		}
	}
	for i := range f.subjects {
		if f.subjects[i] != other.subjects[i] {
			return false
		}
	}
	return true
}

func (f Filter) String() string {
	switch f.visibility {
	case VisibilityFull:
		return "FULL"
	case VisibilitySubtree:
		roots := make([]string, len(f.roots))
		for i, r := range f.roots {
			roots[i] = r.String()
		}
		return "SUBTREE(" + strings.Join(roots, ", ") + ")"
	case VisibilitySelf:
		return "SELF(" + strings.Join(f.subjects, ", ") + ")"
	}
	return "NONE"
}

type filterJSON struct {
	Visibility Visibility `json:"visibility"`
	Roots      []Path     `json:"roots,omitempty"`
	Subjects   []string   `json:"subjects,omitempty"`
}

func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(filterJSON{Visibility: f.visibility, Roots: f.roots, Subjects: f.subjects})
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw filterJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var (
		parsed Filter
		err    error
	)
	switch raw.Visibility {
	case VisibilityFull:
		parsed = Full()
	case VisibilitySubtree:
		parsed, err = Subtree(raw.Roots...)
	case VisibilitySelf:
		parsed, err = Self(raw.Subjects...)
	case "":
		parsed = Filter{}
	default:
		err = errors.Wrapf(ErrInvalidFilter, "unknown visibility %q", raw.Visibility)
	}
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
