package scope

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	orgs     map[string]Path
	subjects map[string]Path
	schools  map[string]string
	classes  map[string][]string
	children map[string][]string
	entities map[string]string
}

var _ Directory = (*fakeDirectory)(nil)

func (d fakeDirectory) OrgPath(_ context.Context, id string) (Path, error) {
	if p, ok := d.orgs[id]; ok {
		return p, nil
	}
	return nil, ErrUnknownOrganization
}

func (d fakeDirectory) SubjectPath(_ context.Context, id string) (Path, error) {
	if p, ok := d.subjects[id]; ok {
		return p, nil
	}
	return nil, ErrUnknownSubject
}

func (d fakeDirectory) SchoolOf(_ context.Context, userID string) (string, error) {
	if s, ok := d.schools[userID]; ok {
		return s, nil
	}
	return "", ErrNotAssigned
}

func (d fakeDirectory) ClassesOf(_ context.Context, userID string) ([]string, error) {
	return d.classes[userID], nil
}

func (d fakeDirectory) ChildrenOf(_ context.Context, userID string) ([]string, error) {
	return d.children[userID], nil
}

func (d fakeDirectory) EntityOf(_ context.Context, userID string) (string, error) {
	if e, ok := d.entities[userID]; ok {
		return e, nil
	}
	return "", ErrNotAssigned
}

func newFakeDirectory() fakeDirectory {
	return fakeDirectory{
		orgs: map[string]Path{
			"greater-accra": {"greater-accra"},
			"volta":         {"volta"},
			"42":            {"greater-accra", "42"},
			"43":            {"greater-accra", "43"},
			"42:JHS1-A":     {"greater-accra", "42", "JHS1-A"},
			"42:JHS2-B":     {"greater-accra", "42", "JHS2-B"},
		},
		subjects: map[string]Path{
			"stu-1": {"greater-accra", "42", "JHS1-A"},
			"stu-2": {"greater-accra", "42", "JHS2-B"},
			"stu-9": {"greater-accra", "43", "JHS1-A"},
		},
		schools:  map[string]string{"head-42": "42"},
		classes:  map[string][]string{"teach-1": {"42:JHS1-A"}},
		children: map[string][]string{"mum": {"stu-1", "stu-2"}},
		entities: map[string]string{"u-stu-1": "stu-1", "u-vend": "vend-1"},
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(newFakeDirectory())
	ctx := context.Background()

	mustSubtree := func(p ...Path) Filter {
		f, err := Subtree(p...)
		require.NoError(t, err)
		return f
	}
	mustSelf := func(ids ...string) Filter {
		f, err := Self(ids...)
		require.NoError(t, err)
		return f
	}

	tests := []struct {
		name      string
		principal Principal
		target    Target
		want      Filter
		wantErr   error
	}{
		{name: "admin: full", principal: Principal{RoleAdmin, "root"}, want: Full()},
		{
			name: "admin: target region", principal: Principal{RoleAdmin, "root"}, target: OrgTarget("volta"),
			want: mustSubtree(Path{"volta"}),
		},
		{
			name: "admin: target subject", principal: Principal{RoleAdmin, "root"}, target: Target{SubjectID: "stu-9"},
			want: mustSelf("stu-9"),
		},
		{name: "admin: unknown org", principal: Principal{RoleAdmin, "root"}, target: OrgTarget("nope"), wantErr: ErrUnknownOrganization},
		{name: "school: own subtree", principal: Principal{RoleSchool, "head-42"}, want: mustSubtree(Path{"greater-accra", "42"})},
		{
			name: "school: narrow to class", principal: Principal{RoleSchool, "head-42"}, target: OrgTarget("42:JHS1-A"),
			want: mustSubtree(Path{"greater-accra", "42", "JHS1-A"}),
		},
		{name: "school: other school", principal: Principal{RoleSchool, "head-42"}, target: OrgTarget("43"), wantErr: ErrScopeDenied},
		{name: "school: region above", principal: Principal{RoleSchool, "head-42"}, target: OrgTarget("greater-accra"), wantErr: ErrScopeDenied},
		{name: "school: foreign student", principal: Principal{RoleSchool, "head-42"}, target: Target{SubjectID: "stu-9"}, wantErr: ErrScopeDenied},
		{name: "school: unassigned account", principal: Principal{RoleSchool, "nobody"}, wantErr: ErrScopeDenied},
		{name: "teacher: classes", principal: Principal{RoleTeacher, "teach-1"}, want: mustSubtree(Path{"greater-accra", "42", "JHS1-A"})},
		{name: "teacher: sibling class", principal: Principal{RoleTeacher, "teach-1"}, target: OrgTarget("42:JHS2-B"), wantErr: ErrScopeDenied},
		{name: "teacher: own student", principal: Principal{RoleTeacher, "teach-1"}, target: Target{SubjectID: "stu-1"}, want: mustSelf("stu-1")},
		{name: "teacher: no class", principal: Principal{RoleTeacher, "teach-2"}, wantErr: ErrScopeDenied},
		{name: "student: self", principal: Principal{RoleStudent, "u-stu-1"}, want: mustSelf("stu-1")},
		{name: "student: another student", principal: Principal{RoleStudent, "u-stu-1"}, target: Target{SubjectID: "stu-2"}, wantErr: ErrScopeDenied},
		{name: "student: own school", principal: Principal{RoleStudent, "u-stu-1"}, target: OrgTarget("42"), wantErr: ErrScopeDenied},
		{name: "vendor: self", principal: Principal{RoleVendor, "u-vend"}, want: mustSelf("vend-1")},
		{name: "parent: children", principal: Principal{RoleParent, "mum"}, want: mustSelf("stu-1", "stu-2")},
		{name: "parent: one child", principal: Principal{RoleParent, "mum"}, target: Target{SubjectID: "stu-2"}, want: mustSelf("stu-2")},
		{name: "parent: stranger", principal: Principal{RoleParent, "mum"}, target: Target{SubjectID: "stu-9"}, wantErr: ErrScopeDenied},
		{name: "parent: no child", principal: Principal{RoleParent, "dad"}, wantErr: ErrScopeDenied},
		{name: "unknown role", principal: Principal{"janitor", "x"}, wantErr: ErrUnknownRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.principal, tt.target)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "Resolve() = %s, want %s", got, tt.want)
		})
	}
}

func TestResolver_Resolve_combinedTarget(t *testing.T) {
	r := NewResolver(newFakeDirectory())
	ctx := context.Background()
	admin := Principal{RoleAdmin, "root"}
	head := Principal{RoleSchool, "head-42"}

	tests := []struct {
		name      string
		principal Principal
		target    Target
		want      Path
		wantSelf  string
		wantErr   error
	}{
		{name: "region and school", principal: admin, target: OrgTarget("greater-accra", "42"), want: Path{"greater-accra", "42"}},
		{name: "school and region", principal: admin, target: OrgTarget("42", "greater-accra"), want: Path{"greater-accra", "42"}},
		{name: "school of another region", principal: admin, target: OrgTarget("42", "volta"), wantErr: ErrConflictingTarget},
		{name: "two schools", principal: admin, target: OrgTarget("42", "43"), wantErr: ErrConflictingTarget},
		{name: "subject in organization", principal: admin, target: Target{OrganizationIDs: []string{"43"}, SubjectID: "stu-9"}, wantSelf: "stu-9"},
		{name: "subject outside organization", principal: admin, target: Target{OrganizationIDs: []string{"43"}, SubjectID: "stu-1"}, wantErr: ErrConflictingTarget},
		{name: "school: own school and class", principal: head, target: OrgTarget("42", "42:JHS1-A"), want: Path{"greater-accra", "42", "JHS1-A"}},
		{name: "school: own and other school", principal: head, target: OrgTarget("42", "43"), wantErr: ErrScopeDenied},
		{name: "school: own school and other region", principal: head, target: OrgTarget("42", "volta"), wantErr: ErrScopeDenied},
		{name: "school: own subject in other school", principal: head, target: Target{OrganizationIDs: []string{"43"}, SubjectID: "stu-1"}, wantErr: ErrScopeDenied},
		{name: "school: other subject in own school", principal: head, target: Target{OrganizationIDs: []string{"42"}, SubjectID: "stu-9"}, wantErr: ErrScopeDenied},
		{name: "parent: child and school", principal: Principal{RoleParent, "mum"}, target: Target{OrganizationIDs: []string{"42"}, SubjectID: "stu-1"}, wantErr: ErrScopeDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.principal, tt.target)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			if tt.wantSelf != "" {
				assert.Equal(t, VisibilitySelf, got.Visibility())
				assert.Equal(t, []string{tt.wantSelf}, got.Subjects())
				return
			}
			assert.Equal(t, VisibilitySubtree, got.Visibility())
			assert.Equal(t, []Path{tt.want}, got.Roots())
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Teacher ")
	require.NoError(t, err)
	assert.Equal(t, RoleTeacher, r)

	_, err = ParseRole("superuser")
	assert.True(t, errors.Is(err, ErrUnknownRole))
}
