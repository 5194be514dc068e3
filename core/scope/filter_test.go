package scope

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Allows(t *testing.T) {
	school42, _ := Subtree(Path{"greater-accra", "42"})
	twoClasses, _ := Subtree(Path{"greater-accra", "42", "JHS1-A"}, Path{"greater-accra", "42", "JHS2-B"})
	kids, _ := Self("stu-2", "stu-1")

	tests := []struct {
		name   string
		filter Filter
		id     string
		path   Path
		want   bool
	}{
		{name: "full sees all", filter: Full(), id: "x", path: Path{"volta", "7"}, want: true},
		{name: "subtree: same school", filter: school42, id: "s", path: Path{"greater-accra", "42", "JHS1-A"}, want: true},
		{name: "subtree: school itself", filter: school42, id: "s", path: Path{"greater-accra", "42"}, want: true},
		{name: "subtree: other school", filter: school42, id: "s", path: Path{"greater-accra", "43"}, want: false},
		{name: "subtree: region above", filter: school42, id: "s", path: Path{"greater-accra"}, want: false},
		{name: "subtree: one of the classes", filter: twoClasses, id: "s", path: Path{"greater-accra", "42", "JHS2-B"}, want: true},
		{name: "subtree: other class", filter: twoClasses, id: "s", path: Path{"greater-accra", "42", "JHS3-C"}, want: false},
		{name: "self: listed", filter: kids, id: "stu-1", want: true},
		{name: "self: unlisted", filter: kids, id: "stu-3", want: false},
		{name: "zero filter sees nothing", filter: Filter{}, id: "stu-1", path: Path{}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Allows(tt.id, tt.path); got != tt.want {
				t.Errorf("Allows() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_constructors(t *testing.T) {
	_, err := Subtree()
	assert.True(t, errors.Is(err, ErrInvalidFilter))

	_, err = Self("", "")
	assert.True(t, errors.Is(err, ErrInvalidFilter))

	f, err := Self("b", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, f.Subjects())
}

func TestFilter_isImmutable(t *testing.T) {
	root := Path{"volta", "7"}
	f, err := Subtree(root)
	require.NoError(t, err)

	root[1] = "8"
	f.Roots()[0][1] = "9"

	assert.Equal(t, "SUBTREE(volta/7)", f.String())
}

func TestFilter_Narrow(t *testing.T) {
	school42, _ := Subtree(Path{"greater-accra", "42"})

	narrowed, err := school42.Narrow(Path{"greater-accra", "42", "JHS1-A"})
	require.NoError(t, err)
	assert.Equal(t, "SUBTREE(greater-accra/42/JHS1-A)", narrowed.String())

	_, err = school42.Narrow(Path{"greater-accra"})
	assert.True(t, errors.Is(err, ErrScopeDenied), "widening must be denied")

	self, _ := Self("stu-1")
	_, err = self.Narrow(Path{"greater-accra", "42"})
	assert.True(t, errors.Is(err, ErrScopeDenied))
}

func TestFilter_JSON(t *testing.T) {
	school42, _ := Subtree(Path{"greater-accra", "42"})
	kids, _ := Self("stu-1", "stu-2")

	for _, f := range []Filter{Full(), school42, kids} {
		data, err := json.Marshal(f)
		require.NoError(t, err)

		var got Filter
		require.NoError(t, json.Unmarshal(data, &got))
		assert.True(t, f.Equal(got), "%s != %s", f, got)
	}

	var bad Filter
	err := json.Unmarshal([]byte(`{"visibility":"SELF"}`), &bad)
	assert.True(t, errors.Is(err, ErrInvalidFilter))
}
