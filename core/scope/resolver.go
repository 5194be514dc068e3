package scope

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrScopeDenied         = errors.New("scope denied")
	ErrNotAssigned         = errors.New("no organization or subject assigned")
	ErrUnknownOrganization = errors.New("unknown organization")
	ErrUnknownSubject      = errors.New("unknown subject")
	// ErrConflictingTarget is returned for a target naming organizations (or a subject)
	// that do not lie on one branch of the hierarchy.
	ErrConflictingTarget = errors.New("conflicting target")
)

// Directory answers identity questions about users and organizations.
type Directory interface {
	// OrgPath returns the path of an organization (region, school or class id).
	OrgPath(ctx context.Context, orgID string) (Path, error)
	// SubjectPath returns the path of the organization a subject (student, teacher, vendor, school) belongs to.
	SubjectPath(ctx context.Context, subjectID string) (Path, error)
	// SchoolOf returns the school id a school account manages.
	SchoolOf(ctx context.Context, userID string) (string, error)
	// ClassesOf returns the class ids a teacher is assigned to.
	ClassesOf(ctx context.Context, userID string) ([]string, error)
	// ChildrenOf returns the student ids linked to a parent.
	ChildrenOf(ctx context.Context, userID string) ([]string, error)
	// EntityOf returns the subject id a student or vendor account represents.
	EntityOf(ctx context.Context, userID string) (string, error)
}

type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve computes the Filter of p, narrowed to t when given.
// Every organization of t is checked: one outside of what p may see fails with
// ErrScopeDenied (it is never silently narrowed), organizations on different branches
// fail with ErrConflictingTarget.
func (r *Resolver) Resolve(ctx context.Context, p Principal, t Target) (Filter, error) {
	base, err := r.base(ctx, p)
	if err != nil {
		return Filter{}, err
	}

	if len(t.OrganizationIDs) > 0 && base.Visibility() == VisibilitySelf {
		return Filter{}, errors.Wrapf(ErrScopeDenied, "%s cannot target organizations %v", p.Role, t.OrganizationIDs)
	}

	var deepest Path
	for _, id := range t.OrganizationIDs {
		op, err := r.dir.OrgPath(ctx, id)
		if err != nil {
			return Filter{}, r.lookupErr(err, "organization path")
		}
		if !base.Contains(op) {
			return Filter{}, errors.Wrapf(ErrScopeDenied, "organization %s is outside %s", id, base)
		}
		switch {
		case op.HasPrefix(deepest):
			deepest = op
		case !deepest.HasPrefix(op):
			return Filter{}, errors.Wrapf(ErrConflictingTarget, "%s and %s are on different branches", deepest, op)
		}
	}

	narrowed := base
	if len(t.OrganizationIDs) > 0 {
		if narrowed, err = base.Narrow(deepest); err != nil {
			return Filter{}, err
		}
	}

	if t.SubjectID == "" {
		return narrowed, nil
	}
	if base.Visibility() == VisibilitySelf {
		return base.NarrowSubject(t.SubjectID, nil)
	}
	sp, err := r.dir.SubjectPath(ctx, t.SubjectID)
	if err != nil {
		return Filter{}, r.lookupErr(err, "subject path")
	}
	if !base.Allows(t.SubjectID, sp) {
		return Filter{}, errors.Wrapf(ErrScopeDenied, "subject %s is outside %s", t.SubjectID, base)
	}
	if len(t.OrganizationIDs) > 0 && !sp.HasPrefix(deepest) {
		return Filter{}, errors.Wrapf(ErrConflictingTarget, "subject %s is not in %s", t.SubjectID, deepest)
	}
	return narrowed.NarrowSubject(t.SubjectID, sp)
}

// base is everything p may see.
func (r *Resolver) base(ctx context.Context, p Principal) (Filter, error) {
	switch p.Role {
	case RoleAdmin:
		return Full(), nil

	case RoleSchool:
		schoolID, err := r.dir.SchoolOf(ctx, p.UserID)
		if err != nil {
			return Filter{}, r.lookupErr(err, "school of "+p.UserID)
		}
		sp, err := r.dir.OrgPath(ctx, schoolID)
		if err != nil {
			return Filter{}, r.lookupErr(err, "school path")
		}
		return Subtree(sp)

	case RoleTeacher:
		classIDs, err := r.dir.ClassesOf(ctx, p.UserID)
		if err != nil {
			return Filter{}, r.lookupErr(err, "classes of "+p.UserID)
		}
		if len(classIDs) == 0 {
			return Filter{}, errors.Wrapf(ErrScopeDenied, "teacher %s has no class", p.UserID)
		}
		roots := make([]Path, 0, len(classIDs))
		for _, id := range classIDs {
			cp, err := r.dir.OrgPath(ctx, id)
			if err != nil {
				return Filter{}, r.lookupErr(err, "class path")
			}
			roots = append(roots, cp)
		}
		return Subtree(roots...)

	case RoleStudent, RoleVendor:
		entityID, err := r.dir.EntityOf(ctx, p.UserID)
		if err != nil {
			return Filter{}, r.lookupErr(err, "entity of "+p.UserID)
		}
		return Self(entityID)

	case RoleParent:
		children, err := r.dir.ChildrenOf(ctx, p.UserID)
		if err != nil {
			return Filter{}, r.lookupErr(err, "children of "+p.UserID)
		}
		if len(children) == 0 {
			return Filter{}, errors.Wrapf(ErrScopeDenied, "parent %s has no linked child", p.UserID)
		}
		return Self(children...)
	}
	return Filter{}, errors.Wrapf(ErrUnknownRole, "%q", p.Role)
}

// lookupErr turns a missing assignment into a denial and wraps anything else.
func (r *Resolver) lookupErr(err error, what string) error {
	if errors.Is(err, ErrNotAssigned) {
		return errors.Wrap(ErrScopeDenied, err.Error())
	}
	return errors.Wrap(err, "resolving "+what)
}
