// Package owner resolves owner and group specs into numeric POSIX ids.
//
// A spec is either a numeric id, used directly, or an account/group name
// resolved through the OS password database. A missing group spec falls
// back to the primary group of the resolved owner.
package owner

import (
	"fmt"
	"os/user"
	"strconv"
)

// Identity is a resolved uid/gid pair applied to every file and
// directory the reconciler touches.
type Identity struct {
	UID int
	GID int
}

// Resolve turns an owner spec and an optional group spec into an
// Identity. Resolution happens once per run so a bad identity fails the
// run before any write.
func Resolve(ownerSpec, groupSpec string) (Identity, error) {
	if ownerSpec == "" {
		return Identity{}, fmt.Errorf("no owner specified (set UID or USER)")
	}

	var owner *user.User
	uid, numeric := parseID(ownerSpec)
	if !numeric {
		u, err := user.Lookup(ownerSpec)
		if err != nil {
			return Identity{}, fmt.Errorf("look up user %q: %w", ownerSpec, err)
		}
		owner = u
		uid, err = strconv.Atoi(u.Uid)
		if err != nil {
			return Identity{}, fmt.Errorf("non-numeric uid %q for user %q", u.Uid, ownerSpec)
		}
	}

	gid, err := resolveGroup(groupSpec, owner, uid)
	if err != nil {
		return Identity{}, err
	}

	return Identity{UID: uid, GID: gid}, nil
}

func resolveGroup(groupSpec string, owner *user.User, uid int) (int, error) {
	if groupSpec != "" {
		if gid, numeric := parseID(groupSpec); numeric {
			return gid, nil
		}
		g, err := user.LookupGroup(groupSpec)
		if err != nil {
			return 0, fmt.Errorf("look up group %q: %w", groupSpec, err)
		}
		gid, err := strconv.Atoi(g.Gid)
		if err != nil {
			return 0, fmt.Errorf("non-numeric gid %q for group %q", g.Gid, groupSpec)
		}
		return gid, nil
	}

	// No group spec: fall back to the owner's primary group. A numeric
	// owner spec skipped the password database above, so consult it now.
	if owner == nil {
		u, err := user.LookupId(strconv.Itoa(uid))
		if err != nil {
			return 0, fmt.Errorf("look up primary group of uid %d: %w", uid, err)
		}
		owner = u
	}
	gid, err := strconv.Atoi(owner.Gid)
	if err != nil {
		return 0, fmt.Errorf("non-numeric primary gid %q for user %q", owner.Gid, owner.Username)
	}
	return gid, nil
}

func parseID(spec string) (int, bool) {
	n, err := strconv.Atoi(spec)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
