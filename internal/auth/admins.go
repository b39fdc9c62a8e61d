package auth

import "slices"

// AdminSet is the static owner and admin allowlist. The zero value has no
// admins. It is never mutated after construction.
type AdminSet struct {
	owner  int64
	admins map[int64]struct{}
}

func NewAdminSet(owner int64, admins ...int64) AdminSet {
	set := make(map[int64]struct{}, len(admins))
	for _, id := range admins {
		set[id] = struct{}{}
	}
	return AdminSet{owner: owner, admins: set}
}

func (a AdminSet) Owner() int64 { return a.owner }

// Contains reports whether id is the owner or an admin.
func (a AdminSet) Contains(id int64) bool {
	if a.owner != 0 && id == a.owner {
		return true
	}
	_, ok := a.admins[id]
	return ok
}

// IDs returns every admin followed by the owner, without duplicates.
func (a AdminSet) IDs() []int64 {
	ids := make([]int64, 0, len(a.admins)+1)
	for id := range a.admins {
		if id != a.owner {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if a.owner != 0 {
		ids = append(ids, a.owner)
	}
	return ids
}
