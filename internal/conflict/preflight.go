package conflict

import (
	"github.com/CLIAIMONITOR/internal/types"
)

// PlannedSubtask is one subtask's declared file footprint for pre-flight
// conflict detection, before any locks are actually requested.
type PlannedSubtask struct {
	Files    []string
	LockType types.LockType
}

// PairConflict is a detected contention between two planned subtasks
// over the same file.
type PairConflict struct {
	Path      string
	Subtasks  [2]int
	LockTypes [2]types.LockType
}

// PreflightResult summarizes whether a batch of planned subtasks can
// run concurrently, and how to group them if not all of them can.
type PreflightResult struct {
	HasConflicts   bool
	CanParallelize bool
	Conflicts      []PairConflict
	ParallelGroups [][]int
}

type fileUsage struct {
	subtaskIndex int
	lockType     types.LockType
}

// DetectPotentialConflicts pre-screens a batch of planned subtasks
// in-memory (no locks are taken) and partitions them into the largest
// parallel-safe groups it can find: any two subtasks touching the same
// path where at least one is a write are mutually exclusive, and a
// subtask joins a group only if it conflicts with no existing member.
func DetectPotentialConflicts(subtasks []PlannedSubtask) PreflightResult {
	usageByPath := map[string][]fileUsage{}
	for idx, st := range subtasks {
		lockType := st.LockType
		if lockType == "" {
			lockType = types.LockRead
		}
		for _, path := range st.Files {
			norm := normalizePath(path)
			usageByPath[norm] = append(usageByPath[norm], fileUsage{subtaskIndex: idx, lockType: lockType})
		}
	}

	var conflicts []PairConflict
	conflictingPairs := map[[2]int]bool{}

	for path, usages := range usageByPath {
		if len(usages) <= 1 {
			continue
		}
		for i := 0; i < len(usages); i++ {
			for j := i + 1; j < len(usages); j++ {
				u1, u2 := usages[i], usages[j]
				if u1.lockType != types.LockWrite && u2.lockType != types.LockWrite {
					continue
				}
				conflicts = append(conflicts, PairConflict{
					Path:      path,
					Subtasks:  [2]int{u1.subtaskIndex, u2.subtaskIndex},
					LockTypes: [2]types.LockType{u1.lockType, u2.lockType},
				})
				lo, hi := u1.subtaskIndex, u2.subtaskIndex
				if lo > hi {
					lo, hi = hi, lo
				}
				conflictingPairs[[2]int{lo, hi}] = true
			}
		}
	}

	n := len(subtasks)
	assigned := make([]bool, n)
	var groups [][]int

	for idx := 0; idx < n; idx++ {
		if assigned[idx] {
			continue
		}
		group := []int{idx}
		assigned[idx] = true

		for other := idx + 1; other < n; other++ {
			if assigned[other] {
				continue
			}
			canAdd := true
			for _, member := range group {
				lo, hi := member, other
				if lo > hi {
					lo, hi = hi, lo
				}
				if conflictingPairs[[2]int{lo, hi}] {
					canAdd = false
					break
				}
			}
			if canAdd {
				group = append(group, other)
				assigned[other] = true
			}
		}
		groups = append(groups, group)
	}

	canParallelize := false
	for _, g := range groups {
		if len(g) > 1 {
			canParallelize = true
			break
		}
	}

	return PreflightResult{
		HasConflicts:   len(conflicts) > 0,
		CanParallelize: canParallelize,
		Conflicts:      conflicts,
		ParallelGroups: groups,
	}
}
