package analysis

import (
	"cmp"
	"slices"

	"campuscard/internal/core"
)

// FilterRecords returns the records for which keep returns true, preserving
// order. The input slice is not modified.
func FilterRecords(records []core.Record, keep func(core.Record) bool) []core.Record {
	out := make([]core.Record, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// ForStudent matches records of one student ID.
func ForStudent(studentID string) func(core.Record) bool {
	return func(r core.Record) bool { return r.StudentID == studentID }
}

// ForMajor matches records of one major.
func ForMajor(major string) func(core.Record) bool {
	return func(r core.Record) bool { return r.Major == major }
}

// ForGrade matches records of one grade.
func ForGrade(grade string) func(core.Record) bool {
	return func(r core.Record) bool { return r.Grade == grade }
}

func consumptionOnly(records []core.Record) []core.Record {
	return FilterRecords(records, func(r core.Record) bool { return r.TxType.IsConsumption() })
}

func compareChronological(a, b core.Record) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// sortedChronological returns a copy ordered by (timestamp, id).
func sortedChronological(records []core.Record) []core.Record {
	out := slices.Clone(records)
	slices.SortStableFunc(out, compareChronological)
	return out
}

// groupByStudent splits records by student ID. Groups are returned in student
// ID order and keep the input order within each group.
func groupByStudent(records []core.Record) [][]core.Record {
	index := make(map[string]int)
	var ids []string
	var groups [][]core.Record
	for _, r := range records {
		i, ok := index[r.StudentID]
		if !ok {
			i = len(groups)
			index[r.StudentID] = i
			ids = append(ids, r.StudentID)
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}

	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int { return cmp.Compare(ids[a], ids[b]) })

	out := make([][]core.Record, len(groups))
	for i, g := range order {
		out[i] = groups[g]
	}
	return out
}
