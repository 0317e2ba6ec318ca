// Copyright 2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package diff

// Splice is the alternative, array-edit-shaped view of a contiguous run of
// differences: a block of Removed entries followed by a block of Added
// entries. A Change entry is placed in Removed as is (it carries both
// OldValue and NewValue); no matching Added entry is made for it.
type Splice struct {
	Removed []Entry
	Added   []Entry
}

// ToSplices regroups an ordered diff Entry sequence into contiguous splice
// runs: every maximal run of Remove/Change entries followed immediately by
// a maximal run of Add entries becomes one Splice. A Remove or Change that
// follows an Add starts a new Splice; keys are not compared, so whether
// unchanged keys lie between two entries plays no part in the grouping.
func ToSplices(entries []Entry) []Splice {
	var splices []Splice
	i := 0
	for i < len(entries) {
		var removed, added []Entry
		for i < len(entries) && (entries[i].Op == Remove || entries[i].Op == Change) {
			removed = append(removed, entries[i])
			i++
		}
		for i < len(entries) && entries[i].Op == Add {
			added = append(added, entries[i])
			i++
		}
		if len(removed) == 0 && len(added) == 0 {
			// Shouldn't happen given Op only takes these three values, but
			// guard against an infinite loop regardless.
			i++
			continue
		}
		splices = append(splices, Splice{Removed: removed, Added: added})
	}
	return splices
}
