/*
Copyright © 2016 the PipeMSX authors.
This file is part of PipeMSX.

PipeMSX is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

PipeMSX is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with PipeMSX.  If not, see <http://www.gnu.org/licenses/>.
*/

package pipemsx

// segmentList is an ordered list of indices into a segment arena.
type segmentList []int

func (l *segmentList) len() int {
	return len(*l)
}

// at returns the arena index at position i.
func (l *segmentList) at(i int) int {
	return (*l)[i]
}

// insert inserts arena index s at position i.
func (l *segmentList) insert(i, s int) {
	(*l) = append((*l), 0)
	copy((*l)[i+1:], (*l)[i:])
	(*l)[i] = s
}

// delete removes the entry at position i and returns it.
func (l *segmentList) delete(i int) int {
	s := (*l)[i]
	copy((*l)[i:], (*l)[i+1:])
	(*l) = (*l)[:len(*l)-1]
	return s
}

func (l *segmentList) pushFront(s int) { l.insert(0, s) }

func (l *segmentList) pushBack(s int) { (*l) = append((*l), s) }

func (l *segmentList) popFront() int { return l.delete(0) }

func (l *segmentList) popBack() int { return l.delete(len(*l) - 1) }
