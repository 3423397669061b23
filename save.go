/*
Copyright © 2018 the PipeMSX authors.
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

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// savedFailure is the stored form of a NumericalFailure.
type savedFailure struct {
	Kind    ElementKind
	Element string
	Step    int
	Time    float64
	Message string
}

type savedResults struct {
	RunID    uuid.UUID
	Species  []string
	Times    []float64
	Series   []*Series
	Failures []savedFailure
}

// Save returns a function that saves the simulation results to w in gob
// format (https://golang.org/pkg/encoding/gob/).
func Save(w io.Writer) DomainManipulator {
	return func(d *PipeMSX) error {
		if err := d.Results.Save(w); err != nil {
			return fmt.Errorf("pipemsx.PipeMSX.Save: %w", err)
		}
		return nil
	}
}

// Save writes r to w in gob format.
func (r *Results) Save(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := savedResults{RunID: r.RunID, Species: r.Species, Times: r.Times, Series: r.Series}
	for _, f := range r.Failures {
		s.Failures = append(s.Failures, savedFailure{
			Kind: f.Kind, Element: f.Element, Step: f.Step, Time: f.Time, Message: f.Err.Error(),
		})
	}
	return gob.NewEncoder(w).Encode(s)
}

// Load reads results previously written by Save.
func Load(r io.Reader) (*Results, error) {
	var s savedResults
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("pipemsx.Load: %w", err)
	}
	res := &Results{RunID: s.RunID, Species: s.Species, Times: s.Times, Series: s.Series}
	for _, f := range s.Failures {
		res.Failures = append(res.Failures, &NumericalFailure{
			Kind: f.Kind, Element: f.Element, Step: f.Step, Time: f.Time, Err: errors.New(f.Message),
		})
	}
	res.reindex()
	return res, nil
}
