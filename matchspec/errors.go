/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package matchspec

// InvalidSpec occurs when a spec string cannot be parsed.  Spec
// carries the offending input.
type InvalidSpec struct {
	Spec    string
	Problem string
}

func (e *InvalidSpec) Error() string {
	return `invalid spec '` + e.Spec + `': ` + e.Problem
}

// InvalidMatchSpec occurs when a MatchSpec cannot be constructed
// from the given inputs (say an unknown field name).
type InvalidMatchSpec struct {
	Spec    string
	Problem string
}

func (e *InvalidMatchSpec) Error() string {
	return `invalid match spec '` + e.Spec + `': ` + e.Problem
}

// MergeConflict occurs when two constraints on the same field cannot
// both hold.
type MergeConflict struct {
	A, B string
}

func (e *MergeConflict) Error() string {
	return `incompatible component merge: '` + e.A + `' with '` + e.B + `'`
}
