/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mailbox

import (
	"errors"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// owned tracks every mailbox this process created and has not destroyed yet, keyed
// by region path.
var owned = cmap.New[*Mailbox]()

// Owned returns the paths of the regions this process still owns.
func Owned() []string {
	return owned.Keys()
}

// DestroyAll destroys every mailbox created by this process that is still alive.
// It is meant for signal handlers: named regions outlive the process otherwise.
func DestroyAll() error {
	var errList []error
	for item := range owned.IterBuffered() {
		if err := item.Val.Destroy(); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}
