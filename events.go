/*
	Copyright NetFoundry Inc.

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

package xmount

import (
	"sync"

	"github.com/openziti/foundation/v2/concurrenz"
)

type ServerState int

const (
	Unconfigured ServerState = iota
	Stopped
	Started
)

func (s ServerState) String() string {
	switch s {
	case Unconfigured:
		return "Unconfigured"
	case Stopped:
		return "Stopped"
	case Started:
		return "Started"
	}
	return "Unknown"
}

type ServerEvent int

const (
	EventConfigured ServerEvent = iota
	EventStarted
	EventStopped
)

func (e ServerEvent) String() string {
	switch e {
	case EventConfigured:
		return "CONFIGURED"
	case EventStarted:
		return "STARTED"
	case EventStopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

// ServerListener observes ServerController state transitions.
type ServerListener interface {
	StateChanged(event ServerEvent)
}

// ServerListenerFunc adapts a function to a ServerListener. Being a func it cannot be removed again, use a
// pointer to a ServerListener implementation if RemoveListener is needed.
type ServerListenerFunc func(event ServerEvent)

func (f ServerListenerFunc) StateChanged(event ServerEvent) {
	f(event)
}

type listenerEntry struct {
	listener ServerListener
}

// listenerSet is a copy-on-write set of ServerListener's. Notification iterates a snapshot without locking.
type listenerSet struct {
	lock    sync.Mutex
	entries concurrenz.AtomicValue[[]*listenerEntry]
}

func (set *listenerSet) add(listener ServerListener) {
	set.lock.Lock()
	defer set.lock.Unlock()

	current := set.entries.Load()
	for _, entry := range current {
		if sameListener(entry.listener, listener) {
			return
		}
	}

	next := make([]*listenerEntry, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, &listenerEntry{listener: listener})
	set.entries.Store(next)
}

func (set *listenerSet) remove(listener ServerListener) {
	set.lock.Lock()
	defer set.lock.Unlock()

	current := set.entries.Load()
	next := make([]*listenerEntry, 0, len(current))
	for _, entry := range current {
		if !sameListener(entry.listener, listener) {
			next = append(next, entry)
		}
	}
	set.entries.Store(next)
}

func (set *listenerSet) notify(event ServerEvent) {
	for _, entry := range set.entries.Load() {
		entry.listener.StateChanged(event)
	}
}

// sameListener compares listeners without panicking on uncomparable dynamic types such as ServerListenerFunc.
func sameListener(a, b ServerListener) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
