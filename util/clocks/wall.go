// Copyright 2019 eBay Inc.
// Primary authors: Simon Fell, Diego Ongaro,
//                  Raymond Kroeker, and Sathish Kandasamy.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package clocks provides a mockable way to measure time and set alarms.
// Query deadlines are measured against a Source so that tests can expire
// them deterministically.
package clocks

import (
	"sync"
	"time"
)

// Time is a convenient alias for time.Time.
type Time = time.Time

// A Source tells the passage of time. This package provides two sources:
// Wall and Mock.
type Source interface {
	// Now returns the current time.
	Now() Time
	// NewAlarm creates an alarm that won't yet fire.
	NewAlarm() Alarm
}

// An Alarm alerts the user when a given time is reached.
type Alarm interface {
	// Set schedules the alarm to beep at or shortly after the given time. Any
	// previously scheduled wakeup is lost. Set is thread-safe. After calling
	// Set, the caller must use Stop to reclaim resources, even after the alarm
	// beeps.
	Set(wake Time)
	// Stop unschedules the alarm. It is thread-safe and idempotent.
	Stop()
	// WaitCh returns a channel that receives an empty value each time the
	// alarm beeps, up to once per call to Set. The channel is never closed.
	WaitCh() <-chan struct{}
}

type wallClock struct{}

// Wall is the normal clock, as provided by time.Now().
var Wall Source = wallClock{}

func (wallClock) Now() Time {
	return time.Now()
}

func (wallClock) NewAlarm() Alarm {
	return &wallAlarm{beep: make(chan struct{}, 1)}
}

// wallAlarm is built on time.AfterFunc. The beep channel has a buffer of one
// so that a beep is never lost when the caller is not yet receiving.
type wallAlarm struct {
	beep chan struct{}
	lock sync.Mutex
	// generation is incremented by each Set and Stop; a timer that fires for
	// an older generation does nothing.
	generation uint64
	timer      *time.Timer
}

func (alarm *wallAlarm) WaitCh() <-chan struct{} {
	return alarm.beep
}

func (alarm *wallAlarm) Set(wake Time) {
	alarm.lock.Lock()
	defer alarm.lock.Unlock()
	alarm.stopLocked()
	gen := alarm.generation
	alarm.timer = time.AfterFunc(time.Until(wake), func() {
		alarm.lock.Lock()
		defer alarm.lock.Unlock()
		if alarm.generation != gen {
			return
		}
		select {
		case alarm.beep <- struct{}{}:
		default:
		}
	})
}

func (alarm *wallAlarm) Stop() {
	alarm.lock.Lock()
	alarm.stopLocked()
	alarm.lock.Unlock()
}

func (alarm *wallAlarm) stopLocked() {
	alarm.generation++
	if alarm.timer != nil {
		alarm.timer.Stop()
		alarm.timer = nil
	}
}
