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

// Package profiling captures CPU profiles of a running process.
package profiling

import (
	"context"
	"os"
	"runtime/pprof"
	"time"

	log "github.com/sirupsen/logrus"
)

// CPUProfile starts generating a CPU profile (via pprof) to the supplied file.
// The profiling stops after the supplied duration or once ctx ends, whichever
// is first; the returned channel is closed once the file is complete. Only
// one profile can be running at a time: if profiling is already running, an
// error is returned.
func CPUProfile(ctx context.Context, outputFilename string, duration time.Duration) (<-chan struct{}, error) {
	f, err := os.Create(outputFilename)
	if err != nil {
		return nil, err
	}
	log.Infof("Starting CPU profiling, to %s for %s", outputFilename, duration)
	err = pprof.StartCPUProfile(f)
	if err != nil {
		log.Errorf("CPU profiling error: %s", err)
		f.Close()
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		timer := time.NewTimer(duration)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		pprof.StopCPUProfile()
		if err := f.Close(); err != nil {
			log.Warnf("Unable to close CPU profile %s: %v", outputFilename, err)
			return
		}
		log.Infof("Completed CPU profile to %s", outputFilename)
	}()
	return done, nil
}
