// Copyright 2026 Pulsecast authors
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

package receiver

import (
	"sync"

	"github.com/gammazero/deque"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/logger"
	"github.com/pulsecast/pulsecast/pkg/telemetry/prometheus"
)

// TaskScheduler wakes the pipeline when a task is submitted while no
// read is in flight (e.g. by poking the event loop that drives reads).
type TaskScheduler interface {
	Wake()
}

type task struct {
	fn   func() error
	done chan error
}

type LoopConfig struct {
	// MaxSubframeSamples splits each read into subframes of at most this
	// many per-channel samples; tasks run between subframes.
	MaxSubframeSamples int

	// MaxTasksPerSubframe bounds how many tasks run at one boundary.
	MaxTasksPerSubframe int
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxSubframeSamples:  1024,
		MaxTasksPerSubframe: 8,
	}
}

// PipelineLoop interleaves control tasks with the data path. The data path
// splits frames into subframes and drains a bounded number of tasks at
// each boundary, so tasks never preempt audio mid-subframe and task
// latency stays within one subframe plus execution time.
type PipelineLoop struct {
	config LoopConfig
	log    logger.Logger

	// execLock serializes the data path with inline task execution; the
	// task queue itself is guarded by queueLock.
	execLock  sync.Mutex
	queueLock sync.Mutex
	tasks     deque.Deque[task]

	scheduler TaskScheduler
}

func NewPipelineLoop(config LoopConfig, log logger.Logger) *PipelineLoop {
	return &PipelineLoop{
		config: config,
		log:    log.WithComponent("pipeline_loop"),
	}
}

// SetScheduler installs the external wake hook.
func (l *PipelineLoop) SetScheduler(s TaskScheduler) {
	l.scheduler = s
}

// Schedule submits a task from any thread. If the loop is idle the task
// runs inline; otherwise it is queued and executed at the next subframe
// boundary, with the external scheduler woken to guarantee progress.
func (l *PipelineLoop) Schedule(fn func() error) <-chan error {
	t := task{fn: fn, done: make(chan error, 1)}

	if l.execLock.TryLock() {
		t.done <- t.fn()
		prometheus.TasksProcessed.Inc()
		l.execLock.Unlock()
		return t.done
	}

	l.queueLock.Lock()
	l.tasks.PushBack(t)
	l.queueLock.Unlock()

	if l.scheduler != nil {
		l.scheduler.Wake()
	} else {
		// no external scheduler: guarantee progress by draining after the
		// in-flight frame finishes
		go func() {
			l.execLock.Lock()
			defer l.execLock.Unlock()
			l.ProcessPendingTasks()
		}()
	}
	return t.done
}

// ScheduleAndWait runs a task and blocks for its completion.
func (l *PipelineLoop) ScheduleAndWait(fn func() error) error {
	return <-l.Schedule(fn)
}

// ProcessFrame runs the data path for one output frame: subframe splitting
// with task boundaries in between. fill produces samples for one subframe.
func (l *PipelineLoop) ProcessFrame(f *audio.Frame, fill func(sub *audio.Frame) error) error {
	l.execLock.Lock()
	defer l.execLock.Unlock()

	ch := f.Spec.NumChannels()
	total := f.SamplesPerChan()
	max := l.config.MaxSubframeSamples

	f.Flags = 0

	for off := 0; off < total; {
		n := total - off
		if n > max {
			n = max
		}

		sub := audio.Frame{
			Samples: f.Samples[off*ch : (off+n)*ch],
			Spec:    f.Spec,
		}
		if err := fill(&sub); err != nil {
			return err
		}
		f.Flags |= sub.Flags
		if f.CaptureTime.IsZero() {
			f.CaptureTime = sub.CaptureTime
		}

		off += n

		l.ProcessPendingTasks()
	}
	return nil
}

// ProcessPendingTasks runs up to the per-boundary task budget. Called at
// subframe boundaries (exec lock already held) and by the scheduler wake
// path, which must serialize with Wake-side Schedule itself.
func (l *PipelineLoop) ProcessPendingTasks() {
	for i := 0; i < l.config.MaxTasksPerSubframe; i++ {
		l.queueLock.Lock()
		if l.tasks.Len() == 0 {
			l.queueLock.Unlock()
			return
		}
		t := l.tasks.PopFront()
		l.queueLock.Unlock()

		t.done <- t.fn()
		prometheus.TasksProcessed.Inc()
	}
}
