/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package audio

import (
	"sync"
	"time"

	"instory/internal/domain"
)

// Player is one playback element bound to a clip's source, looping as the
// clip says.
type Player interface {
	Play() error
	Pause()
	SetVolume(v float64)
	// Release clears the source; the player is not used afterwards.
	Release()
}

// PlayerFactory creates the element for a clip.
type PlayerFactory func(a domain.StoryAudio) (Player, error)

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealScheduler uses time.AfterFunc.
var RealScheduler Scheduler = realScheduler{}

// StatePlayer is a Player that only records the state a remote client
// should mirror. The server side reader uses it to report what should be
// audible.
type StatePlayer struct {
	mu      sync.Mutex
	Audio   domain.StoryAudio
	playing bool
	volume  float64
	gone    bool
}

func NewStatePlayer(a domain.StoryAudio) (Player, error) { return &StatePlayer{Audio: a}, nil }

func (p *StatePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	return nil
}

func (p *StatePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

func (p *StatePlayer) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

func (p *StatePlayer) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.gone = true
}

// State returns whether the element plays and at which volume.
func (p *StatePlayer) State() (playing bool, volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing, p.volume
}
