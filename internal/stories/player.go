package stories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/timex"
)

// DefaultItemDuration is how long a still item stays on screen.
const DefaultItemDuration = 5000 * time.Millisecond

type State int

const (
	Playing State = iota
	Paused
	Advancing
	Closed
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Advancing:
		return "advancing"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// PlayerOptions wires a Player to its surroundings. All callbacks run
// outside the player's lock.
type PlayerOptions struct {
	Clock timex.Clock
	// OnItem is called each time an item becomes current.
	OnItem func(index int, s models.Story)
	// OnState is called on every state transition.
	OnState func(State, int)
	// OnClose is called exactly once when playback ends.
	OnClose func()
}

// Player sequences one owner's stories. It never rolls over into another
// group; reaching the end closes it.
type Player struct {
	mu    sync.Mutex
	opts  PlayerOptions
	clock timex.Clock

	stories []models.Story
	index   int
	state   State

	held         bool
	waitingMedia bool
	duration     time.Duration
	elapsed      time.Duration
	startedAt    time.Time

	timer timex.Timer
	gen   uint64
}

// NewPlayer opens group at index start and begins playback.
func NewPlayer(group models.StoryGroup, start int, opts PlayerOptions) *Player {
	if opts.Clock == nil {
		opts.Clock = timex.System()
	}
	p := &Player{opts: opts, clock: opts.Clock, stories: group.Stories}

	p.mu.Lock()
	var fire []func()
	if len(p.stories) == 0 {
		fire = p.closeLocked(fire)
	} else {
		fire = p.enterLocked(min(max(start, 0), len(p.stories)-1), fire)
	}
	p.mu.Unlock()
	run(fire)
	return p
}

func run(fs []func()) {
	for _, f := range fs {
		f()
	}
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// Current returns the story on screen.
func (p *Player) Current() (models.Story, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Closed || p.index >= len(p.stories) {
		return models.Story{}, false
	}
	return p.stories[p.index], true
}

// Progress returns how much of the current item has played, in [0, 1].
func (p *Player) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.duration <= 0 {
		return 0
	}
	e := p.elapsed
	if p.state == Playing {
		e += p.clock.Now().Sub(p.startedAt)
	}
	return min(float64(e)/float64(p.duration), 1)
}

// MediaReady supplies the duration of the current video or voice item and
// starts it unless the viewer is holding.
func (p *Player) MediaReady(d time.Duration) {
	p.mu.Lock()
	if p.state == Closed || !p.waitingMedia {
		p.mu.Unlock()
		return
	}
	if d <= 0 {
		d = DefaultItemDuration
	}
	p.waitingMedia = false
	p.duration = d
	var fire []func()
	if !p.held {
		fire = p.playLocked(fire)
	}
	p.mu.Unlock()
	run(fire)
}

// Press pauses playback while held.
func (p *Player) Press() {
	p.mu.Lock()
	if p.state == Closed {
		p.mu.Unlock()
		return
	}
	p.held = true
	var fire []func()
	if p.state == Playing {
		p.stopTimerLocked()
		p.elapsed += p.clock.Now().Sub(p.startedAt)
		fire = p.setStateLocked(Paused, fire)
	}
	p.mu.Unlock()
	run(fire)
}

// Release resumes playback with the remaining time of the current item.
func (p *Player) Release() {
	p.mu.Lock()
	if p.state == Closed {
		p.mu.Unlock()
		return
	}
	p.held = false
	var fire []func()
	if p.state == Paused && !p.waitingMedia {
		fire = p.playLocked(fire)
	}
	p.mu.Unlock()
	run(fire)
}

// Next moves to the following item; on the last item it closes.
func (p *Player) Next() {
	p.mu.Lock()
	if p.state == Closed {
		p.mu.Unlock()
		return
	}
	fire := p.advanceLocked(nil)
	p.mu.Unlock()
	run(fire)
}

// Prev moves to the previous item. It does nothing on the first one.
func (p *Player) Prev() {
	p.mu.Lock()
	if p.state == Closed || p.index == 0 {
		p.mu.Unlock()
		return
	}
	p.stopTimerLocked()
	fire := p.enterLocked(p.index-1, nil)
	p.mu.Unlock()
	run(fire)
}

// Close ends playback. Calling it again has no effect.
func (p *Player) Close() {
	p.mu.Lock()
	fire := p.closeLocked(nil)
	p.mu.Unlock()
	run(fire)
}

// DeleteCurrent removes the current story through del and closes the
// player. If del fails playback continues and the error is returned.
func (p *Player) DeleteCurrent(ctx context.Context, del func(context.Context, models.Story) error) error {
	cur, ok := p.Current()
	if !ok {
		return fmt.Errorf("delete current story: %w", common.ErrNotFound)
	}
	if err := del(ctx, cur); err != nil {
		return err
	}
	p.Close()
	return nil
}

func (p *Player) enterLocked(i int, fire []func()) []func() {
	p.index = i
	p.elapsed = 0
	st := p.stories[i]
	if cb := p.opts.OnItem; cb != nil {
		fire = append(fire, func() { cb(i, st) })
	}
	if st.Kind.TimedMedia() {
		p.waitingMedia = true
		p.duration = 0
		return p.setStateLocked(Paused, fire)
	}
	p.waitingMedia = false
	p.duration = DefaultItemDuration
	if p.held {
		return p.setStateLocked(Paused, fire)
	}
	return p.playLocked(fire)
}

func (p *Player) playLocked(fire []func()) []func() {
	p.startedAt = p.clock.Now()
	p.gen++
	gen := p.gen
	p.timer = p.clock.AfterFunc(p.duration-p.elapsed, func() { p.expired(gen) })
	return p.setStateLocked(Playing, fire)
}

func (p *Player) expired(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.state != Playing {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	fire := p.advanceLocked(nil)
	p.mu.Unlock()
	run(fire)
}

func (p *Player) advanceLocked(fire []func()) []func() {
	p.stopTimerLocked()
	fire = p.setStateLocked(Advancing, fire)
	if p.index+1 >= len(p.stories) {
		return p.closeLocked(fire)
	}
	return p.enterLocked(p.index+1, fire)
}

func (p *Player) closeLocked(fire []func()) []func() {
	if p.state == Closed {
		return fire
	}
	p.stopTimerLocked()
	fire = p.setStateLocked(Closed, fire)
	if cb := p.opts.OnClose; cb != nil {
		fire = append(fire, cb)
	}
	return fire
}

func (p *Player) stopTimerLocked() {
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Player) setStateLocked(s State, fire []func()) []func() {
	p.state = s
	if cb := p.opts.OnState; cb != nil {
		i := p.index
		fire = append(fire, func() { cb(s, i) })
	}
	return fire
}
