// Package player plays a song to a MIDI sink and keeps the receiver free of
// hanging notes across stops, loop wraps, mutes and seeks.
package player

import (
	"log/slog"

	"gitlab.com/gomidi/midi/v2"

	"github.com/icco/voicetrack/internal/midibuf"
	"github.com/icco/voicetrack/internal/song"
	"github.com/icco/voicetrack/internal/tracker"
)

// Player steps through a song. Times written to the sink count ticks since
// the player was created, so they keep increasing across loops and seeks.
// A Player is not safe for concurrent use.
type Player struct {
	song  *song.Song
	out   midibuf.Sink
	state *tracker.StateTracker
	log   *slog.Logger

	pos     int64
	clock   int64
	loop    bool
	playing bool
	muted   bool
}

// Option configures a Player.
type Option func(*Player)

// WithLoop makes the player wrap to the start instead of stopping at the end.
func WithLoop(loop bool) Option {
	return func(p *Player) {
		p.loop = loop
	}
}

// WithLogger sets the logger for the player and its tracker.
func WithLogger(l *slog.Logger) Option {
	return func(p *Player) {
		p.log = l
	}
}

// New creates a stopped player at the start of s.
func New(s *song.Song, out midibuf.Sink, opts ...Option) *Player {
	p := &Player{
		song: s,
		out:  out,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.state = p.newTracker()
	return p
}

func (p *Player) newTracker() *tracker.StateTracker {
	t := tracker.NewStateTracker()
	t.SetLogger(p.log)
	return t
}

// Song returns the song being played.
func (p *Player) Song() *song.Song { return p.song }

// State returns the tracker following everything sent so far.
func (p *Player) State() *tracker.StateTracker { return p.state }

// Position returns the current song position in ticks.
func (p *Player) Position() int64 { return p.pos }

// Playing reports whether the transport is running.
func (p *Player) Playing() bool { return p.playing }

// Looping reports whether the player wraps at the end.
func (p *Player) Looping() bool { return p.loop }

// Muted reports whether note-ons are being dropped.
func (p *Player) Muted() bool { return p.muted }

// SetLoop turns looping on or off.
func (p *Player) SetLoop(loop bool) { p.loop = loop }

// Start runs the transport from the current position.
func (p *Player) Start() {
	p.playing = true
}

// Stop halts the transport and silences whatever is still sounding.
func (p *Player) Stop() {
	p.playing = false
	p.state.ResolveNotesToSink(p.out, p.clock)
}

// SetMute drops note-ons while muted. Muting silences sounding notes
// straight away; controller and program changes keep flowing.
func (p *Player) SetMute(muted bool) {
	if muted && !p.muted {
		p.state.ResolveNotesToSink(p.out, p.clock)
	}
	p.muted = muted
}

// Advance plays the next ticks of the song. It reports whether the song
// wrapped or ended during the step.
func (p *Player) Advance(ticks int64) bool {
	if !p.playing || ticks <= 0 {
		return false
	}

	end := p.song.Length
	if end <= 0 {
		p.Stop()
		return true
	}

	wrapped := false
	for ticks > 0 {
		step := min(ticks, end-p.pos)
		p.play(p.pos, p.pos+step)
		p.pos += step
		p.clock += step
		ticks -= step

		if p.pos < end {
			break
		}
		// events on the last tick still change the receiver's state
		p.play(end, end+1)
		wrapped = true
		if !p.loop {
			p.Stop()
			return true
		}
		p.log.Debug("loop wrap", "song", p.song.Name, "clock", p.clock, "sounding", p.state.On())
		p.state.ResolveNotesToSink(p.out, p.clock)
		p.pos = 0
	}
	return wrapped
}

func (p *Player) play(from, to int64) {
	for _, ev := range p.song.Between(from, to) {
		if p.muted && isNoteOn(ev.Msg) {
			continue
		}
		at := p.clock + ev.Time - from
		p.state.Track(ev.Msg)
		if err := p.out.Write(at, ev.Msg); err != nil {
			p.log.Warn("dropped event", "song", p.song.Name, "msg", ev.Msg.String(), "err", err)
		}
	}
}

func isNoteOn(msg midi.Message) bool {
	return len(msg) >= 3 && msg[0]&0xF0 == 0x90 && msg[2] > 0
}

// Seek moves to tick. Sounding notes are resolved, then the program,
// pressure and controller state the song has at tick is sent so the
// receiver matches what it would have after playing up to there.
func (p *Player) Seek(tick int64) {
	tick = max(0, min(tick, p.song.Length))
	p.state.ResolveNotesToSink(p.out, p.clock)

	chase := p.newTracker()
	chase.TrackEvents(p.song.Until(tick))
	// held notes are not retriggered mid-way
	chase.NoteTracker.Reset()
	chase.Flush(p.out, p.clock)

	p.log.Debug("seek", "song", p.song.Name, "from", p.pos, "to", tick)
	p.state = chase
	p.pos = tick
}
