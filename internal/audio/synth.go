// Package audio provides a small software synthesizer that can be used as
// a MIDI sink.
package audio

import (
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
	"gitlab.com/gomidi/midi/v2"
)

const (
	sampleRate   = 44100
	channelCount = 2 // stereo
	bitDepth     = 2 // 16-bit

	numMIDIChannels = 16
	defaultVolume   = 100
)

// WaveType represents different oscillator wave shapes
type WaveType int

const (
	WaveSine WaveType = iota
	WaveSquare
	WaveSawtooth
	WaveTriangle
	numWaveTypes
)

func (w WaveType) String() string {
	switch w {
	case WaveSine:
		return "sine"
	case WaveSquare:
		return "square"
	case WaveSawtooth:
		return "saw"
	case WaveTriangle:
		return "triangle"
	default:
		return fmt.Sprintf("wave(%d)", int(w))
	}
}

// voice is a single playing note
type voice struct {
	note      uint8
	channel   uint8
	velocity  uint8
	frequency float64
	phase     float64
	envelope  float64 // 0-1
	releasing bool
	active    bool
}

// channelState is what the synth remembers per MIDI channel.
type channelState struct {
	wave     WaveType
	volume   uint8 // CC 7
	pressure uint8 // channel aftertouch, adds to velocity
}

// Synth is a polyphonic synthesizer driven by raw MIDI messages.
type Synth struct {
	mu           sync.Mutex
	otoCtx       *oto.Context
	player       *oto.Player
	voices       []*voice
	maxVoices    int
	masterVolume float64
	channels     [numMIDIChannels]channelState
}

// newSynth builds the mixer without opening an audio device.
func newSynth() *Synth {
	s := &Synth{
		maxVoices:    64,
		masterVolume: 0.3,
	}
	for ch := range s.channels {
		s.channels[ch] = channelState{wave: WaveType(ch % int(numWaveTypes)), volume: defaultVolume}
	}
	return s
}

// NewSynth creates a synthesizer playing through the default audio output.
func NewSynth() (*Synth, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
	}

	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio output: %w", err)
	}
	<-readyChan

	s := newSynth()
	s.otoCtx = otoCtx
	s.player = otoCtx.NewPlayer(&synthReader{synth: s})
	s.player.Play()

	return s, nil
}

// synthReader implements io.Reader for continuous audio generation
type synthReader struct {
	synth *Synth
}

func (r *synthReader) Read(buf []byte) (int, error) {
	s := r.synth
	s.mu.Lock()
	defer s.mu.Unlock()

	numSamples := len(buf) / (channelCount * bitDepth)

	for i := 0; i < numSamples; i++ {
		var sample float64

		for _, v := range s.voices {
			if !v.active {
				continue
			}
			cs := s.channels[v.channel]

			level := float64(min(int(v.velocity)+int(cs.pressure)/4, 127)) / 127.0
			level *= float64(cs.volume) / 127.0
			sample += generateWave(cs.wave, v.phase) * level * v.envelope * 0.2

			v.phase += v.frequency / sampleRate
			if v.phase >= 1.0 {
				v.phase -= 1.0
			}

			if v.releasing {
				v.envelope *= 0.9995
				if v.envelope < 0.001 {
					v.active = false
				}
			} else if v.envelope < 1.0 {
				v.envelope = math.Min(v.envelope+0.001, 1.0)
			}
		}

		sample = math.Max(-1, math.Min(1, sample*s.masterVolume))
		sampleInt := int16(sample * 32767)

		// same sample on L and R
		idx := i * channelCount * bitDepth
		buf[idx] = byte(sampleInt)
		buf[idx+1] = byte(sampleInt >> 8)
		buf[idx+2] = byte(sampleInt)
		buf[idx+3] = byte(sampleInt >> 8)
	}

	return numSamples * channelCount * bitDepth, nil
}

func generateWave(waveType WaveType, phase float64) float64 {
	switch waveType {
	case WaveSquare:
		if phase < 0.5 {
			return 0.8
		}
		return -0.8
	case WaveSawtooth:
		return 2*phase - 1
	case WaveTriangle:
		if phase < 0.5 {
			return 4*phase - 1
		}
		return 3 - 4*phase
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// Write plays one raw MIDI message. The timestamp is ignored; the synth
// acts on messages as they arrive. Unknown messages are ignored.
func (s *Synth) Write(_ int64, msg midi.Message) error {
	if len(msg) < 2 || msg[0] < 0x80 || msg[0] >= 0xF0 {
		return nil
	}
	ch := msg[0] & 0x0F

	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg[0] & 0xF0 {
	case 0x90:
		if len(msg) < 3 || msg[2] == 0 {
			s.noteOffLocked(ch, msg[1])
			return nil
		}
		s.noteOnLocked(ch, msg[1], msg[2])
	case 0x80:
		s.noteOffLocked(ch, msg[1])
	case 0xB0:
		if len(msg) < 3 {
			return nil
		}
		switch msg[1] {
		case 7:
			s.channels[ch].volume = msg[2]
		case 120, 123:
			s.allNotesOffLocked()
		}
	case 0xC0:
		s.channels[ch].wave = waveForProgram(msg[1])
	case 0xD0:
		s.channels[ch].pressure = msg[1]
	}
	return nil
}

// waveForProgram groups General MIDI programs in blocks of eight.
func waveForProgram(program uint8) WaveType {
	return WaveType(int(program/8) % int(numWaveTypes))
}

// NoteOn triggers a new note
func (s *Synth) NoteOn(channel, note, velocity uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if velocity == 0 {
		s.noteOffLocked(channel, note)
		return
	}
	s.noteOnLocked(channel, note, velocity)
}

func (s *Synth) noteOnLocked(channel, note, velocity uint8) {
	// reuse an idle voice, or steal the oldest
	var v *voice
	for _, candidate := range s.voices {
		if !candidate.active {
			v = candidate
			break
		}
	}
	if v == nil {
		if len(s.voices) < s.maxVoices {
			v = &voice{}
			s.voices = append(s.voices, v)
		} else {
			v = s.voices[0]
		}
	}

	*v = voice{
		note:      note,
		channel:   channel % numMIDIChannels,
		velocity:  velocity,
		frequency: midiNoteToFreq(note),
		active:    true,
	}
}

// NoteOff releases a note
func (s *Synth) NoteOff(channel, note uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noteOffLocked(channel, note)
}

func (s *Synth) noteOffLocked(channel, note uint8) {
	for _, v := range s.voices {
		if v.active && v.note == note && v.channel == channel && !v.releasing {
			v.releasing = true
			break
		}
	}
}

// AllNotesOff releases every playing note
func (s *Synth) AllNotesOff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allNotesOffLocked()
}

func (s *Synth) allNotesOffLocked() {
	for _, v := range s.voices {
		if v.active {
			v.releasing = true
		}
	}
}

// Sounding returns the number of voices not yet released.
func (s *Synth) Sounding() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, v := range s.voices {
		if v.active && !v.releasing {
			n++
		}
	}
	return n
}

// Wave returns the oscillator shape currently used on channel.
func (s *Synth) Wave(channel uint8) WaveType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[channel%numMIDIChannels].wave
}

// SetVolume sets the master volume (0.0 - 1.0)
func (s *Synth) SetVolume(vol float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masterVolume = math.Max(0, math.Min(1, vol))
}

// Close shuts down the synthesizer
func (s *Synth) Close() error {
	s.AllNotesOff()
	// oto v3.4 players no longer need Close; they go with the GC.
	if s.player != nil {
		s.player.Pause()
	}
	return nil
}

// midiNoteToFreq converts a MIDI note number to frequency in Hz
func midiNoteToFreq(note uint8) float64 {
	// A4 (note 69) = 440 Hz
	return 440.0 * math.Pow(2.0, (float64(note)-69.0)/12.0)
}
