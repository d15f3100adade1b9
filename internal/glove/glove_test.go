// SPDX-License-Identifier: MIT
package glove

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"
)

func TestDecoderFeed(t *testing.T) {
	tests := []struct {
		name    string
		start   uint8
		input   []byte
		want    State
		changed Change
	}{
		{"Empty", 3, nil, State{Channel: 3}, 0},
		{"Angle", 0, []byte{64}, State{Angle: 64}, AngleChanged},
		{"Last Angle Wins", 0, []byte{10, 20, 30}, State{Angle: 30}, AngleChanged},
		{"Channel Select", 0, []byte{0x80 | 5}, State{Channel: 5}, ChannelChanged},
		{"Same Channel", 5, []byte{0x80 | 5}, State{Channel: 5}, 0},
		{"Channel Out Of Range", 2, []byte{0x80 | 16, 0xFF}, State{Channel: 2}, 0},
		{"Pair", 0, []byte{0x80 | 9, 100}, State{Channel: 9, Angle: 100}, ChannelChanged | AngleChanged},
		{"Zero Angle Unchanged", 0, []byte{0}, State{}, 0},
		{"Max Angle", 0, []byte{127}, State{Angle: 127}, AngleChanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(tt.start)
			changed := d.Feed(tt.input)
			if changed != tt.changed {
				t.Errorf("Feed() = %b, want %b", changed, tt.changed)
			}
			if got := d.State(); got != tt.want {
				t.Errorf("State() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecoderStreamAcrossFeeds(t *testing.T) {
	d := NewDecoder(0)
	d.Feed([]byte{0x80 | 1, 40})
	if c := d.Feed([]byte{0x80 | 1, 40}); c != 0 {
		t.Errorf("repeated reading reported changes %b", c)
	}
	if c := d.Feed([]byte{41}); !c.Has(AngleChanged) || c.Has(ChannelChanged) {
		t.Errorf("angle update reported %b", c)
	}
}

func TestStateWord(t *testing.T) {
	var w stateWord
	for _, s := range []State{{}, {Channel: 15, Angle: 127, Live: true}, {Channel: 7, Angle: 1}} {
		w.store(s)
		if got := w.load(); got != s {
			t.Errorf("load() = %+v, want %+v", got, s)
		}
	}
}

// fakePort feeds scripted reads. Reads past the script behave like a read
// timeout, or fail with err when it is set.
type fakePort struct {
	serial.Port

	mu      sync.Mutex
	reads   [][]byte
	err     error
	timeout time.Duration
	closed  bool
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reads) > 0 {
		n := copy(p, f.reads[0])
		f.reads = f.reads[1:]
		return n, nil
	}
	if f.err != nil {
		return 0, f.err
	}
	time.Sleep(time.Millisecond)
	return 0, nil
}

func (f *fakePort) SetReadTimeout(d time.Duration) error {
	f.timeout = d
	return nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestOpen(t *testing.T) {
	fake := &fakePort{}
	orig := openPort
	defer func() { openPort = orig }()

	var gotName string
	var gotMode *serial.Mode
	openPort = func(name string, mode *serial.Mode) (serial.Port, error) {
		gotName, gotMode = name, mode
		return fake, nil
	}

	p, err := Open("/dev/ttyACM0", 9600, 4)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if gotName != "/dev/ttyACM0" || gotMode.BaudRate != 9600 {
		t.Errorf("opened %q at %d baud", gotName, gotMode.BaudRate)
	}
	if fake.timeout != readTimeout {
		t.Errorf("read timeout = %v, want %v", fake.timeout, readTimeout)
	}
	if s := p.State(); s.Channel != 4 || !s.Live {
		t.Errorf("initial State() = %+v, want live on channel 4", s)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !fake.closed || p.State().Live {
		t.Error("Close() should close the device and clear Live")
	}

	openPort = func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("no such device")
	}
	if _, err := Open("/dev/missing", 9600, 0); err == nil {
		t.Error("Open() of a missing device returned no error")
	}
}

func TestPortRun(t *testing.T) {
	fake := &fakePort{reads: [][]byte{{0x80 | 2}, {90}, {0x80 | 2, 91}}}
	p := newPort("fake", fake, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	want := State{Channel: 2, Angle: 91, Live: true}
	deadline := time.Now().Add(2 * time.Second)
	for p.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("State() = %+v, want %+v", p.State(), want)
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() after cancel = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestPortRunReadError(t *testing.T) {
	unplugged := errors.New("device unplugged")
	fake := &fakePort{reads: [][]byte{{33}}, err: unplugged}
	p := newPort("fake", fake, 0)

	err := p.Run(context.Background())
	if !errors.Is(err, unplugged) {
		t.Fatalf("Run() error = %v, want %v", err, unplugged)
	}
	if s := p.State(); s.Live || s.Angle != 33 {
		t.Errorf("State() = %+v, want angle 33 and not live", s)
	}
}
