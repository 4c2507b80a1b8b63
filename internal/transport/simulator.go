package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"sensor_gateway/internal/models"
)

const (
	simScheme      = "sim://"
	defaultSimTick = time.Second
)

// ----------- Simulation constants -----------
const (
	ambientC        = 22.0 // room temperature °C
	ambientHum      = 55.0 // relative humidity %
	heatCPerTick    = 0.4  // °C gained per tick while the relay drives a heater
	driftFraction   = 0.1  // share of the gap to ambient closed per tick
	sensorJitterC   = 0.15 // ± noise on each temperature sample
	sensorJitterHum = 0.8  // ± noise on each humidity sample
)

type simNode struct {
	id     string
	dual   bool
	temp   float64
	hum    float64
	relay  bool
	manual bool
}

// Simulator is an in-process stand-in for a radio link with a few nodes
// attached. Every tick each node reports a framed reading; commands written
// to it switch the addressed node's relay and are answered with an ack frame.
type Simulator struct {
	mu      sync.Mutex
	nodes   []*simNode
	rnd     *rand.Rand
	out     chan []byte
	pending []byte
	closed  chan struct{}
	once    sync.Once
}

// NewSimulator starts reporting for ids every tick until Close.
// Nodes at odd positions report two sensors.
func NewSimulator(ids []string, tick time.Duration) *Simulator {
	if tick <= 0 {
		tick = defaultSimTick
	}
	s := &Simulator{
		rnd:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	for i, id := range ids {
		s.nodes = append(s.nodes, &simNode{id: id, dual: i%2 == 1, temp: ambientC, hum: ambientHum})
	}
	go s.run(tick)
	return s
}

func (s *Simulator) run(tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-t.C:
			s.mu.Lock()
			frames := make([][]byte, 0, len(s.nodes))
			for _, n := range s.nodes {
				s.step(n)
				frames = append(frames, s.frame(n, false))
			}
			s.mu.Unlock()
			for _, f := range frames {
				s.emit(f)
			}
		}
	}
}

// step moves a node's climate one tick: toward ambient, or up while heating.
func (s *Simulator) step(n *simNode) {
	if n.relay {
		n.temp += heatCPerTick
		n.hum -= heatCPerTick
	} else {
		n.temp += (ambientC - n.temp) * driftFraction
		n.hum += (ambientHum - n.hum) * driftFraction
	}
	n.hum = math.Max(0, math.Min(100, n.hum))
}

func (s *Simulator) sample(v, jitter float64) float64 {
	return math.Round((v+(s.rnd.Float64()*2-1)*jitter)*10) / 10
}

func (s *Simulator) frame(n *simNode, ack bool) []byte {
	r := models.Reading{ID: n.id, Relay: n.relay, Manual: n.manual}
	if n.dual {
		t1, t2 := s.sample(n.temp, sensorJitterC), s.sample(n.temp, sensorJitterC)
		h1, h2 := s.sample(n.hum, sensorJitterHum), s.sample(n.hum, sensorJitterHum)
		avgT, avgH := math.Round((t1+t2)*5)/10, math.Round((h1+h2)*5)/10
		r.Temp1, r.Temp2, r.Hum1, r.Hum2 = &t1, &t2, &h1, &h2
		r.Temp, r.Hum = &avgT, &avgH
	} else {
		t, h := s.sample(n.temp, sensorJitterC), s.sample(n.hum, sensorJitterHum)
		r.Temp, r.Hum = &t, &h
	}
	if ack {
		yes := true
		r.Ack = &yes
	}
	payload, _ := json.Marshal(r)
	return append(append([]byte{'<'}, payload...), '>', '\n')
}

func (s *Simulator) emit(frame []byte) {
	select {
	case s.out <- frame:
	case <-s.closed:
	default:
		// Nobody is reading; a real radio would lose the packet too.
	}
}

// Read returns the next reported frame, blocking until one is available.
func (s *Simulator) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		select {
		case f := <-s.out:
			s.pending = f
		case <-s.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Write accepts one or more command frames.
func (s *Simulator) Write(p []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	for rest := p; ; {
		start := bytes.IndexByte(rest, '<')
		if start < 0 {
			break
		}
		end := bytes.IndexByte(rest[start:], '>')
		if end < 0 {
			break
		}
		var cmd models.Command
		if err := json.Unmarshal(rest[start+1:start+end], &cmd); err != nil {
			return 0, fmt.Errorf("simulator: bad command frame: %w", err)
		}
		s.apply(cmd)
		rest = rest[start+end+1:]
	}
	return len(p), nil
}

func (s *Simulator) apply(cmd models.Command) {
	s.mu.Lock()
	var ack []byte
	for _, n := range s.nodes {
		if n.id != cmd.Target {
			continue
		}
		if cmd.Relay != nil {
			n.relay = *cmd.Relay
			n.manual = true
		}
		if cmd.Auto != nil && *cmd.Auto {
			n.manual = false
		}
		ack = s.frame(n, true)
	}
	s.mu.Unlock()

	if ack != nil {
		s.emit(ack)
	}
}

// Close stops reporting and unblocks pending reads.
func (s *Simulator) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func simNodeIDs(address string) []string {
	var ids []string
	for _, id := range strings.Split(strings.TrimPrefix(address, simScheme), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		ids = []string{"NODE1"}
	}
	return ids
}
