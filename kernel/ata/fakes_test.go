package ata

import "time"

// fakePorts is an in-memory register space: each port keeps its own FIFO of
// values to hand back on InByte/InWord, repeating the last value forever
// once the FIFO drains (so a test only needs to script the interesting
// transitions, not every poll iteration). OutByte/OutWord calls are
// recorded for assertions.
type fakePorts struct {
	byteQueues map[uint16][]uint8
	wordQueues map[uint16][]uint16

	outBytes []portByteWrite
	outWords []portWordWrite
}

type portByteWrite struct {
	port  uint16
	value uint8
}

type portWordWrite struct {
	port  uint16
	value uint16
}

func newFakePorts() *fakePorts {
	return &fakePorts{
		byteQueues: make(map[uint16][]uint8),
		wordQueues: make(map[uint16][]uint16),
	}
}

func (p *fakePorts) queueBytes(port uint16, values ...uint8) {
	p.byteQueues[port] = append(p.byteQueues[port], values...)
}

func (p *fakePorts) queueWords(port uint16, values ...uint16) {
	p.wordQueues[port] = append(p.wordQueues[port], values...)
}

func (p *fakePorts) InByte(port uint16) uint8 {
	q := p.byteQueues[port]
	if len(q) == 0 {
		return 0
	}
	v := q[0]
	if len(q) > 1 {
		p.byteQueues[port] = q[1:]
	}
	return v
}

func (p *fakePorts) OutByte(port uint16, value uint8) {
	p.outBytes = append(p.outBytes, portByteWrite{port, value})
}

func (p *fakePorts) InWord(port uint16) uint16 {
	q := p.wordQueues[port]
	if len(q) == 0 {
		return 0
	}
	v := q[0]
	if len(q) > 1 {
		p.wordQueues[port] = q[1:]
	}
	return v
}

func (p *fakePorts) OutWord(port uint16, value uint16) {
	p.outWords = append(p.outWords, portWordWrite{port, value})
}

// fakeClock advances by step every time Now is called, so a waitWhileBusy
// loop that keeps polling a busy status eventually observes its deadline
// passing without an actual 750ms sleep.
type fakeClock struct {
	cur  time.Duration
	step time.Duration
}

func (c *fakeClock) Now() time.Duration {
	c.cur += c.step
	return c.cur
}
