package sync

import (
	base "sync"
)

// StripedChannel fans values out to a fixed set of channels by key. Values
// sent with the same key arrive on the same channel in send order.
type StripedChannel struct {
	channels []chan interface{}
	ring     *ring
	closed   base.Once
}

func NewStripedChannel(count, queueSize uint) *StripedChannel {
	channels := make([]chan interface{}, count)
	for i := range channels {
		channels[i] = make(chan interface{}, queueSize)
	}

	return &StripedChannel{
		channels: channels,
		ring:     newRing(count, replicasPerStripe),
	}
}

// GetChannels returns the receiving end of every stripe.
func (c *StripedChannel) GetChannels() []<-chan interface{} {
	receivers := make([]<-chan interface{}, len(c.channels))
	for i, channel := range c.channels {
		receivers[i] = channel
	}
	return receivers
}

// Send reports false instead of blocking when the key's stripe is full.
func (c *StripedChannel) Send(key []byte, value interface{}) bool {
	select {
	case c.channels[c.ring.stripe(key)] <- value:
		return true
	default:
		return false
	}
}

func (c *StripedChannel) BlockingSend(key []byte, value interface{}) {
	c.channels[c.ring.stripe(key)] <- value
}

// Close closes every stripe. It is safe to call more than once.
func (c *StripedChannel) Close() {
	c.closed.Do(func() {
		for _, channel := range c.channels {
			close(channel)
		}
	})
}
