package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishDelivers(t *testing.T) {
	b := NewBroker(4)
	sub := b.Subscribe("news", "news", "sport")
	defer sub.Close()

	require.Equal(t, []string{"news", "sport"}, sub.Channels())
	require.Equal(t, []string{"news", "sport"}, b.Channels())
	require.Equal(t, 1, b.Subscribers("news"))

	payload := []byte("hello")
	require.Equal(t, 1, b.Publish("news", payload))
	payload[0] = 'J'

	msg := <-sub.C()
	require.Equal(t, "news", msg.Channel)
	require.Equal(t, "hello", string(msg.Payload))

	require.Equal(t, 0, b.Publish("weather", []byte("x")))
}

func TestFullBufferDrops(t *testing.T) {
	b := NewBroker(1)
	sub := b.Subscribe("c")
	defer sub.Close()

	require.Equal(t, 1, b.Publish("c", []byte("1")))
	require.Equal(t, 0, b.Publish("c", []byte("2")))

	msg := <-sub.C()
	require.Equal(t, "1", string(msg.Payload))
	require.Len(t, sub.C(), 0)
	require.Equal(t, uint64(1), sub.Dropped())
}

func TestCloseUnregisters(t *testing.T) {
	b := NewBroker(0)
	a := b.Subscribe("c")
	other := b.Subscribe("c")
	defer other.Close()

	require.Equal(t, 2, b.Publish("c", []byte("x")))
	a.Close()
	a.Close()

	_, open := <-a.C()
	require.True(t, open, "buffered message is still readable after close")
	_, open = <-a.C()
	require.False(t, open)

	require.Equal(t, 1, b.Publish("c", []byte("y")))
	other.Close()
	require.Empty(t, b.Channels())
}
