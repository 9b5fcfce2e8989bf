package mdns

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/net/dns/dnsmessage"

	"github.com/edup2p/nearby/types/key"
)

const tag = "demo-tag"

// packs and unpacks, so tests see what a receiver sees
func wire(t *testing.T, msg *dnsmessage.Message) *dnsmessage.Message {
	t.Helper()

	b, err := msg.Pack()
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	out := new(dnsmessage.Message)
	if !assert.NoError(t, out.Unpack(b)) {
		t.FailNow()
	}

	return out
}

func testInstance() Instance {
	return Instance{
		ID:    key.NewPeer().Public(),
		Name:  "Alice's phone",
		Port:  41641,
		Addrs: []netip.Addr{netip.MustParseAddr("192.168.1.20"), netip.MustParseAddr("fe80::1")},
		TTL:   DefaultTTL,
	}
}

func TestNames(t *testing.T) {
	id := key.NewPeer().Public()

	assert.Equal(t, "_demo-tag._tcp.local.", ServiceName(tag))
	assert.Equal(t, id.Short()+"._demo-tag._tcp.local.", InstanceName(id, tag))
}

func TestAnnounceParse(t *testing.T) {
	inst := testInstance()

	msg, err := Announce(inst, tag)
	assert.NoError(t, err)

	got := ParseResponse(wire(t, msg), tag)

	if assert.Len(t, got, 1) {
		assert.Equal(t, inst.ID, got[0].ID)
		assert.Equal(t, inst.Name, got[0].Name)
		assert.Equal(t, inst.Port, got[0].Port)
		assert.Equal(t, DefaultTTL, got[0].TTL)
		// only IPv4 is announced
		assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.168.1.20")}, got[0].Addrs)
	}
}

func TestParseOtherTag(t *testing.T) {
	msg, err := Announce(testInstance(), "other")
	assert.NoError(t, err)

	assert.Empty(t, ParseResponse(wire(t, msg), tag))
}

func TestGoodbye(t *testing.T) {
	msg, err := Goodbye(testInstance(), tag)
	assert.NoError(t, err)

	got := ParseResponse(wire(t, msg), tag)

	if assert.Len(t, got, 1) {
		assert.Zero(t, got[0].TTL)
	}
}

func TestParseSkipsBadID(t *testing.T) {
	msg, err := Announce(testInstance(), tag)
	assert.NoError(t, err)

	for _, r := range msg.Answers {
		if txt, ok := r.Body.(*dnsmessage.TXTResource); ok {
			txt.TXT[0] = "id=nonsense"
		}
	}

	assert.Empty(t, ParseResponse(wire(t, msg), tag))
}

func TestNameTooLong(t *testing.T) {
	inst := testInstance()
	inst.Name = strings.Repeat("x", 300)

	_, err := Announce(inst, tag)
	assert.ErrorIs(t, err, ErrNameTooLong)
}

func TestQuery(t *testing.T) {
	q, err := Query(tag, false)
	assert.NoError(t, err)

	match, unicast := IsQueryFor(wire(t, q), tag)
	assert.True(t, match)
	assert.False(t, unicast)

	match, _ = IsQueryFor(wire(t, q), "other")
	assert.False(t, match)

	qu, err := Query(tag, true)
	assert.NoError(t, err)

	match, unicast = IsQueryFor(wire(t, qu), tag)
	assert.True(t, match)
	assert.True(t, unicast)
}

func TestResponseIsNotQuery(t *testing.T) {
	msg, err := Announce(testInstance(), tag)
	assert.NoError(t, err)

	match, _ := IsQueryFor(wire(t, msg), tag)
	assert.False(t, match)

	q, err := Query(tag, false)
	assert.NoError(t, err)
	assert.Nil(t, ParseResponse(wire(t, q), tag))
}

func TestTTLRounding(t *testing.T) {
	inst := testInstance()
	inst.TTL = 1500 * time.Millisecond

	msg, err := Announce(inst, tag)
	assert.NoError(t, err)

	got := ParseResponse(wire(t, msg), tag)
	if assert.Len(t, got, 1) {
		assert.Equal(t, time.Second, got[0].TTL)
	}
}
