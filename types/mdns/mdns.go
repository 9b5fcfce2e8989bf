// Package mdns builds and parses the DNS-SD over multicast DNS packets peers use
// to find each other on the local link.
package mdns

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"golang.org/x/net/dns/dnsmessage"

	"github.com/edup2p/nearby/types/key"
)

var (
	Port uint16 = 5353

	IPv4Group   = netip.MustParseAddr("224.0.0.251")
	IPv4GroupAP = netip.AddrPortFrom(IPv4Group, Port)
)

// DefaultTTL is the lifetime of announced records.
const DefaultTTL = 120 * time.Second

const (
	// question class bit asking for a unicast response
	unicastResponseBit = 1 << 15
	// answer class bit telling caches to replace earlier records
	cacheFlushBit = 1 << 15

	txtID   = "id="
	txtName = "name="

	// a TXT string holds at most 255 bytes
	maxTxtLen = 255
)

var ErrNameTooLong = errors.New("display name too long for TXT record")

// Instance is one advertised peer.
type Instance struct {
	ID   key.PeerPublic
	Name string

	Port  uint16
	Addrs []netip.Addr

	// zero is a goodbye
	TTL time.Duration
}

func ServiceName(tag string) string {
	return "_" + tag + "._tcp.local."
}

func InstanceName(id key.PeerPublic, tag string) string {
	return id.Short() + "." + ServiceName(tag)
}

func hostName(id key.PeerPublic) string {
	return id.Short() + "-nearby.local."
}

// Query asks for every instance of the tag's service.
func Query(tag string, unicast bool) (*dnsmessage.Message, error) {
	name, err := dnsmessage.NewName(ServiceName(tag))
	if err != nil {
		return nil, fmt.Errorf("failed to make DNS name: %w", err)
	}

	q := dnsmessage.Question{
		Name:  name,
		Type:  dnsmessage.TypePTR,
		Class: dnsmessage.ClassINET,
	}

	if unicast {
		q.Class |= unicastResponseBit
	}

	return &dnsmessage.Message{
		Questions: []dnsmessage.Question{q},
	}, nil
}

// Announce describes inst as an answer, with PTR, SRV and TXT records and an A record
// per IPv4 address.
func Announce(inst Instance, tag string) (*dnsmessage.Message, error) {
	if len(txtName)+len(inst.Name) > maxTxtLen {
		return nil, ErrNameTooLong
	}

	service, err := dnsmessage.NewName(ServiceName(tag))
	if err != nil {
		return nil, fmt.Errorf("failed to make service name: %w", err)
	}
	instance, err := dnsmessage.NewName(InstanceName(inst.ID, tag))
	if err != nil {
		return nil, fmt.Errorf("failed to make instance name: %w", err)
	}
	host, err := dnsmessage.NewName(hostName(inst.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to make host name: %w", err)
	}

	idText, err := inst.ID.MarshalText()
	if err != nil {
		return nil, err
	}

	ttl := uint32(inst.TTL / time.Second)

	header := func(name dnsmessage.Name, typ dnsmessage.Type, unique bool) dnsmessage.ResourceHeader {
		class := dnsmessage.ClassINET
		if unique {
			class |= cacheFlushBit
		}
		return dnsmessage.ResourceHeader{Name: name, Type: typ, Class: class, TTL: ttl}
	}

	msg := &dnsmessage.Message{
		Header: dnsmessage.Header{Response: true, Authoritative: true},
		Answers: []dnsmessage.Resource{
			{
				Header: header(service, dnsmessage.TypePTR, false),
				Body:   &dnsmessage.PTRResource{PTR: instance},
			},
			{
				Header: header(instance, dnsmessage.TypeSRV, true),
				Body:   &dnsmessage.SRVResource{Port: inst.Port, Target: host},
			},
			{
				Header: header(instance, dnsmessage.TypeTXT, true),
				Body: &dnsmessage.TXTResource{TXT: []string{
					txtID + string(idText),
					txtName + inst.Name,
				}},
			},
		},
	}

	for _, addr := range inst.Addrs {
		if !addr.Is4() {
			continue
		}

		msg.Additionals = append(msg.Additionals, dnsmessage.Resource{
			Header: header(host, dnsmessage.TypeA, true),
			Body:   &dnsmessage.AResource{A: addr.As4()},
		})
	}

	return msg, nil
}

// Goodbye withdraws inst, by announcing it with a zero TTL.
func Goodbye(inst Instance, tag string) (*dnsmessage.Message, error) {
	inst.TTL = 0
	return Announce(inst, tag)
}

// IsQueryFor reports whether msg asks for the tag's service, and whether it wants
// a unicast response.
func IsQueryFor(msg *dnsmessage.Message, tag string) (match, unicast bool) {
	if msg.Response {
		return false, false
	}

	service := ServiceName(tag)

	for _, q := range msg.Questions {
		if q.Type != dnsmessage.TypePTR && q.Type != dnsmessage.TypeALL {
			continue
		}

		if !strings.EqualFold(q.Name.String(), service) {
			continue
		}

		match = true
		if uint16(q.Class)&unicastResponseBit != 0 {
			unicast = true
		}
	}

	return
}

type partial struct {
	srv  *dnsmessage.SRVResource
	txt  []string
	ttl  uint32
	seen bool
}

// ParseResponse collects the instances of the tag's service that msg describes.
//
// Instances without a valid id are skipped. Records may be spread over answers
// and additionals, in any order.
func ParseResponse(msg *dnsmessage.Message, tag string) []Instance {
	if !msg.Response {
		return nil
	}

	suffix := "." + strings.ToLower(ServiceName(tag))

	instances := make(map[string]*partial)
	var order []string
	hosts := make(map[string][]netip.Addr)

	get := func(name string) *partial {
		p, ok := instances[name]
		if !ok {
			p = &partial{}
			instances[name] = p
			order = append(order, name)
		}
		return p
	}

	records := append(append([]dnsmessage.Resource{}, msg.Answers...), msg.Additionals...)

	for _, r := range records {
		name := strings.ToLower(r.Header.Name.String())

		switch body := r.Body.(type) {
		case *dnsmessage.PTRResource:
			target := strings.ToLower(body.PTR.String())
			if strings.HasSuffix(target, suffix) {
				get(target)
			}
		case *dnsmessage.SRVResource:
			if strings.HasSuffix(name, suffix) {
				p := get(name)
				p.srv = body
				p.ttl = r.Header.TTL
				p.seen = true
			}
		case *dnsmessage.TXTResource:
			if strings.HasSuffix(name, suffix) {
				p := get(name)
				p.txt = body.TXT
				if !p.seen {
					p.ttl = r.Header.TTL
					p.seen = true
				}
			}
		case *dnsmessage.AResource:
			hosts[name] = append(hosts[name], netip.AddrFrom4(body.A))
		}
	}

	var out []Instance

	for _, name := range order {
		p := instances[name]
		if p.txt == nil {
			continue
		}

		inst, ok := fromTxt(p.txt)
		if !ok {
			continue
		}

		inst.TTL = time.Duration(p.ttl) * time.Second

		if p.srv != nil {
			inst.Port = p.srv.Port
			inst.Addrs = hosts[strings.ToLower(p.srv.Target.String())]
		}

		out = append(out, inst)
	}

	return out
}

func fromTxt(txt []string) (inst Instance, ok bool) {
	for _, s := range txt {
		switch {
		case strings.HasPrefix(s, txtID):
			id, err := key.UnmarshalPublic(strings.TrimPrefix(s, txtID))
			if err != nil {
				return Instance{}, false
			}
			inst.ID = *id
			ok = true
		case strings.HasPrefix(s, txtName):
			inst.Name = strings.TrimPrefix(s, txtName)
		}
	}

	return inst, ok && !inst.ID.IsZero()
}
