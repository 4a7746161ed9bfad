package prober

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	psnet "github.com/shirou/gopsutil/v3/net"
)

var errNoInterface = errors.New("no interface given")

const (
	dhcpClientPort = 68
	dhcpServerPort = 67
)

// DiscoverDHCPServers broadcasts one DHCPDISCOVER on iface and collects the
// server identifiers of every DHCPOFFER seen until the DHCP timeout. Binding
// the client port needs root; that surfaces as ErrPrivileged.
func (s *System) DiscoverDHCPServers(ctx context.Context, iface string) ([]string, error) {
	if iface == "" {
		return nil, errNoInterface
	}
	mac, err := hardwareAddr(ctx, iface)
	if err != nil {
		return nil, err
	}

	xid, err := transactionID()
	if err != nil {
		return nil, err
	}
	discover, err := encodeDiscover(mac, xid)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{Control: socketControl(iface)}
	conn, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", dhcpClientPort))
	if err != nil {
		return nil, privileged(fmt.Errorf("binding dhcp client port: %w", err))
	}
	defer conn.Close()

	deadline := time.Now().Add(s.timeouts.DHCP)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	broadcast := &net.UDPAddr{IP: net.IPv4bcast, Port: dhcpServerPort}
	if _, err := conn.WriteTo(discover, broadcast); err != nil {
		return nil, privileged(fmt.Errorf("sending discover: %w", err))
	}

	return collectOffers(ctx, conn, xid), nil
}

func collectOffers(ctx context.Context, conn net.PacketConn, xid uint32) []string {
	seen := map[string]bool{}
	var servers []string
	buf := make([]byte, 1500)
	for ctx.Err() == nil {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			// Deadline reached: discovery window closed.
			break
		}
		server := parseOffer(buf[:n], xid, from)
		if server != "" && !seen[server] {
			seen[server] = true
			servers = append(servers, server)
		}
	}
	return servers
}

func hardwareAddr(ctx context.Context, iface string) (net.HardwareAddr, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}
	for _, i := range ifaces {
		if i.Name != iface {
			continue
		}
		mac, err := net.ParseMAC(i.HardwareAddr)
		if err != nil {
			return nil, fmt.Errorf("interface %s has no usable hardware address: %w", iface, err)
		}
		return mac, nil
	}
	return nil, fmt.Errorf("interface %s not found", iface)
}

func transactionID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func encodeDiscover(mac net.HardwareAddr, xid uint32) ([]byte, error) {
	discover := &layers.DHCPv4{
		Operation:    layers.DHCPOpRequest,
		HardwareType: layers.LinkTypeEthernet,
		HardwareLen:  uint8(len(mac)),
		Xid:          xid,
		Flags:        0x8000, // ask servers to broadcast the offer
		ClientHWAddr: mac,
		Options: layers.DHCPOptions{
			layers.NewDHCPOption(layers.DHCPOptMessageType, []byte{byte(layers.DHCPMsgTypeDiscover)}),
			layers.NewDHCPOption(layers.DHCPOptParamsRequest, []byte{
				byte(layers.DHCPOptSubnetMask),
				byte(layers.DHCPOptRouter),
				byte(layers.DHCPOptDNS),
			}),
		},
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, discover); err != nil {
		return nil, fmt.Errorf("encoding discover: %w", err)
	}
	return buf.Bytes(), nil
}

// parseOffer returns the server identifier of a DHCPOFFER matching xid, or
// "" for anything else. Offers without the identifier option fall back to
// the sender address.
func parseOffer(data []byte, xid uint32, from net.Addr) string {
	var reply layers.DHCPv4
	if err := reply.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return ""
	}
	if reply.Operation != layers.DHCPOpReply || reply.Xid != xid {
		return ""
	}

	var server string
	isOffer := false
	for _, opt := range reply.Options {
		switch opt.Type {
		case layers.DHCPOptMessageType:
			isOffer = len(opt.Data) == 1 && layers.DHCPMsgType(opt.Data[0]) == layers.DHCPMsgTypeOffer
		case layers.DHCPOptServerID:
			if len(opt.Data) == net.IPv4len {
				server = net.IP(opt.Data).String()
			}
		}
	}
	if !isOffer {
		return ""
	}
	if server == "" {
		if udp, ok := from.(*net.UDPAddr); ok {
			server = udp.IP.String()
		}
	}
	return server
}
