// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package transport

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv6"

	"github.com/openthread/ot-sink/logger"
	. "github.com/openthread/ot-sink/types"
)

const readPollInterval = 100 * time.Millisecond

// UDPConn is a Conn over a host UDP socket. On IPv6 sockets the hop limit of received datagrams
// is read from the control messages.
type UDPConn struct {
	conn  *net.UDPConn
	p6    *ipv6.PacketConn
	local netip.AddrPort
}

// ListenUDP opens a UDP socket on addr ("host:port"). A positive hopLimit sets the unicast hop limit
// of outgoing IPv6 datagrams.
func ListenUDP(addr string, hopLimit int) (*UDPConn, error) {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "parse listen address %q", addr)
	}
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(ap))
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}

	u := &UDPConn{
		conn:  conn,
		local: conn.LocalAddr().(*net.UDPAddr).AddrPort(),
	}

	if u.local.Addr().Is6() && !u.local.Addr().Is4In6() {
		u.p6 = ipv6.NewPacketConn(conn)
		if err := u.p6.SetControlMessage(ipv6.FlagHopLimit|ipv6.FlagDst, true); err != nil {
			logger.Debugf("IPv6 control messages unavailable on %s: %v", u.local, err)
		}
		if hopLimit > 0 {
			if err := u.p6.SetHopLimit(hopLimit); err != nil {
				_ = conn.Close()
				return nil, errors.Wrapf(err, "set hop limit %d", hopLimit)
			}
		}
	}
	return u, nil
}

func (u *UDPConn) LocalAddr() netip.AddrPort {
	return u.local
}

func (u *UDPConn) Send(dst netip.AddrPort, payload []byte) error {
	_, err := u.conn.WriteToUDPAddrPort(payload, dst)
	return err
}

// Receive polls the socket with a short read deadline so that ctx cancellation is noticed.
func (u *UDPConn) Receive(ctx context.Context) (Datagram, error) {
	buf := make([]byte, MaxDatagramSize)
	for {
		if err := ctx.Err(); err != nil {
			return Datagram{}, err
		}
		_ = u.conn.SetReadDeadline(time.Now().Add(readPollInterval))

		dg, err := u.readOnce(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			return Datagram{}, err
		}
		return dg, nil
	}
}

func (u *UDPConn) readOnce(buf []byte) (Datagram, error) {
	dg := Datagram{
		Dst:      u.local,
		Rssi:     RssiInvalid,
		HopLimit: -1,
	}

	var n int
	if u.p6 != nil {
		var cm *ipv6.ControlMessage
		var src net.Addr
		var err error
		n, cm, src, err = u.p6.ReadFrom(buf)
		if err != nil {
			return dg, err
		}
		if ua, ok := src.(*net.UDPAddr); ok {
			dg.Src = unmap(ua.AddrPort())
		}
		if cm != nil {
			dg.HopLimit = cm.HopLimit
			if dst, ok := netip.AddrFromSlice(cm.Dst); ok {
				dg.Dst = netip.AddrPortFrom(dst.Unmap(), u.local.Port())
			}
		}
	} else {
		var src netip.AddrPort
		var err error
		n, src, err = u.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return dg, err
		}
		dg.Src = unmap(src)
	}

	dg.Payload = append([]byte(nil), buf[:n]...)
	return dg, nil
}

func (u *UDPConn) Close() error {
	return u.conn.Close()
}

func unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
