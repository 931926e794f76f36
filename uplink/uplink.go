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

// Package uplink publishes coordinator snapshots to an MQTT broker or a NATS server.
package uplink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/openthread/ot-sink/logger"
	"github.com/openthread/ot-sink/sink"
	. "github.com/openthread/ot-sink/types"
)

const (
	DefaultMqttTopic   = "otsink/snapshot"
	DefaultNatsSubject = "otsink.snapshot"

	connectTimeout = 5 * time.Second
	mqttQos        = 1
)

type Kind int

const (
	KindMqtt Kind = iota
	KindNats
)

// Target is a parsed uplink URL.
type Target struct {
	Kind   Kind
	Server string
	Topic  string
}

// ParseTarget parses mqtt://, tcp://, ssl://, tls://, ws:// and nats:// URLs. The URL path, if
// any, is the topic (MQTT) or subject (NATS).
func ParseTarget(rawURL string) (Target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, errors.Wrapf(err, "invalid uplink %q", rawURL)
	}
	if u.Host == "" {
		return Target{}, errors.Errorf("uplink %q has no host", rawURL)
	}
	topic := strings.Trim(u.Path, "/")

	switch strings.ToLower(u.Scheme) {
	case "mqtt", "tcp":
		return mqttTarget("tcp://"+u.Host, topic), nil
	case "ssl", "tls", "ws", "wss":
		return mqttTarget(strings.ToLower(u.Scheme)+"://"+u.Host, topic), nil
	case "nats":
		if topic == "" {
			topic = DefaultNatsSubject
		}
		return Target{Kind: KindNats, Server: "nats://" + u.Host, Topic: strings.ReplaceAll(topic, "/", ".")}, nil
	default:
		return Target{}, errors.Errorf("unsupported uplink scheme %q", u.Scheme)
	}
}

func mqttTarget(server string, topic string) Target {
	if topic == "" {
		topic = DefaultMqttTopic
	}
	return Target{Kind: KindMqtt, Server: server, Topic: topic}
}

// StatusTopic is where an MQTT uplink keeps its retained "online" or "offline" state.
func (t Target) StatusTopic() string {
	return t.Topic + "/status"
}

// NodeTopic returns where the rows of one node are published.
func (t Target) NodeTopic(id NodeId) string {
	if t.Kind == KindNats {
		return fmt.Sprintf("%s.node.%d", t.Topic, id)
	}
	return fmt.Sprintf("%s/node/%d", t.Topic, id)
}

type publisher interface {
	publish(ctx context.Context, topic string, data []byte) error
	close()
}

// Uplink is a sink.SnapshotSink publishing every snapshot as JSON, plus one message per node row.
type Uplink struct {
	target Target
	pub    publisher
}

// Dial connects to the server in rawURL.
func Dial(rawURL string, clientId string) (*Uplink, error) {
	t, err := ParseTarget(rawURL)
	if err != nil {
		return nil, err
	}

	var pub publisher
	switch t.Kind {
	case KindMqtt:
		pub, err = dialMqtt(t, clientId)
	case KindNats:
		pub, err = dialNats(t.Server, clientId)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "connect uplink %s", t.Server)
	}
	logger.Infof("uplink connected to %s, topic %s", t.Server, t.Topic)
	return &Uplink{target: t, pub: pub}, nil
}

func (u *Uplink) Target() Target {
	return u.target
}

func (u *Uplink) Name() string {
	return "uplink:" + u.target.Server
}

func (u *Uplink) OnSnapshot(ctx context.Context, s *sink.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err = u.pub.publish(ctx, u.target.Topic, data); err != nil {
		return errors.Wrapf(err, "publish %s", u.target.Topic)
	}

	for i := range s.Rows {
		row := &s.Rows[i]
		if data, err = json.Marshal(row); err != nil {
			return err
		}
		topic := u.target.NodeTopic(row.NodeId)
		if err = u.pub.publish(ctx, topic, data); err != nil {
			return errors.Wrapf(err, "publish %s", topic)
		}
	}
	return nil
}

func (u *Uplink) Close() {
	u.pub.close()
}

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

type mqttPublisher struct {
	client      mqtt.Client
	statusTopic string
}

// retainedPublisher is the part of mqtt.Client used to announce the uplink state.
type retainedPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// announce publishes the retained state without waiting, as it also runs from the connect handler.
func announce(c retainedPublisher, statusTopic string, state string) mqtt.Token {
	return c.Publish(statusTopic, mqttQos, true, state)
}

// mqttOptions leaves a retained "offline" as will on the status topic and replaces it with
// "online" on every (re)connect.
func mqttOptions(t Target, clientId string) *mqtt.ClientOptions {
	statusTopic := t.StatusTopic()
	opts := mqtt.NewClientOptions().
		AddBroker(t.Server).
		SetClientID(clientId).
		SetKeepAlive(30 * time.Second).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			announce(c, statusTopic, statusOnline)
		})
	opts.SetWill(statusTopic, statusOffline, mqttQos, true)
	return opts
}

func dialMqtt(t Target, clientId string) (*mqttPublisher, error) {
	client := mqtt.NewClient(mqttOptions(t, clientId))
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.New("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	return &mqttPublisher{client: client, statusTopic: t.StatusTopic()}, nil
}

func (p *mqttPublisher) publish(ctx context.Context, topic string, data []byte) error {
	token := p.client.Publish(topic, mqttQos, false, data)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close announces "offline" itself, since a clean disconnect does not trigger the will.
func (p *mqttPublisher) close() {
	announce(p.client, p.statusTopic, statusOffline).WaitTimeout(time.Second)
	p.client.Disconnect(250)
}

type natsPublisher struct {
	nc *nats.Conn
}

func dialNats(server string, clientId string) (*natsPublisher, error) {
	nc, err := nats.Connect(server, nats.Name(clientId), nats.Timeout(connectTimeout))
	if err != nil {
		return nil, err
	}
	return &natsPublisher{nc: nc}, nil
}

func (p *natsPublisher) publish(ctx context.Context, subject string, data []byte) error {
	if err := p.nc.Publish(subject, data); err != nil {
		return err
	}
	return p.nc.FlushWithContext(ctx)
}

func (p *natsPublisher) close() {
	if err := p.nc.Drain(); err != nil {
		logger.Debugf("nats drain: %v", err)
	}
}
