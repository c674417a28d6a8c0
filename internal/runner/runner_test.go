// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henriheimann/stm32-hal-rfm95/internal/bridge"
	"github.com/henriheimann/stm32-hal-rfm95/lorawan"
	"github.com/henriheimann/stm32-hal-rfm95/node"
	"github.com/henriheimann/stm32-hal-rfm95/varint"
)

type fakeNode struct {
	sent [][]byte
	dl   *node.Downlink
	err  error
	tx   uint16
}

func (n *fakeNode) SendReceive(p []byte) (*node.Downlink, error) {
	n.sent = append(n.sent, p)
	if n.err == nil {
		n.tx++
	}
	return n.dl, n.err
}
func (n *fakeNode) Battery() byte        { return 200 }
func (n *fakeNode) Random(max byte) byte { return 7 }
func (n *fakeNode) Counters() (uint16, uint16) {
	return n.tx, 0
}

type fakePub struct {
	rx     []*node.Downlink
	status []bridge.Status
}

func (p *fakePub) PublishRx(d *node.Downlink) error { p.rx = append(p.rx, d); return nil }
func (p *fakePub) PublishStatus(s bridge.Status) error {
	p.status = append(p.status, s)
	return nil
}

func TestPayload(t *testing.T) {
	r := &Runner{Node: &fakeNode{}}
	vals, err := varint.Decode(r.Payload())
	require.NoError(t, err)
	assert.Equal(t, []int{200, 7}, vals)
}

func TestUplink(t *testing.T) {
	dl := &node.Downlink{Downlink: lorawan.Downlink{FCnt: 1, Payload: []byte("x")}, Window: 1}
	n := &fakeNode{dl: dl}
	p := &fakePub{}
	r := &Runner{Node: n, Pub: p}

	assert.Equal(t, dl, r.Uplink([]byte("hi")))
	require.Len(t, p.rx, 1)
	require.Len(t, p.status, 1)
	assert.Equal(t, uint16(1), p.status[0].FCnt)
	assert.True(t, p.status[0].Downlink)
	assert.Empty(t, p.status[0].Error)

	n.dl, n.err = nil, node.ErrSendTimeout
	assert.Nil(t, r.Uplink([]byte("hi")))
	require.Len(t, p.status, 2)
	assert.Equal(t, node.ErrSendTimeout.Error(), p.status[1].Error)
	assert.Len(t, p.rx, 1)
}

func TestRun(t *testing.T) {
	n := &fakeNode{}
	reqs := make(chan bridge.TxRequest, 1)
	setup := false
	r := &Runner{Node: n, Requests: reqs, Setup: func() error { setup = true; return nil }}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- r.Run(ctx) }()

	reqs <- bridge.TxRequest{Payload: []byte("req")}
	assert.Eventually(t, func() bool { return len(reqs) == 0 }, time.Second, time.Millisecond)
	cancel()
	assert.Equal(t, context.Canceled, <-done)
	assert.True(t, setup)
	require.Len(t, n.sent, 1)
	assert.Equal(t, []byte("req"), n.sent[0])
}

func TestRunPeriodic(t *testing.T) {
	n := &fakeNode{}
	r := &Runner{Node: n, Interval: time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, r.Run(ctx))
	assert.NotEmpty(t, n.sent)
}
