package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/casualjim/roost/messages"
	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
)

// Greeting is the demo message.
type Greeting struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// GreetingType names Greeting on the wire independently of the package it is built in.
const GreetingType = "urn:message:roost:Greeting"

func (Greeting) MessageType() string {
	return GreetingType
}

type printer struct {
	mu         sync.Mutex
	w          io.Writer
	pp         *pp.PrettyPrinter
	received   atomic.Int64
	onReceived func(n int64)
}

func newPrinter(w io.Writer) *printer {
	p := pp.New()
	p.SetOutput(w)
	p.SetColoringEnabled(false)
	return &printer{w: w, pp: p}
}

func (p *printer) greeting(_ context.Context, g Greeting, rc *messages.ReceiveContext) error {
	p.mu.Lock()
	fmt.Fprintf(p.w, "%s %s: %s\n", color.CyanString("greeting"), color.MagentaString(g.From), g.Text)
	if rc.Envelope != nil {
		_, _ = p.pp.Println(rc.Envelope)
	}
	p.mu.Unlock()

	n := p.received.Add(1)
	if p.onReceived != nil {
		p.onReceived(n)
	}
	return nil
}
