package bridge

import (
	"context"
	"sync"
)

// DefaultStaticReply is what StaticProvider answers when no reply is set.
const DefaultStaticReply = "Hi, I'm Playdo! The tutor is running offline right now, so this is a canned reply."

// StaticProvider answers every request with a fixed reply and records the
// requests it saw. It never touches the network.
type StaticProvider struct {
	reply string

	mu       sync.Mutex
	requests []Request
}

// NewStaticProvider returns a provider that always answers reply.
func NewStaticProvider(reply string) *StaticProvider {
	if reply == "" {
		reply = DefaultStaticReply
	}
	return &StaticProvider{reply: reply}
}

// Name implements Provider.
func (p *StaticProvider) Name() string {
	return "static"
}

// Complete implements Provider.
func (p *StaticProvider) Complete(ctx context.Context, req Request) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	return []string{p.reply}, nil
}

// Requests returns a copy of every request received so far.
func (p *StaticProvider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.requests))
	copy(out, p.requests)
	return out
}
