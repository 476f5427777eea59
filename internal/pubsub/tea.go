package pubsub

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// ClosedMsg is delivered once when a feed read through a Listener ends
// because its channel was closed.
type ClosedMsg struct {
	Feed string
}

// ListenCmd waits for the next event on ch and returns it as a tea.Msg. It
// returns nil once ctx is done or ch is closed, and when ch is nil.
func ListenCmd[T any](ctx context.Context, ch <-chan Event[T]) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			return event
		}
	}
}

// Listener reads one subscription from the Bubble Tea update loop. Call
// Next again from Update after each event to keep receiving.
type Listener[T any] struct {
	ctx  context.Context
	feed string
	ch   <-chan Event[T]
}

// Listen subscribes to src under the name feed. The subscription ends with
// ctx.
func Listen[T any](ctx context.Context, feed string, src Subscriber[T]) *Listener[T] {
	return &Listener[T]{ctx: ctx, feed: feed, ch: src.Subscribe(ctx)}
}

// Next returns a command yielding the next Event[T], or a ClosedMsg when the
// feed has ended. It yields nil once ctx is done.
func (l *Listener[T]) Next() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-l.ctx.Done():
			return nil
		case event, ok := <-l.ch:
			if !ok {
				if l.ctx.Err() != nil {
					return nil
				}
				return ClosedMsg{Feed: l.feed}
			}
			return event
		}
	}
}
