package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/klaxon/internal/command"
	"github.com/five82/klaxon/internal/projector"
)

// Messages delivered from background workers.

type displayMsg projector.Update

type advisoryMsg string

type soundMsg string

type reminderMsg struct{}

type errorMsg string

type reportMsg command.Report

// sender is the part of *tea.Program the renderer needs.
type sender interface {
	Send(tea.Msg)
}

// Renderer forwards projector, sound and command callbacks onto the Bubble
// Tea event loop. Callbacks arriving before Attach or after Close are
// dropped.
type Renderer struct {
	mu     sync.Mutex
	target sender
	closed bool
}

// NewRenderer returns an unattached renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Attach starts delivery to p.
func (r *Renderer) Attach(p sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.target = p
	}
}

// Close stops delivery for good.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.target = nil
}

func (r *Renderer) send(msg tea.Msg) {
	r.mu.Lock()
	target := r.target
	r.mu.Unlock()
	if target == nil {
		return
	}
	target.Send(msg)
}

// OnDisplaySetChanged implements projector.View.
func (r *Renderer) OnDisplaySetChanged(u projector.Update) { r.send(displayMsg(u)) }

// OnAdvisory implements projector.View.
func (r *Renderer) OnAdvisory(text string) { r.send(advisoryMsg(text)) }

// OnSoundTrigger implements sound.Observer.
func (r *Renderer) OnSoundTrigger(tag string) { r.send(soundMsg(tag)) }

// OnReminderDue implements sound.Observer.
func (r *Renderer) OnReminderDue() { r.send(reminderMsg{}) }

// OnError shows msg in the error banner.
func (r *Renderer) OnError(msg string) { r.send(errorMsg(msg)) }

// OnCommandReport implements command.Reporter.
func (r *Renderer) OnCommandReport(rep command.Report) { r.send(reportMsg(rep)) }
