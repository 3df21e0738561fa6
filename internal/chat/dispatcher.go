package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/alexfirerain/chatwork/internal/chatlog"
)

const (
	joinText         = "%s joins the conversation!"
	renameText       = "%s changes name to %s!"
	renameFailedText = "Could not change name to %s!"
	farewellText     = "%s leaves the conversation."
	byeText          = "Connection closing. Bye!"
	closingText      = "Server is shutting down!"
	notConnectedText = "Participant %s is not connected."
	rosterHeader     = "Participants connected: %d:"
)

// Dispatcher owns the participant registry and decides who receives what.
// Every method may be called concurrently from any session goroutine.
type Dispatcher struct {
	users     *Registry
	welcome   string
	nickLimit int
	journal   *chatlog.Logger
	logger    *slog.Logger
}

// NewDispatcher returns a dispatcher that greets new participants with welcome.
func NewDispatcher(welcome string, journal *chatlog.Logger, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		users:   NewRegistry(),
		welcome: welcome,
		journal: journal,
		logger:  logger,
	}
}

// AddUser registers p under name, cut to the nickname limit, and reports
// whether it succeeded.
func (d *Dispatcher) AddUser(name string, p Peer) bool {
	name = d.clampName(name)
	if err := d.users.Add(name, p); err != nil {
		d.journal.Event("registration of %q for %s rejected: %v", name, p, err)
		d.logger.Info("registration rejected", "name", name, "peer", fmt.Sprint(p), "error", err)
		return false
	}
	RegisteredParticipants.Set(float64(d.users.Len()))
	d.journal.Event("name %s registered for %s", name, p)
	d.logger.Info("user registered", "name", name, "peer", p.String())
	return true
}

func (d *Dispatcher) clampName(name string) string {
	return truncateName(name, d.nickLimit)
}

func (d *Dispatcher) Users() []string { return d.users.Names() }

func (d *Dispatcher) UsersExcept(name string) []string { return d.users.NamesExcept(name) }

func (d *Dispatcher) SessionFor(name string) (Peer, bool) { return d.users.Get(name) }

func (d *Dispatcher) NameFor(p Peer) (string, bool) { return d.users.NameFor(p) }

// SendTo delivers m to the participant registered as name.
func (d *Dispatcher) SendTo(m Message, name string) {
	d.journal.Outbound(m, name)
	d.deliver(m, name)
}

// deliver sends without journaling. A peer whose write fails is treated as
// having left the conversation, unless its name already belongs to someone else.
func (d *Dispatcher) deliver(m Message, name string) bool {
	p, ok := d.users.Get(name)
	if !ok {
		DeliveryFailures.WithLabelValues("not_registered").Inc()
		d.journal.Event("message for %s dropped: participant not connected", name)
		d.logger.Debug("routing target missing", "name", name, "kind", m.Kind.String())
		return false
	}
	if err := p.Send(m); err != nil {
		DeliveryFailures.WithLabelValues("write").Inc()
		d.journal.Event("connection with %s unavailable: %v", name, err)
		d.logger.Warn("delivery failed", "name", name, "error", err)
		if d.users.RemoveIf(name, p) {
			d.farewell(name, p)
		}
		return false
	}
	return true
}

// Broadcast delivers a copy of m, addressed to each recipient, to everyone.
func (d *Dispatcher) Broadcast(m Message) {
	d.broadcastTo(m, d.users.Names())
}

func (d *Dispatcher) broadcastTo(m Message, names []string) {
	d.journal.Outbound(m, "everyone")
	for _, name := range names {
		d.deliver(m.WithAddressee(name), name)
	}
}

// Forward routes chat text: private messages to their addressee, public
// ones to everyone but the sender.
func (d *Dispatcher) Forward(m Message) {
	switch m.Kind {
	case KindPrivate:
		d.journal.Transferred(m, m.Sender)
		if !d.deliver(m, m.Addressee) {
			if _, ok := d.users.Get(m.Sender); ok {
				d.SendTo(FromServerTo(fmt.Sprintf(notConnectedText, m.Addressee), m.Sender), m.Sender)
			}
		}
	case KindText:
		d.journal.Transferred(m, m.Sender)
		for _, name := range d.users.NamesExcept(m.Sender) {
			d.deliver(m, name)
		}
	default:
		d.logger.Warn("refusing to forward non-chat message", "kind", m.Kind.String())
	}
}

// OperateOn handles one message read from a registered session. The sender
// is always resolved from the session, never taken from the message.
func (d *Dispatcher) OperateOn(m Message, source Peer) {
	start := time.Now()
	kind := m.Kind.String()
	defer func() {
		MessagesTotal.WithLabelValues(kind).Inc()
		EventProcessingDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	name, ok := d.users.NameFor(source)
	if !ok {
		d.journal.Event("%s from unregistered %s ignored", kind, source)
		return
	}

	switch m.Kind {
	case KindText, KindPrivate:
		d.Forward(m.WithSender(name))
	case KindList:
		d.SendUserList(name)
	case KindRegister:
		d.ChangeName(m.Sender, source)
	case KindExit:
		if d.users.RemoveIf(name, source) {
			d.farewell(name, source)
		}
	case KindShutdown:
		source.RequestShutdown()
	case KindServer:
		d.journal.Event("server notice from %s ignored", name)
	}
}

// ChangeName re-registers p under newName. On failure the old registration
// stays and only the requester is told.
func (d *Dispatcher) ChangeName(newName string, p Peer) {
	newName = d.clampName(newName)
	oldName, err := d.users.Rename(p, newName)
	switch {
	case errors.Is(err, ErrNotRegistered):
		d.journal.Event("rename to %q requested by unregistered %s", newName, p)
		return
	case err != nil:
		d.journal.Event("rename of %s to %q rejected: %v", oldName, newName, err)
		d.logger.Info("rename rejected", "old", oldName, "new", newName, "error", err)
		d.SendTo(FromServerTo(fmt.Sprintf(renameFailedText, newName), oldName), oldName)
		return
	}
	d.journal.Event("name %s registered for %s instead of %s", newName, p, oldName)
	d.logger.Info("user renamed", "old", oldName, "new", newName)
	d.Broadcast(FromServer(fmt.Sprintf(renameText, oldName, newName)))
}

// GoodbyeUser disconnects name and tells the others. A name that is no longer
// registered is ignored.
func (d *Dispatcher) GoodbyeUser(name string) {
	p, ok := d.users.Remove(name)
	if !ok {
		return
	}
	d.farewell(name, p)
}

// farewell finishes a goodbye whose registry entry the caller has already
// claimed, so only one caller can ever reach it for a given registration.
func (d *Dispatcher) farewell(name string, p Peer) {
	RegisteredParticipants.Set(float64(d.users.Len()))
	if d.disconnect(name, p, byeText) {
		d.Broadcast(FromServer(fmt.Sprintf(farewellText, name)))
	}
}

// disconnect sends p its stop sign and closes it. It reports whether the
// close succeeded.
func (d *Dispatcher) disconnect(name string, p Peer, text string) bool {
	stop := StopSign(text, name)
	if err := p.Send(stop); err != nil {
		d.journal.Event("stop sign for %s not sent: %v", name, err)
	} else {
		d.journal.Outbound(stop, name)
	}
	if err := p.Close(); err != nil {
		d.journal.Event("could not disconnect participant %s: %v", name, err)
		d.logger.Warn("disconnect failed", "name", name, "error", err)
		return false
	}
	d.journal.Event("participant %s disconnected", name)
	d.logger.Info("user left", "name", name)
	return true
}

// Leave is called by a session whose connection ended on its own. If the
// session was still registered the room is told it left.
func (d *Dispatcher) Leave(p Peer) {
	name, ok := d.users.RemovePeer(p)
	if !ok {
		return
	}
	RegisteredParticipants.Set(float64(d.users.Len()))
	d.journal.Event("participant %s lost connection", name)
	d.logger.Info("user left", "name", name, "reason", "connection ended")
	d.Broadcast(FromServer(fmt.Sprintf(farewellText, name)))
}

// CloseSession stops registrations and disconnects every participant, each
// receiving a single stop sign.
func (d *Dispatcher) CloseSession() {
	names := d.users.Seal()
	d.journal.Event("closing session for %d participants", len(names))
	for _, name := range names {
		if p, ok := d.users.Remove(name); ok {
			d.disconnect(name, p, closingText)
		}
	}
	RegisteredParticipants.Set(float64(d.users.Len()))
}

// GreetUser sends the welcome block to name and announces it to the others.
func (d *Dispatcher) GreetUser(name string) {
	d.SendTo(FromServerTo(d.welcome, name), name)
	d.broadcastTo(FromServer(fmt.Sprintf(joinText, name)), d.users.NamesExcept(name))
}

// SendUserList replies to requester with the current roster.
func (d *Dispatcher) SendUserList(requester string) {
	names := d.users.Names()
	lines := lo.Map(names, func(name string, _ int) string { return "\n" + name })
	report := fmt.Sprintf(rosterHeader, len(names)) + strings.Join(lines, "")
	d.SendTo(FromServerTo(report, requester), requester)
}
