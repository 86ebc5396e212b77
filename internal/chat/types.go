package chat

import (
	"time"

	"github.com/bowerhall/chordial/internal/alerts"
	"github.com/bowerhall/chordial/internal/history"
	"github.com/bowerhall/chordial/internal/llm"
	"github.com/bowerhall/chordial/internal/prompt"
	"github.com/bowerhall/chordial/internal/scheduler"
	"github.com/bowerhall/chordial/internal/session"
	"github.com/bowerhall/chordial/pkg/chordialmem"
)

// FallbackReply is what the user sees when a turn fails for any reason
const FallbackReply = "sorry, i encountered an error processing your message."

type Config struct {
	HistoryLimit int
	FullMessages int
	Policy       scheduler.Policy
}

// Orchestrator runs the inbound and scheduled message pipelines
type Orchestrator struct {
	llm       llm.LLM
	users     *chordialmem.Store
	history   *history.Engine
	assembler *prompt.Assembler
	sessions  *session.Store
	alerts    *alerts.Alerter
	policy    scheduler.Policy

	historyLimit int
	fullMessages int

	now func() time.Time
}

func (o *Orchestrator) SetAlerter(alerter *alerts.Alerter) {
	o.alerts = alerter
}

// Sessions is shared with the scheduling loop so both paths see the same locks
func (o *Orchestrator) Sessions() *session.Store {
	return o.sessions
}

func (o *Orchestrator) Users() *chordialmem.Store {
	return o.users
}

func (o *Orchestrator) History() *history.Engine {
	return o.history
}
