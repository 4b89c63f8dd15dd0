package agent

import (
	"context"

	"github.com/jonwraymond/offlinekit/bus"
	"github.com/jonwraymond/offlinekit/lifecycle"
)

// Deployment describes one generation to install.
type Deployment struct {
	Generation string
	Precache   []string
	Deny       []string

	// Root is the offline navigation document.
	// Default: "/"
	Root string
}

// trigger is one unit of queued control work.
type trigger interface {
	name() string
}

type deployTrigger struct {
	ctx        context.Context
	deployment Deployment
	reply      chan deployResult
}

type deployResult struct {
	report lifecycle.Report
	err    error
}

type messageTrigger struct {
	clientID string
	msg      bus.Message
}

type wakeTrigger struct{}

type pushTrigger struct {
	payload []byte
}

type installOfferTrigger struct {
	prompt bus.InstallPrompt
}

type flushTrigger struct {
	done chan struct{}
}

func (deployTrigger) name() string       { return "deploy" }
func (wakeTrigger) name() string         { return "wake" }
func (pushTrigger) name() string         { return "push" }
func (installOfferTrigger) name() string { return "install_offer" }
func (flushTrigger) name() string        { return "flush" }

func (t messageTrigger) name() string {
	switch t.msg.Type {
	case bus.TypeForceActivate:
		return "force_activate"
	case bus.TypeCacheConversation:
		return "cache_conversation"
	case bus.TypeRequestSync:
		return "request_sync"
	case bus.TypeShowInstallPrompt:
		return "show_install_prompt"
	default:
		return "message"
	}
}
