package app

import (
	"strings"

	logx "notifylistener/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

// sdNotifier reports service state to systemd. Outside a unit with
// NOTIFY_SOCKET it is a no-op.
type sdNotifier struct {
	log  logx.Logger
	send func(state string) (bool, error)
}

func newSDNotifier(log logx.Logger) *sdNotifier {
	return &sdNotifier{
		log:  log,
		send: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

func (n *sdNotifier) notify(state string) {
	sent, err := n.send(state)
	if err != nil {
		n.log.Debug("sd_notify failed", logx.String("state", firstLine(state)), logx.Err(err))
		return
	}
	if sent {
		n.log.Trace("sd_notify", logx.String("state", firstLine(state)))
	}
}

func (n *sdNotifier) Ready()          { n.notify(daemon.SdNotifyReady) }
func (n *sdNotifier) Stopping()       { n.notify(daemon.SdNotifyStopping) }
func (n *sdNotifier) Watchdog()       { n.notify(daemon.SdNotifyWatchdog) }
func (n *sdNotifier) Status(s string) { n.notify("STATUS=" + s) }

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
