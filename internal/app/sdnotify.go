package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	logx "newsbot/pkg/logx"
)

// sdNotify reports state to systemd when NOTIFY_SOCKET is set. Outside a
// unit it is a no-op.
func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
