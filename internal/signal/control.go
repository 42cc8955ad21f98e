package signal

import "github.com/dkeye/Mesh/internal/protocol"

func (ctl *Controller) handlePing(c *wsConn) {
	ctl.sendJSON(c, struct {
		Type protocol.Kind `json:"type"`
	}{Type: protocol.KindPong})
}
