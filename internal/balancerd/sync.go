package balancerd

import (
	"github.com/sirupsen/logrus"

	"github.com/ppriyankuu/social-mesh/internal/clock"
	"github.com/ppriyankuu/social-mesh/internal/peer"
	"github.com/ppriyankuu/social-mesh/internal/transport"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

// announcementFields mirrors the subset of SERVER_ANNOUNCEMENT /
// SERVER_PING fields the balancer cares about: identity and address.
// ServicePort is optional; when present it overrides the table's record
// with the canonical service port (spec section 4.7).
type announcementFields struct {
	NodeID      string `json:"nodeId"`
	Address     string `json:"address"`
	ServicePort int    `json:"servicePort"`
}

// NewSyncResponder builds the balancer's reduced sync socket on top of the
// same Transport the backend nodes use (spec section 9 notes the balancer
// runs "analogous workers"): it registers backends from
// SERVER_ANNOUNCEMENT/SERVER_PING, always answers IS_COORDINATOR_REQUEST
// with isCoordinator:false, and acknowledges every other control-plane
// action without acting on it.
func NewSyncResponder(log *logrus.Entry, table *Table) *transport.Transport {
	lc := clock.NewLogical()
	peers := peer.New("balancer")
	return transport.New(log, lc, peers, func(env *wire.Envelope) (map[string]interface{}, error) {
		switch env.Action {
		case wire.ActionServerAnnouncement, wire.ActionServerPing:
			var f announcementFields
			if err := env.Bind("nodeId", &f.NodeID); err != nil {
				if env.Action == wire.ActionServerPing {
					// A bare liveness ping carries no identity to register.
					return nil, nil
				}
				return nil, err
			}
			_ = env.Bind("address", &f.Address)
			_ = env.Bind("servicePort", &f.ServicePort)
			table.Upsert(Backend{NodeID: f.NodeID, Address: f.Address, ServicePort: f.ServicePort})
			return nil, nil
		case wire.ActionIsCoordinatorRequest:
			return map[string]interface{}{"isCoordinator": false}, nil
		default:
			// Clock-sync and election messages are acknowledged but never
			// acted upon (spec section 4.7).
			return nil, nil
		}
	})
}
