package adsb

import (
	"github.com/yegors/ogn-tracker/internal/websocket"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

// MessageTypeRequest asks for the current ADS-B picture, optionally filtered
const MessageTypeRequest = "adsb_request"

// WebSocketHandler answers ADS-B requests from subscribers
type WebSocketHandler struct {
	service *Service
	logger  *logger.Logger
}

// NewWebSocketHandler creates a new WebSocket message handler
func NewWebSocketHandler(service *Service, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		logger:  log.Named("adsb-ws-handler"),
	}
}

// HandleMessage handles incoming WebSocket messages
func (h *WebSocketHandler) HandleMessage(client *websocket.Client, msg websocket.InboundMessage) error {
	switch msg.Type {
	case MessageTypeRequest:
		return h.handleRequest(client, msg.Data)
	default:
		h.logger.Debug("Unhandled message type", logger.String("type", msg.Type))
		return nil
	}
}

// SnapshotMessage is the adsb_aircraft_data message sent to new subscribers
func (h *WebSocketHandler) SnapshotMessage() *websocket.Message {
	return &websocket.Message{Type: websocket.MessageTypeADSBData, Data: h.service.Snapshot()}
}

// Filter narrows a snapshot. Zero values disable a bound.
type Filter struct {
	MinAltitudeFt float64
	MaxAltitudeFt float64
	HideGround    bool
}

// Apply returns the aircraft that pass the filter
func (f Filter) Apply(aircraft []Aircraft) []Aircraft {
	out := make([]Aircraft, 0, len(aircraft))
	for _, ac := range aircraft {
		if f.HideGround && ac.OnGround {
			continue
		}
		if f.MinAltitudeFt > 0 && ac.AltitudeFt < f.MinAltitudeFt {
			continue
		}
		if f.MaxAltitudeFt > 0 && ac.AltitudeFt > f.MaxAltitudeFt {
			continue
		}
		out = append(out, ac)
	}
	return out
}

func parseFilter(data map[string]any) Filter {
	var f Filter
	if val, ok := data["min_altitude"].(float64); ok {
		f.MinAltitudeFt = val
	}
	if val, ok := data["max_altitude"].(float64); ok {
		f.MaxAltitudeFt = val
	}
	if val, ok := data["show_ground"].(bool); ok {
		f.HideGround = !val
	}
	return f
}

func (h *WebSocketHandler) handleRequest(client *websocket.Client, data map[string]any) error {
	aircraft := parseFilter(data).Apply(h.service.Snapshot())

	h.logger.Debug("Handling ADS-B request", logger.Int("aircraft_count", len(aircraft)))

	// Send to specific client (not broadcast)
	if !client.SendMessage(&websocket.Message{Type: websocket.MessageTypeADSBData, Data: aircraft}) {
		h.logger.Debug("Client closing, dropping ADS-B reply")
	}
	return nil
}
