// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used within the room websocket handler.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError  = 3000 // Client connected with an unsupported subprotocol.
	InvalidRoomCodeError = 3001 // Target room code specified in the WS URL does not exist.
	SessionError         = 3002 // Session could not be established or verified.
)
