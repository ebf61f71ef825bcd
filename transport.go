package swm

import "github.com/Tiro-health/smart-web-messaging/internal/config"

// Transport delivers opaque messages between two execution contexts.
// Implement this to bridge a connector over a custom message-passing
// primitive; the transport/memory and transport/websocket packages
// provide ready-made implementations.
type Transport = config.Transport
