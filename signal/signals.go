package signal

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// SignalHandler is called with every JSON encoded envelope.
type SignalHandler func([]byte)

var (
	handlerLock sync.RWMutex
	handler     SignalHandler
)

// Envelope is a general signal sent upward to the consumer of the coordinator.
type Envelope struct {
	Type  string      `json:"type"`
	Event interface{} `json:"event"`
}

// NewEnvelope creates new envelope of given type and event payload.
func NewEnvelope(typ string, event interface{}) *Envelope {
	return &Envelope{
		Type:  typ,
		Event: event,
	}
}

// Send marshals the signal and passes it to the registered handler.
// Signals sent while no handler is set are dropped.
func Send(typ string, event interface{}) {
	handlerLock.RLock()
	h := handler
	handlerLock.RUnlock()

	if h == nil {
		return
	}

	data, err := json.Marshal(NewEnvelope(typ, event))
	if err != nil {
		zap.L().Named("signal").Error("failed to marshal signal envelope",
			zap.String("type", typ),
			zap.Error(err))
		return
	}

	h(data)
}

// SetSignalHandler sets the handler receiving all signals. Passing nil unsets it.
func SetSignalHandler(h SignalHandler) {
	handlerLock.Lock()
	defer handlerLock.Unlock()
	handler = h
}
