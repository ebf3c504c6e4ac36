package main

import "C"
import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/status-im/status-aopp-go/internal/logging"
	"github.com/status-im/status-aopp-go/pkg/session"
)

var (
	nodeLock   sync.Mutex
	globalNode *session.Node
)

type initializeRequest struct {
	session.Config
	LogEnabled bool   `json:"logEnabled"`
	LogFile    string `json:"logFile"`
}

func marshalError(err error) *C.char {
	response := struct {
		Error string `json:"error"`
	}{
		Error: "",
	}
	if err != nil {
		response.Error = err.Error()
	}
	responseBytes, _ := json.Marshal(response)
	return C.CString(string(responseBytes))
}

// AOPPInitializeRPC starts the coordinator with the JSON encoded session.Config.
//
//export AOPPInitializeRPC
func AOPPInitializeRPC(config *C.char) *C.char {
	defer logPanic()

	var request initializeRequest
	if err := json.Unmarshal([]byte(C.GoString(config)), &request); err != nil {
		return marshalError(errors.Wrap(err, "invalid config"))
	}

	logger, err := logging.BuildLogger(request.LogEnabled, request.LogFile)
	if err != nil {
		return marshalError(errors.Wrap(err, "failed to initialize log"))
	}
	zap.ReplaceGlobals(logger)

	nodeLock.Lock()
	defer nodeLock.Unlock()

	if globalNode != nil {
		return marshalError(errors.New("RPC server already initialized"))
	}

	node, err := session.Bootstrap(request.Config, logger)
	if err != nil {
		return marshalError(err)
	}
	globalNode = node

	zap.L().Info("AOPPInitializeRPC - ok")
	return marshalError(nil)
}

//export AOPPStopRPC
func AOPPStopRPC() *C.char {
	defer logPanic()

	nodeLock.Lock()
	defer nodeLock.Unlock()

	if globalNode != nil {
		globalNode.Stop()
		globalNode = nil
	}
	return marshalError(nil)
}

// AOPPCallRPC serves one JSON-RPC request, e.g. {"method":"aopp.GetState","params":[{}],"id":1}.
//
//export AOPPCallRPC
func AOPPCallRPC(payload *C.char) *C.char {
	defer logPanic()

	nodeLock.Lock()
	node := globalNode
	nodeLock.Unlock()

	if node == nil {
		return marshalError(errors.New("RPC server not initialized"))
	}

	req := httptest.NewRequest("POST", "/rpc", bytes.NewBufferString(C.GoString(payload)))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	node.RPC.ServeHTTP(rr, req)

	resp := rr.Result()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return marshalError(errors.Wrap(err, "internal error reading response body"))
	}

	return C.CString(string(body))
}
