package main

// #cgo LDFLAGS: -shared
// #include <stdlib.h>
//
// typedef void (*signalCallback)(const char *);
//
// static void callSignalCallback(signalCallback cb, const char *data) {
//     cb(data);
// }
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/status-im/status-aopp-go/signal"
)

func main() {}

var (
	callbackLock   sync.Mutex
	signalCallback C.signalCallback
)

func logPanic() {
	err := recover()
	if err != nil {
		fmt.Printf("Panic: %v\n", err)
	}
}

//export Free
func Free(param unsafe.Pointer) {
	C.free(param)
}

// AOPPSetSignalEventCallback registers the C function receiving every signal as a JSON string.
// The string is only valid during the call.
//
//export AOPPSetSignalEventCallback
func AOPPSetSignalEventCallback(cb unsafe.Pointer) {
	callbackLock.Lock()
	defer callbackLock.Unlock()

	if cb == nil {
		signalCallback = nil
		signal.SetSignalHandler(nil)
		return
	}

	signalCallback = C.signalCallback(cb)
	signal.SetSignalHandler(sendToCallback)
}

func sendToCallback(data []byte) {
	callbackLock.Lock()
	cb := signalCallback
	callbackLock.Unlock()

	if cb == nil {
		return
	}

	str := C.CString(string(data))
	defer C.free(unsafe.Pointer(str))
	C.callSignalCallback(cb, str)
}
