package session

import (
	"github.com/gorilla/rpc"
	gorillajson "github.com/gorilla/rpc/json"
)

func CreateRPCServer(service *AOPPService) (*rpc.Server, error) {
	rpcServer := rpc.NewServer()
	rpcServer.RegisterCodec(gorillajson.NewCodec(), "application/json")
	err := rpcServer.RegisterTCPService(service, "aopp")
	return rpcServer, err
}
