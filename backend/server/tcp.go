package server

import (
	"fmt"

	"folder-sync/network"
)

// StartTCPServer runs the accept loop for agent connections in the
// background, handing each link to handle.
func StartTCPServer(host string, port int, handle func(*network.TCPClient)) (*network.TCPServer, error) {
	srv, err := network.ListenTCP(host, port)
	if err != nil {
		return nil, fmt.Errorf("listen tcp failed: %w", err)
	}
	go func() {
		for {
			client, err := srv.Accept()
			if err != nil {
				return
			}
			go handle(client)
		}
	}()
	return srv, nil
}
