package state

import "sync/atomic"

type appState struct {
	Token      atomic.Value // string
	ComputerID atomic.Value // string
}

var s appState

func SetToken(t string) { s.Token.Store(t) }
func GetToken() string {
	if v := s.Token.Load(); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func SetComputerID(id string) { s.ComputerID.Store(id) }
func GetComputerID() string {
	if v := s.ComputerID.Load(); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
