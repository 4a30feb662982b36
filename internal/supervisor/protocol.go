package supervisor

// daemonRequest is one line of the daemon's wire protocol: a command
// name plus whatever arguments that command needs.
type daemonRequest struct {
	Command string       `json:"command"`
	Name    string       `json:"name,omitempty"`
	Spec    *ServiceSpec `json:"spec,omitempty"`
}

// processState is a managed longrun process's last known state.
type processState string

const (
	stateUp   processState = "up"
	stateDown processState = "down"
	stateFail processState = "fail"
)

// serviceStatus reports one service's state in a status reply.
type serviceStatus struct {
	Name  string       `json:"name"`
	State processState `json:"state"`
	PID   int          `json:"pid,omitempty"`
}

// daemonResponse is one line of the daemon's wire protocol reply.
type daemonResponse struct {
	OK       bool            `json:"ok"`
	Error    string          `json:"error,omitempty"`
	Services []serviceStatus `json:"services,omitempty"`
}
