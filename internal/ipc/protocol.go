package ipc

// Commands understood by the owner process.
const (
	CommandStatus  = "status"
	CommandAttach  = "attach"
	CommandDetach  = "detach"
	CommandExecute = "execute"
	CommandSetting = "setting"
	CommandAlive   = "alive"
)

// Request is one newline-delimited JSON command sent to the owner.
//
// Port is zero for "attach the first reachable port in the configured range".
type Request struct {
	Command string `json:"command"`
	Port    int    `json:"port,omitempty"`
	Script  string `json:"script,omitempty"`
	Key     string `json:"key,omitempty"`
	Value   bool   `json:"value,omitempty"`
}

// Response reports the outcome of one Request.
//
// Code carries the named failure (ConnectionRefused, NotInjected, ...) when OK is false.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Port    int    `json:"port,omitempty"`
	Alive   bool   `json:"alive,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}
