package observer

import "github.com/Swind/go-frame-observer/core"

// ProxyStats is a point-in-time view of one observer's delivery pipe.
type ProxyStats struct {
	Observer  string       `json:"observer"`
	Task      string       `json:"task"`
	TaskID    core.TaskID  `json:"task_id"`
	State     ProxyState   `json:"state"`
	Pending   int          `json:"pending"`
	Delivered int64        `json:"delivered"`
	Outcome   core.Outcome `json:"outcome"`
}

// FanoutStats represents runtime observability state for a Fanout.
type FanoutStats struct {
	Name    string       `json:"name"`
	Stopped bool         `json:"stopped"`
	Pushed  int64        `json:"pushed"`
	Dropped int64        `json:"dropped"`
	Proxies []ProxyStats `json:"proxies"`
}
