package kv

import "github.com/drnu/drnu-downloader/server/internal"

// struct representing the current status of the store
// used for serializaton/persistence reasons
type Session struct {
	Processes []internal.ProcessSnapshot `json:"processes"`
}
