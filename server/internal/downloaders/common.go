package downloaders

import (
	"strings"
	"sync"
	"time"
)

type DownloaderBase struct {
	Id        string
	URL       string
	CreatedAt time.Time
	Pending   bool
	Completed bool
	mutex     sync.Mutex
}

func (d *DownloaderBase) SetPending(p bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.Pending = p
}

func (d *DownloaderBase) Complete() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.Completed = true
}

func (d *DownloaderBase) IsCompleted() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.Completed
}

func (d *DownloaderBase) GetId() string  { return d.Id }
func (d *DownloaderBase) GetUrl() string { return d.URL }

func shortId(id string) string {
	return strings.Split(id, "-")[0]
}
