package downloaders

import "github.com/drnu/drnu-downloader/server/internal"

type Downloader interface {
	Start() error
	Stop() error
	Status() *internal.ProcessSnapshot

	SetOutput(output internal.DownloadOutput)
	SetProgress(progress internal.DownloadProgress)
	SetPending(p bool)

	IsCompleted() bool

	UpdateSavedFilePath(path string)

	RestoreFromSnapshot(*internal.ProcessSnapshot) error

	GetId() string
	GetUrl() string
}
