package rtmp

// Handle identifies one session inside an Engine's session table.
// The zero Handle is never valid.
type Handle uint64

type LogLevel int

const (
	LogCritical LogLevel = iota
	LogError
	LogWarning
	LogInfo
	LogDebug
	LogDebug2
	LogAll
)

func (l LogLevel) String() string {
	switch l {
	case LogCritical:
		return "CRIT"
	case LogError:
		return "ERROR"
	case LogWarning:
		return "WARNING"
	case LogInfo:
		return "INFO"
	case LogDebug:
		return "DEBUG"
	case LogDebug2:
		return "DEBUG2"
	default:
		return "ALL"
	}
}

// LogCallback receives engine diagnostics. It may be called from any goroutine.
type LogCallback func(level LogLevel, msg string)

// Engine is the capability set of a session based streaming protocol
// client. Boolean results report success; Read returns the number of bytes
// produced, 0 at end of data and a negative value on failure.
//
// The log level, the log callback and the socket subsystem are process
// wide: they are shared by every session of every Engine.
type Engine interface {
	Alloc() Handle
	Free(h Handle)
	Init(h Handle)
	SetupURL(h Handle, url string) bool
	Connect(h Handle) bool
	ConnectStream(h Handle) bool
	Read(h Handle, p []byte) int
	Close(h Handle)

	// Duration is the total media length in seconds, 0 if unknown.
	Duration(h Handle) float64
	// Timestamp is the media position last delivered, in milliseconds.
	Timestamp(h Handle) uint32

	LogSetLevel(level LogLevel)
	// SetLogCallback replaces the process wide callback; nil removes it.
	SetLogCallback(cb LogCallback)
	InitSockets() bool
	CleanupSockets()
}
